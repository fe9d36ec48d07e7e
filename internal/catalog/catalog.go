// Package catalog holds the few catalog-item facts the pipeline routes on.
// Items stay opaque; nothing here validates them.
package catalog

import (
	"encoding/json"
	"fmt"
)

// ProviderRole is a role of an organisation providing an item.
type ProviderRole string

const (
	RoleHost         ProviderRole = "host"
	RoleLicensor     ProviderRole = "licensor"
	RoleProcessor    ProviderRole = "processor"
	RoleProducer     ProviderRole = "producer"
	RolePublisher    ProviderRole = "publisher"
	RoleRightsHolder ProviderRole = "rights_holder"
	RoleSource       ProviderRole = "source"
)

// Provider is an organisation credited on an item.
type Provider struct {
	Name  string         `json:"name"`
	URL   string         `json:"url,omitempty"`
	Roles []ProviderRole `json:"roles,omitempty"`
}

// Summary identifies an item for logs and events.
type Summary struct {
	ID         string
	Collection string
	Providers  []Provider
}

// ProvidersWith returns the names of the providers holding role, in item
// order.
func (s Summary) ProvidersWith(role ProviderRole) []string {
	var names []string
	for _, p := range s.Providers {
		for _, r := range p.Roles {
			if r == role {
				names = append(names, p.Name)
				break
			}
		}
	}
	return names
}

// Summarize extracts the identifying fields of an item. Missing fields are
// left empty.
func Summarize(item json.RawMessage) (Summary, error) {
	var doc struct {
		ID         string `json:"id"`
		Collection string `json:"collection"`
		Properties struct {
			Providers []Provider `json:"providers"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(item, &doc); err != nil {
		return Summary{}, fmt.Errorf("summarize item: %w", err)
	}
	return Summary{ID: doc.ID, Collection: doc.Collection, Providers: doc.Properties.Providers}, nil
}
