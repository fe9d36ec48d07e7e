package submission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"

	"github.com/your-org/assetflow/internal/asset"
)

// ItemSource is where the catalog item body comes from: InlineItem or
// ItemReference.
type ItemSource interface {
	isItemSource()
}

// InlineItem carries the item body in the request.
type InlineItem struct {
	Item json.RawMessage
}

// ItemReference points at an object holding the item body.
type ItemReference struct {
	URI asset.URI
}

func (InlineItem) isItemSource()    {}
func (ItemReference) isItemSource() {}

// Request is a validated submission.
type Request struct {
	Source ItemSource
	// DestinationURI is the archived asset; when set a provenance record is sent.
	DestinationURI string
	Citations      []string
	DryRun         bool
}

// Event is the wire form of a submission request.
type Event struct {
	StacItem    json.RawMessage `json:"stac_item,omitempty"`
	StacFileURL string          `json:"stac_file_url,omitempty"`
	S3URI       string          `json:"s3uri,omitempty"`
	Citations   []string        `json:"citations,omitempty"`
	DryRun      json.RawMessage `json:"dry_run,omitempty"`
}

// Request validates e. A non-empty inline item wins over a reference; with
// neither present the event is rejected.
func (e Event) Request() (Request, error) {
	req := Request{Citations: e.Citations, DryRun: asset.Truthy(e.DryRun)}

	switch {
	case asset.Truthy(e.StacItem):
		item, err := objectBody(e.StacItem)
		if err != nil {
			return Request{}, fmt.Errorf("stac_item: %w", err)
		}
		req.Source = InlineItem{Item: item}
	case e.StacFileURL != "":
		uri, err := asset.ParseURI(e.StacFileURL)
		if err != nil {
			return Request{}, fmt.Errorf("stac_file_url: %w", err)
		}
		req.Source = ItemReference{URI: uri}
	default:
		return Request{}, fmt.Errorf("%w: no stac_item or stac_file_url provided", asset.ErrSchema)
	}

	if e.S3URI != "" {
		if _, err := asset.ParseURI(e.S3URI); err != nil {
			return Request{}, fmt.Errorf("s3uri: %w", err)
		}
		req.DestinationURI = e.S3URI
	}
	return req, nil
}

// ParseEvent decodes and validates a raw submission event.
func ParseEvent(raw []byte) (Request, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Request{}, fmt.Errorf("%w: decode submission event: %v", asset.ErrSchema, err)
	}
	return e.Request()
}

// objectBody checks that raw is a JSON object and returns it compacted.
func objectBody(raw []byte) (json.RawMessage, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: catalog item is not a JSON object: %v", asset.ErrSchema, err)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", asset.ErrSchema, err)
	}
	return buf.Bytes(), nil
}

// ProvenanceRecord notifies the ledger of an archived asset.
type ProvenanceRecord struct {
	Name      string   `json:"name"`
	S3URI     string   `json:"s3uri"`
	Username  string   `json:"username"`
	Citations []string `json:"citations"`
}

// NewProvenanceRecord derives the record for destinationURI.
func NewProvenanceRecord(destinationURI string, citations []string) ProvenanceRecord {
	return ProvenanceRecord{
		Name:      path.Base(destinationURI),
		S3URI:     destinationURI,
		Citations: citations,
	}
}
