package asset

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Descriptor is one asset under consideration by the pipeline. SourceURI
// starts at the discovered location and is rewritten to the archive location
// once transferred.
//
// Fields the pipeline does not interpret are kept in Extra and written back
// unchanged, so downstream catalog-item construction sees the whole record.
type Descriptor struct {
	SourceURI  string
	Collection string
	Upload     bool
	Extra      map[string]json.RawMessage
}

const (
	fieldSourceURI  = "s3_filename"
	fieldCollection = "collection"
	fieldUpload     = "upload"
)

// Location parses SourceURI.
func (d Descriptor) Location() (URI, error) {
	return ParseURI(d.SourceURI)
}

// WithSourceURI returns a copy of d pointing at uri.
func (d Descriptor) WithSourceURI(uri string) Descriptor {
	out := d
	out.SourceURI = uri
	out.Extra = maps.Clone(d.Extra)
	return out
}

// DestinationKey derives the archive key for a descriptor: {collection}/{basename}.
func DestinationKey(collection, basename string) string {
	return collection + "/" + basename
}

// Destination computes where d lands inside bucket.
func (d Descriptor) Destination(bucket string) (URI, error) {
	src, err := d.Location()
	if err != nil {
		return URI{}, err
	}
	if d.Collection == "" {
		return URI{}, fmt.Errorf("%w: descriptor %s has no collection", ErrSchema, d.SourceURI)
	}
	if bucket == "" {
		return URI{}, fmt.Errorf("%w: destination bucket is empty", ErrSchema)
	}
	return S3(bucket, DestinationKey(d.Collection, src.Basename())), nil
}

func (d Descriptor) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+3)
	for k, v := range d.Extra {
		out[k] = v
	}
	out[fieldSourceURI] = d.SourceURI
	out[fieldCollection] = d.Collection
	out[fieldUpload] = d.Upload
	return json.Marshal(out)
}

func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out Descriptor
	if v, ok := raw[fieldSourceURI]; ok {
		if err := json.Unmarshal(v, &out.SourceURI); err != nil {
			return fmt.Errorf("%s: %w", fieldSourceURI, err)
		}
		delete(raw, fieldSourceURI)
	}
	if v, ok := raw[fieldCollection]; ok {
		if string(v) != "null" {
			if err := json.Unmarshal(v, &out.Collection); err != nil {
				return fmt.Errorf("%s: %w", fieldCollection, err)
			}
		}
		delete(raw, fieldCollection)
	}
	if v, ok := raw[fieldUpload]; ok {
		out.Upload = Truthy(v)
		delete(raw, fieldUpload)
	}
	if len(raw) > 0 {
		out.Extra = raw
	}
	*d = out
	return nil
}
