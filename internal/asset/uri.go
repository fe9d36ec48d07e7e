package asset

import (
	"fmt"
	"path"
	"strings"
)

// URI is a parsed object-store location of the form scheme://bucket/key.
type URI struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseURI parses and validates an object-store URI. The key is kept
// byte-for-byte: object keys are not percent-encoded, so nothing is unescaped.
func ParseURI(raw string) (URI, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(raw), "://")
	if !ok || scheme == "" {
		return URI{}, fmt.Errorf("%w: uri %q is not scheme://bucket/key", ErrSchema, raw)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return URI{}, fmt.Errorf("%w: uri %q is not scheme://bucket/key", ErrSchema, raw)
	}
	key = strings.TrimLeft(key, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return URI{}, fmt.Errorf("%w: uri %q has no object key", ErrSchema, raw)
	}
	return URI{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

// S3 builds an s3:// URI.
func S3(bucket, key string) URI {
	return URI{Scheme: "s3", Bucket: bucket, Key: key}
}

// Basename returns the last path segment of the key.
func (u URI) Basename() string {
	return path.Base(u.Key)
}

func (u URI) String() string {
	return fmt.Sprintf("%s://%s/%s", u.Scheme, u.Bucket, u.Key)
}
