// Package objectstoretest provides an in-memory objectstore.Client for tests.
package objectstoretest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/your-org/assetflow/pkg/storage/objectstore"
)

// Memory is an in-memory object store keyed by bucket and key. Err hooks
// let tests inject failures per operation.
type Memory struct {
	mu      sync.Mutex
	objects map[string]map[string][]byte

	StatErr func(bucket, key string) error
	ListErr func(bucket string) error
	GetErr  func(bucket, key string) error
	PutErr  func(bucket, key string) error

	Stats int
	Lists int
	Gets  int
	Puts  int
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{objects: map[string]map[string][]byte{}}
}

// Seed stores body at bucket/key without counting as a Put.
func (m *Memory) Seed(bucket, key string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[bucket] == nil {
		m.objects[bucket] = map[string][]byte{}
	}
	m.objects[bucket][key] = append([]byte(nil), body...)
}

// Object returns the stored body.
func (m *Memory) Object(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[bucket][key]
	return body, ok
}

// Keys returns the sorted keys of bucket.
func (m *Memory) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedKeys(bucket)
}

// Calls is the total number of operations performed.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Stats + m.Lists + m.Gets + m.Puts
}

func (m *Memory) sortedKeys(bucket string) []string {
	keys := make([]string, 0, len(m.objects[bucket]))
	for k := range m.objects[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Memory) Stat(_ context.Context, bucket, key string) (objectstore.Existence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stats++
	if m.StatErr != nil {
		if err := m.StatErr(bucket, key); err != nil {
			return objectstore.NotFound, err
		}
	}
	if _, ok := m.objects[bucket][key]; ok {
		return objectstore.Found, nil
	}
	return objectstore.NotFound, nil
}

func (m *Memory) List(ctx context.Context, bucket string, opts objectstore.ListOptions, fn func(objectstore.ObjectInfo) bool) error {
	m.mu.Lock()
	m.Lists++
	if m.ListErr != nil {
		if err := m.ListErr(bucket); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	if _, ok := m.objects[bucket]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("list s3://%s: NoSuchBucket", bucket)
	}
	var infos []objectstore.ObjectInfo
	for _, k := range m.sortedKeys(bucket) {
		if !strings.HasPrefix(k, opts.Prefix) || k <= opts.StartAfter {
			continue
		}
		infos = append(infos, objectstore.ObjectInfo{Key: k, Size: int64(len(m.objects[bucket][k]))})
	}
	m.mu.Unlock()

	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(info) {
			return nil
		}
	}
	return nil
}

func (m *Memory) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.GetErr != nil {
		if err := m.GetErr(bucket, key); err != nil {
			return nil, err
		}
	}
	body, ok := m.objects[bucket][key]
	if !ok {
		return nil, fmt.Errorf("get s3://%s/%s: NoSuchKey", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (m *Memory) Put(_ context.Context, bucket, key string, reader io.Reader, size int64, opts objectstore.PutOptions) error {
	body, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if int64(len(body)) != size {
		return fmt.Errorf("put s3://%s/%s: read %d bytes, expected %d", bucket, key, len(body), size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Puts++
	if m.PutErr != nil {
		if err := m.PutErr(bucket, key); err != nil {
			return err
		}
	}
	if m.objects[bucket] == nil {
		m.objects[bucket] = map[string][]byte{}
	}
	if _, ok := m.objects[bucket][key]; ok && opts.IfAbsent {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, objectstore.ErrPreconditionFailed)
	}
	m.objects[bucket][key] = body
	return nil
}

func (m *Memory) Close() error {
	return nil
}

var _ objectstore.Client = (*Memory)(nil)
