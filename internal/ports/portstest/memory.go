// Package portstest provides in-memory implementations of the ports
// interfaces for tests.
package portstest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"renderhub/internal/ports"
)

// MemoryStorage is a ports.StorageProvider keeping objects in a map.
type MemoryStorage struct {
	BaseURL string
	// PutErr, when set, is returned by every PutObject call.
	PutErr error

	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	puts    int
}

func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{
		BaseURL: baseURL,
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (m *MemoryStorage) Provider() string { return "memory" }

func (m *MemoryStorage) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	m.mu.Lock()
	m.puts++
	putErr := m.PutErr
	m.mu.Unlock()
	if putErr != nil {
		return ports.PutObjectOutput{}, putErr
	}

	data, err := io.ReadAll(in.Reader)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[in.ObjectKey] = data
	m.types[in.ObjectKey] = in.ContentType
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: int64(len(data))}, nil
}

func (m *MemoryStorage) GetObject(ctx context.Context, objectKey string) (io.ReadCloser, string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectKey]
	if !ok {
		return nil, "", 0, fmt.Errorf("object %s: %w", objectKey, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), m.types[objectKey], int64(len(data)), nil
}

func (m *MemoryStorage) ObjectURL(ctx context.Context, objectKey string) (string, error) {
	return m.BaseURL + "/" + objectKey, nil
}

func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

// Object returns the stored bytes and content type for key.
func (m *MemoryStorage) Object(key string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, m.types[key], ok
}

// Puts counts PutObject calls, failed ones included.
func (m *MemoryStorage) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
