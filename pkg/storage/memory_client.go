package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryClient keeps objects in process. Used for local runs and tests.
type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{objects: make(map[string]memoryObject)}
}

func (c *MemoryClient) Upload(ctx context.Context, bucket, key, contentType string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[bucket+"/"+key] = memoryObject{data: data, contentType: contentType}
	return nil
}

func (c *MemoryClient) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[bucket+"/"+key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (c *MemoryClient) Delete(ctx context.Context, bucket, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, bucket+"/"+key)
	return nil
}

func (c *MemoryClient) GetPresignedURL(ctx context.Context, bucket, key string, expiration time.Duration) (string, error) {
	return "memory://" + bucket + "/" + key, nil
}

// Len reports how many objects are stored.
func (c *MemoryClient) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}
