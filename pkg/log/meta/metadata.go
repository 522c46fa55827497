// Package meta carries per-request metadata (request id, trace headers,
// wallet account) inside a context so middlewares and handlers can share it.
package meta

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

type metadata struct {
	carrier map[interface{}]interface{}
	mu      sync.RWMutex
}

func (c *metadata) Value(key interface{}) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.carrier[key]
}

func (c *metadata) WithValue(key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carrier[key] = value
}

type contextKey struct{}

var metaContextKey = contextKey{}

const requestIDKey = "x-request-id"

// Begin attaches a metadata carrier to parent. Call it as close to the root
// context as possible; calling it again on a context that already carries
// metadata returns parent unchanged.
func Begin(parent context.Context) context.Context {
	if parent.Value(metaContextKey) != nil {
		return parent
	}
	return context.WithValue(parent, metaContextKey, &metadata{
		carrier: make(map[interface{}]interface{}),
	})
}

func metadataFrom(parent context.Context) *metadata {
	value, _ := parent.Value(metaContextKey).(*metadata)
	if value == nil {
		logrus.Debug("meta not found from context, should call meta.Begin() first?")
	}
	return value
}

// WithValue stores key/val in the metadata of parent. It is a no-op when
// Begin was never called.
func WithValue(parent context.Context, key, val interface{}) {
	if meta := metadataFrom(parent); meta != nil {
		meta.WithValue(key, val)
	}
}

func Value(parent context.Context, key interface{}) interface{} {
	meta := metadataFrom(parent)
	if meta == nil {
		return nil
	}
	return meta.Value(key)
}

func WithRequestID(parent context.Context, id string) {
	WithValue(parent, requestIDKey, id)
}

func RequestID(parent context.Context) string {
	id, _ := Value(parent, requestIDKey).(string)
	return id
}
