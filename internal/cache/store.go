package cache

import (
	"context"
	"crypto/md5"
	"fmt"
)

// Store is a byte cache keyed by request fingerprint
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) map[string]interface{}
}

// Key fingerprints a tenant, route and request body
func Key(tenant, route string, body []byte) string {
	h := md5.New()
	h.Write([]byte(tenant))
	h.Write([]byte{0})
	h.Write([]byte(route))
	h.Write([]byte{0})
	h.Write(body)
	return fmt.Sprintf("%x", h.Sum(nil))
}
