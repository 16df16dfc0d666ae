package credentials

import (
	"context"
	"sync"

	"github.com/medcart/storefront-gateway/internal/gwerrors"
	"github.com/medcart/storefront-gateway/internal/models"
)

// MemoryBackend holds the session tier of every browser session in process memory.
type MemoryBackend struct {
	lock       *sync.RWMutex
	namespaces map[string]map[models.CredentialKey]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{lock: &sync.RWMutex{}, namespaces: map[string]map[models.CredentialKey]string{}}
}

// Tier returns the tier of a single browser session
func (b *MemoryBackend) Tier(namespace string) *MemoryTier {
	return &MemoryTier{backend: b, namespace: namespace}
}

// Drop forgets everything held for the namespace
func (b *MemoryBackend) Drop(namespace string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.namespaces, namespace)
}

// Len returns the number of namespaces that currently hold credentials
func (b *MemoryBackend) Len() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.namespaces)
}

type MemoryTier struct {
	backend   *MemoryBackend
	namespace string
}

func (t *MemoryTier) Name() string {
	return "session"
}

func (t *MemoryTier) Get(_ context.Context, key models.CredentialKey) (string, error) {
	t.backend.lock.RLock()
	defer t.backend.lock.RUnlock()
	value, found := t.backend.namespaces[t.namespace][key]
	if !found {
		return "", gwerrors.ErrTokenNotFound
	}
	return value, nil
}

func (t *MemoryTier) Set(_ context.Context, key models.CredentialKey, value string) error {
	t.backend.lock.Lock()
	defer t.backend.lock.Unlock()
	values, found := t.backend.namespaces[t.namespace]
	if !found {
		values = map[models.CredentialKey]string{}
		t.backend.namespaces[t.namespace] = values
	}
	values[key] = value
	return nil
}

func (t *MemoryTier) Remove(_ context.Context, keys ...models.CredentialKey) error {
	t.backend.lock.Lock()
	defer t.backend.lock.Unlock()
	values, found := t.backend.namespaces[t.namespace]
	if !found {
		return nil
	}
	for _, key := range keys {
		delete(values, key)
	}
	if len(values) == 0 {
		delete(t.backend.namespaces, t.namespace)
	}
	return nil
}

func (t *MemoryTier) Clear(_ context.Context) error {
	t.backend.Drop(t.namespace)
	return nil
}
