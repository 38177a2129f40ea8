package secrets

import (
	"context"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// StaticProvider serves secrets held in process. Standalone mode and tests
// use it.
type StaticProvider struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewStaticProvider(values map[string]string) *StaticProvider {
	p := &StaticProvider{values: make(map[string][]byte, len(values))}
	for ref, v := range values {
		p.values[ref] = []byte(v)
	}
	return p
}

// Set stores or replaces the value for ref.
func (p *StaticProvider) Set(ref, value string) {
	p.mu.Lock()
	p.values[ref] = []byte(value)
	p.mu.Unlock()
}

func (p *StaticProvider) GetSecret(ctx context.Context, ref string) (*memguard.Enclave, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	v, ok := p.values[ref]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, ref)
	}
	// seal wipes its input, so hand it a copy
	buf := make([]byte, len(v))
	copy(buf, v)
	return seal(buf)
}
