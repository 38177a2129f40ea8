package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/awnumar/memguard"
)

// EnvProvider reads secrets from environment variables. The ref
// "search/weaviate" with prefix "INKWELL_SECRET_" reads
// INKWELL_SECRET_SEARCH_WEAVIATE.
type EnvProvider struct {
	Prefix string
	lookup func(string) (string, bool)
}

func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix, lookup: os.LookupEnv}
}

// VarName returns the environment variable consulted for ref.
func (p *EnvProvider) VarName(ref string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, ref)
	return p.Prefix + name
}

func (p *EnvProvider) GetSecret(ctx context.Context, ref string) (*memguard.Enclave, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := p.VarName(ref)
	val, ok := p.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return seal([]byte(val))
}
