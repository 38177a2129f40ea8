// Package secrets resolves named secrets into memguard enclaves. Plaintext
// only exists while a caller has the enclave open.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/awnumar/memguard"
)

// ErrSecretNotFound is returned when a provider has no value for a ref.
var ErrSecretNotFound = errors.New("secret not found")

// Provider fetches secrets by reference.
type Provider interface {
	// GetSecret returns the sealed secret. The caller owns the enclave.
	GetSecret(ctx context.Context, ref string) (*memguard.Enclave, error)
}

// Credentials are the search-index connection secrets. The secret value is a
// JSON object; every field is optional and the backend decides what it needs.
type Credentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

// OpenCredentials unseals enclave and decodes it as Credentials. The locked
// buffer is destroyed before returning.
func OpenCredentials(enclave *memguard.Enclave) (Credentials, error) {
	var creds Credentials
	if enclave == nil {
		return creds, errors.New("empty secret")
	}
	buf, err := enclave.Open()
	if err != nil {
		return creds, fmt.Errorf("open enclave: %w", err)
	}
	defer buf.Destroy()

	if err := json.Unmarshal(buf.Bytes(), &creds); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}

// Purge destroys every live enclave key and locked buffer. Call it on
// process exit.
func Purge() {
	memguard.Purge()
}

// seal moves data into a new enclave and wipes data.
func seal(data []byte) (*memguard.Enclave, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		memguard.WipeBytes(data)
		return nil, fmt.Errorf("%w: empty value", ErrSecretNotFound)
	}
	return memguard.NewEnclave(data), nil
}
