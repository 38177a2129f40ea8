package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"
)

// FileProvider reads each secret from a file named after its ref under Dir,
// the layout of mounted Kubernetes and Docker secrets.
type FileProvider struct {
	Dir string
}

func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{Dir: dir}
}

func (p *FileProvider) GetSecret(ctx context.Context, ref string) (*memguard.Enclave, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ref == "" || !filepath.IsLocal(ref) {
		return nil, fmt.Errorf("invalid secret ref %q", ref)
	}
	data, err := os.ReadFile(filepath.Join(p.Dir, ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, ref)
		}
		return nil, fmt.Errorf("read secret %s: %w", ref, err)
	}
	return seal(data)
}
