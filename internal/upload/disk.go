package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/xid"

	"github.com/volfir1/gadget-galaxy-api/internal/model"
)

// DiskStore writes images under a local directory served at /uploads/.
// It stands in for the hosted image service during development.
type DiskStore struct {
	root    string
	baseURL string
}

// NewDiskStore creates the root directory if needed.
func NewDiskStore(root, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("upload: creating upload dir %s: %w", root, err)
	}
	return &DiskStore{root: root, baseURL: baseURL}, nil
}

func (d *DiskStore) Put(ctx context.Context, data []byte, name, ext string) (model.Image, error) {
	id := fmt.Sprintf("%s-%s", name, xid.New().String())
	filename := id + ext

	if err := os.WriteFile(filepath.Join(d.root, filename), data, 0o644); err != nil {
		return model.Image{}, fmt.Errorf("upload: writing %s: %w", filename, err)
	}

	return model.Image{
		PublicID: id,
		URL:      d.baseURL + "/uploads/" + filename,
	}, nil
}
