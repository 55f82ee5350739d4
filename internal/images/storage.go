package images

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Disk stores images under root/folder on the local file system.
type Disk struct {
	root string
}

func NewDisk(root string) *Disk {
	return &Disk{root: root}
}

func (d *Disk) Root() string { return d.root }

func (d *Disk) Save(_ context.Context, folder, filename string, data []byte) error {
	dir := filepath.Join(d.root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, filepath.Base(filename)), data, 0o644)
}

// Remove deletes a file. A file that is already gone is not an error.
func (d *Disk) Remove(_ context.Context, folder, filename string) error {
	err := os.Remove(filepath.Join(d.root, folder, filepath.Base(filename)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
