package framecast

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// DirSource cycles through the JPEG files of a directory in name order.
// It stands in for a real capture pipeline during testing and demos.
type DirSource struct {
	mu    sync.Mutex
	files []string
	next  int
}

// NewDirSource lists *.jpg/*.jpeg in dir.
func NewDirSource(dir string) (*DirSource, error) {
	var files []string
	for _, pattern := range []string{"*.jpg", "*.jpeg"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no jpeg files in %s", dir)
	}
	sort.Strings(files)
	return &DirSource{files: files}, nil
}

// Next returns the next frame, wrapping around at the end.
func (d *DirSource) Next(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	path := d.files[d.next]
	d.next = (d.next + 1) % len(d.files)
	d.mu.Unlock()
	return os.ReadFile(path)
}
