package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// ArtifactSize is the on-disk size of one artifact.
type ArtifactSize struct {
	Path   string `json:"path"`
	Bytes  int64  `json:"bytes"`
	Exists bool   `json:"exists"`
}

// DiskUsageBytes returns the total size in bytes of the given paths.
// Each path may be a file or a directory (recursively summed). Missing paths contribute 0.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		size, err := Stat(p)
		if err != nil {
			return 0, err
		}
		total += size.Bytes
	}
	return total, nil
}

// ArtifactUsage stats each path and returns the per-path sizes with their total.
func ArtifactUsage(paths ...string) ([]ArtifactSize, int64, error) {
	sizes := make([]ArtifactSize, 0, len(paths))
	for _, p := range paths {
		size, err := Stat(p)
		if err != nil {
			return nil, 0, err
		}
		sizes = append(sizes, size)
	}
	total, err := DiskUsageBytes(paths...)
	if err != nil {
		return nil, 0, err
	}
	return sizes, total, nil
}

// Stat returns the size of a single artifact path.
func Stat(path string) (ArtifactSize, error) {
	out := ArtifactSize{Path: path}
	if path == "" {
		return out, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, err
	}
	out.Exists = true
	if !info.IsDir() {
		out.Bytes = info.Size()
		return out, nil
	}
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		out.Bytes += fi.Size()
		return nil
	})
	return out, err
}
