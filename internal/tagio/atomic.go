package tagio

import (
	"fmt"
	"os"
	"path/filepath"
)

// atomicReplace writes data to a sibling temp file, fsyncs it, then renames
// it over path. This is the gap the teacher's saveFLACFile/objstore Put leave
// open (both write in place or create-then-write directly); §4.5 requires
// every TagIO write to go through a temp-file-then-rename so a process crash
// mid-write never leaves a half-written tag block on disk.
func atomicReplace(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tagio-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s into place: %w", path, err)
	}
	return nil
}
