package tokenmemory

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// writeAtomic writes data to path using the open-exclusive -> write ->
// fsync -> rename discipline (spec §5, §4.7): readers of path never
// observe a partially written file, only the old content or the complete
// new content. The temp file's name is suffixed with a random uuid so
// concurrent writers targeting the same path never collide on the
// intermediate file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newDiskError(err, "create directory %s", dir)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+".tmp-"+uuid.New().String())

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return newDiskError(err, "create temp file for %s", path)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return newDiskError(err, "write temp file for %s", path)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return newDiskError(err, "fsync temp file for %s", path)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return newDiskError(err, "close temp file for %s", path)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return newDiskError(err, "rename into place %s", path)
	}
	return nil
}
