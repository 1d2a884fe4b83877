package mapping

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage is the binary file store used by the asset mapper. Paths are
// confined to the configured root.
type Storage struct {
	Root string
}

// EnsureFolder creates the folder for a relative path if it does not
// exist and returns its absolute path.
func (s *Storage) EnsureFolder(rel string) (string, error) {
	dir, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create folder %q: %w", rel, err)
	}
	return dir, nil
}

// WriteFile writes contents to folder/name, reusing an existing file
// instead of overwriting it. Returns the path and whether a new file was
// created.
func (s *Storage) WriteFile(folder, name string, contents []byte) (string, bool, error) {
	path := filepath.Join(folder, name)
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	} else if !os.IsNotExist(err) {
		return "", false, fmt.Errorf("stat %q: %w", path, err)
	}
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		return "", false, fmt.Errorf("write %q: %w", path, err)
	}
	return path, true, nil
}

func (s *Storage) resolve(rel string) (string, error) {
	rel = strings.TrimPrefix(rel, "/")
	dir := filepath.Join(s.Root, filepath.FromSlash(rel))
	root := filepath.Clean(s.Root)
	if dir != root && !strings.HasPrefix(dir, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes storage root", rel)
	}
	return dir, nil
}
