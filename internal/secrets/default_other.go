//go:build !darwin && !windows

package secrets

import "path/filepath"

func NewDefaultStore(dataDir string) (Store, error) {
	return NewFileStore(filepath.Join(dataDir, "secrets"))
}
