//go:build windows

package mcp

import (
	"fmt"
	"os"
)

// openPolicyFile opens path. Windows has no O_NOFOLLOW, so a symlinked
// policy is rejected by checking the link itself first.
func openPolicyFile(path string) (*os.File, error) {
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, ErrPolicySymlink
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to open policy file: %w", err)
	}
	return f, nil
}

// checkPolicyFile is a no-op. Windows guards the file with ACLs, which
// Go's permission bits do not reflect.
func checkPolicyFile(_ os.FileInfo) error {
	return nil
}
