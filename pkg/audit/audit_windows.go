//go:build windows

package audit

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

// checkDiskSpace verifies sufficient disk space for audit log writes
func (l *Logger) checkDiskSpace() error {
	dir, err := windows.UTF16PtrFromString(l.path)
	if err != nil {
		return nil
	}
	var available, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(dir, &available, &total, &free); err != nil {
		l.logger.Warn("failed to check disk space for audit log", zap.Error(err))
		return nil
	}
	if available < MinAuditDiskSpace {
		return fmt.Errorf("audit: insufficient disk space: only %d bytes available, need at least %d",
			available, MinAuditDiskSpace)
	}
	return nil
}
