package monitor

import "github.com/tphakala/healthmon/internal/logger"

// GetLogger returns the module logger for system monitor
func GetLogger() logger.Logger {
	return logger.Global().Module("monitor")
}
