package notification

import "github.com/tphakala/healthmon/internal/logger"

// GetLogger returns the module logger for notification delivery
func GetLogger() logger.Logger {
	return logger.Global().Module("notification")
}
