package alerting

import "github.com/tphakala/healthmon/internal/logger"

// GetLogger returns the alerting module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("alerting")
}
