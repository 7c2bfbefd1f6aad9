package datastore

import (
	"time"

	"github.com/tphakala/healthmon/internal/logger"
)

// slowQueryThreshold flags monitoring queries that may stall a cycle
const slowQueryThreshold = 500 * time.Millisecond

// GetLogger returns the datastore module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}

func newGormLogger() *logger.GormLoggerAdapter {
	return logger.NewGormLoggerAdapter(GetLogger().Module("gorm"), slowQueryThreshold)
}
