package app

import (
	"github.com/tphakala/healthmon/internal/buildinfo"
	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/logger"
)

// Context is shared by the CLI commands. The root command fills Settings
// before any subcommand runs.
type Context struct {
	Build      *buildinfo.Context
	ConfigPath string
	Debug      bool
	Quiet      bool // only warnings and errors on the console, for report commands
	Settings   *conf.Settings
}

// NewContext creates a CLI context for the given build
func NewContext(build *buildinfo.Context) *Context {
	return &Context{Build: build}
}

// Load reads and validates the configuration and installs the global logger
func (c *Context) Load() error {
	settings, err := conf.Load(c.ConfigPath)
	if err != nil {
		return err
	}
	if c.Debug {
		settings.Debug = true
	}
	switch {
	case settings.Debug:
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	case c.Quiet:
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelWarn)
		}
	}

	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return err
	}
	logger.SetGlobal(cl)

	c.Settings = settings
	return nil
}
