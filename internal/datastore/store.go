// Package datastore reads job state for the health monitor and persists
// health snapshots. SQLite and MySQL are supported through GORM.
package datastore

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/healthmon/internal/conf"
	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/logger"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	defaultSQLitePath = "healthmon.db"
)

// Store is the GORM backed job and snapshot store
type Store struct {
	DB     *gorm.DB
	driver string
	now    func() time.Time
	log    logger.Logger
}

// Open connects to the configured database and migrates the schema
func Open(settings *conf.DatabaseSettings) (*Store, error) {
	if settings == nil {
		return nil, errors.Newf("database settings are nil").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	var (
		dialector gorm.Dialector
		target    string
	)
	switch settings.Driver {
	case DriverSQLite, "":
		path := settings.SQLite.Path
		if path == "" {
			path = defaultSQLitePath
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.New(err).
					Component("datastore").
					Category(errors.CategoryDatabase).
					Context("path", path).
					Build()
			}
		}
		dialector = sqlite.Open(path)
		target = path
	case DriverMySQL:
		dsn := mysqlDSN(&settings.MySQL)
		dialector = mysql.Open(dsn)
		target = settings.MySQL.Host + "/" + settings.MySQL.Database
	default:
		return nil, errors.Newf("unsupported database driver %q", settings.Driver).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return openDialector(dialector, settings.Driver, target)
}

func openDialector(dialector gorm.Dialector, driver, target string) (*Store, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	log := GetLogger().With(logger.String("driver", driver))

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  newGormLogger(),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		log.Error("failed to open database", logger.String("target", target), logger.Error(err))
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("driver", driver).
			Build()
	}

	start := time.Now()
	if err := db.AutoMigrate(&Task{}, &HealthSnapshot{}); err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Build()
	}
	log.Info("database ready",
		logger.String("target", target),
		logger.Duration("migration_duration", time.Since(start)))

	return &Store{
		DB:     db,
		driver: driver,
		now:    time.Now,
		log:    log,
	}, nil
}

// mysqlDSN renders the connection string; times are parsed as UTC
func mysqlDSN(s *conf.MySQLSettings) string {
	cfg := mysqldriver.NewConfig()
	cfg.User = s.Username
	cfg.Passwd = s.Password
	cfg.Net = "tcp"
	port := s.Port
	if port == 0 {
		port = 3306
	}
	cfg.Addr = s.Host + ":" + strconv.Itoa(port)
	cfg.DBName = s.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Driver returns the configured database driver name
func (s *Store) Driver() string { return s.driver }

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// OpenConnections reports the number of established connections in the pool
func (s *Store) OpenConnections(_ context.Context) (int, error) {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return 0, err
	}
	return sqlDB.Stats().OpenConnections, nil
}

func (s *Store) dbError(err error, operation string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}
