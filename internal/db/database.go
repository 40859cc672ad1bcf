package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Options struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
	Logger      *zap.Logger
}

// Open connects to the configured dialect and brings the schema up to date.
func Open(options Options) (*gorm.DB, error) {
	logger := newGormLogger(options.Logger)

	switch strings.ToLower(strings.TrimSpace(options.Driver)) {
	case "", DriverSQLite:
		return openSQLite(options.SQLitePath, logger)
	case DriverPostgres, "postgresql":
		if strings.TrimSpace(options.PostgresDSN) == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		return openPostgres(options.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", options.Driver)
	}
}

func Ping(database *gorm.DB) error {
	sqlDB, err := database.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func newGormLogger(logger *zap.Logger) gormlogger.Interface {
	writer := log.New(os.Stdout, "\r\n", log.LstdFlags)
	colorful := true
	if logger != nil {
		writer = zap.NewStdLog(logger.Named("gorm"))
		colorful = false
	}

	return gormlogger.New(
		writer,
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  colorful,
		},
	)
}
