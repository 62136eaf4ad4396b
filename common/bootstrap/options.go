package bootstrap

import (
	"github.com/opensafely-core/reports/common/config"
	"github.com/opensafely-core/reports/common/db"
	"github.com/opensafely-core/reports/common/logger"
)

// Option configures Setup
type Option func(*options)

type options struct {
	skipDB        bool
	skipCache     bool
	skipTelemetry bool
	customConfig  *config.Config
	customLogger  *logger.Logger
	dbInitHook    func(*db.DB) error
}

func defaultOptions() *options {
	return &options{}
}

// WithoutDB skips database initialization
func WithoutDB() Option {
	return func(o *options) { o.skipDB = true }
}

// WithoutCache skips cache initialization
func WithoutCache() Option {
	return func(o *options) { o.skipCache = true }
}

// WithoutTelemetry skips telemetry initialization
func WithoutTelemetry() Option {
	return func(o *options) { o.skipTelemetry = true }
}

// WithConfig supplies a pre-built config instead of loading from env
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.customConfig = cfg }
}

// WithLogger supplies a pre-built logger
func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.customLogger = log }
}

// WithDBInitHook runs fn once the database pool is up, before anything else
// uses it. Used to apply the schema in development.
func WithDBInitHook(fn func(*db.DB) error) Option {
	return func(o *options) { o.dbInitHook = fn }
}
