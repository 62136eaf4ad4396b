package bootstrap

import (
	"context"

	"github.com/opensafely-core/reports/common/cache"
	"github.com/opensafely-core/reports/common/config"
	"github.com/opensafely-core/reports/common/db"
	"github.com/opensafely-core/reports/common/logger"
	"github.com/opensafely-core/reports/common/telemetry"
)

// Components holds all initialized service dependencies
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *db.DB
	Cache     cache.Cache
	Telemetry *telemetry.Telemetry

	// Internal
	cleanupFuncs []func() error
}

// addCleanup registers a cleanup function to run at shutdown, in reverse
// registration order
func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown runs all registered cleanup functions
func (c *Components) Shutdown(ctx context.Context) {
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil && c.Logger != nil {
			c.Logger.Error("cleanup failed", "error", err)
		}
	}
}
