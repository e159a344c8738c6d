package compute

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/compute-runtime/resource"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the package logger. It uses a no-op logger by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger replaces the logger of this package and of the resource package,
// which reports leaked objects. A nil logger restores the no-op default.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
	resource.SetLogger(l)
}
