package guest

import (
	"go.uber.org/zap"

	"github.com/wippyai/portflow/internal/logging"
)

var logSlot logging.Slot

// Logger returns the guest package's logger. It is a no-op logger until
// SetLogger is called.
func Logger() *zap.Logger {
	return logSlot.Logger()
}

// SetLogger configures the guest package's logger. Calls made afterwards pick it up.
func SetLogger(l *zap.Logger) {
	logSlot.Set(l)
}
