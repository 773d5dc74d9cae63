package fluentfwd

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var internalLogger atomic.Pointer[zap.Logger]

func init() {
	internalLogger.Store(newInternalLogger())
}

func newInternalLogger() *zap.Logger {
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zapcore.DebugLevel)
	return zap.New(core).Named("fluentfwd")
}

// InternalLogger returns the Logger used to write out internal logs, where logs
// get written when something goes wrong in the logging stack itself.
//
// It must never be a logger that forwards through this package, or failures
// would recurse.
func InternalLogger() *zap.Logger { return internalLogger.Load() }

// SetInternalLogger makes l the internal logger. A nil l restores the default
// stderr logger.
func SetInternalLogger(l *zap.Logger) {
	if l == nil {
		l = newInternalLogger()
	}
	internalLogger.Store(l)
}
