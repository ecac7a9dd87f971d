package logger

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.SugaredLogger

// Init builds the process-wide logger. Dev mode lowers the level to debug
// and colors the level tags; production logs at info.
func Init(isDev bool) {
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapcore.InfoLevel),
		Encoding:         "console",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:          "time",
			LevelKey:         "level",
			MessageKey:       "msg",
			ConsoleSeparator: " ",
			EncodeLevel:      zapcore.CapitalLevelEncoder,
			EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
				enc.AppendString(t.Format("2006-01-02 15:04:05"))
			},
		},
	}
	if isDev {
		cfg.Level.SetLevel(zapcore.DebugLevel)
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	Log = zap.Must(cfg.Build()).Sugar()
}

// ForJob returns a logger scoped to one queue job, tagging every line with
// the job id.
func ForJob(id string) *zap.SugaredLogger {
	return Log.With("job", id)
}

func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

func Info(args ...any)                  { Log.Info(args...) }
func Infof(format string, args ...any)  { Log.Infof(format, args...) }
func Warnf(format string, args ...any)  { Log.Warnf(format, args...) }
func Errorf(format string, args ...any) { Log.Errorf(format, args...) }
func Debugf(format string, args ...any) { Log.Debugf(format, args...) }
func Fatalf(format string, args ...any) { Log.Fatalf(format, args...) }
