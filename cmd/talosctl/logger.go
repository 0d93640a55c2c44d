package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// zeroLogger adapts zerolog to the key/value Logger interface of the library
// packages.
type zeroLogger struct {
	log zerolog.Logger
}

func newLogger(w io.Writer, verbose bool) zeroLogger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zeroLogger{log: zerolog.New(out).Level(level).With().Timestamp().Logger()}
}

func (l zeroLogger) Debug(msg string, keysAndValues ...interface{}) {
	fields(l.log.Debug(), keysAndValues).Msg(msg)
}

func (l zeroLogger) Info(msg string, keysAndValues ...interface{}) {
	fields(l.log.Info(), keysAndValues).Msg(msg)
}

func (l zeroLogger) Warn(msg string, keysAndValues ...interface{}) {
	fields(l.log.Warn(), keysAndValues).Msg(msg)
}

func (l zeroLogger) Error(msg string, keysAndValues ...interface{}) {
	fields(l.log.Error(), keysAndValues).Msg(msg)
}

// fields adds alternating key/value pairs to e. A trailing key without a
// value is logged under "extra".
func fields(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	if e == nil {
		return e
	}
	for i := 0; i < len(kv); i += 2 {
		if i+1 == len(kv) {
			e = e.Interface("extra", kv[i])
			break
		}
		key := fmt.Sprint(kv[i])
		switch v := kv[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case string:
			e = e.Str(key, v)
		case int:
			e = e.Int(key, v)
		case bool:
			e = e.Bool(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}
