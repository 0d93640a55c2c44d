package configurator

import "time"

// Progress phases.
const (
	PhaseWriting  = "writing"
	PhaseSaving   = "saving"
	PhaseComplete = "complete"
)

// Progress is passed to ProgressCallback while Apply runs.
type Progress struct {
	// Phase is one of PhaseWriting, PhaseSaving, PhaseComplete
	Phase string

	// Change is the change being written (zero outside PhaseWriting)
	Change ChangeKey

	// Current is the number of changes already written
	Current int

	// Total is the number of changes in the batch
	Total int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time since Apply started
	ElapsedTime time.Duration
}

// ProgressCallback is called synchronously from Apply and should return quickly.
//
// Example:
//
//	cfg := configurator.New(
//	    configurator.WithProgressCallback(func(p configurator.Progress) {
//	        fmt.Printf("[%s] %d/%d %s\n", p.Phase, p.Current, p.Total, p.Change)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface. Any value with these methods also
// satisfies protocol.Logger and serial.Logger.
//
// Example with the standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Warn(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Warn logs a recoverable problem with optional key-value pairs
	Warn(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
