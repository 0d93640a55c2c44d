package configurator

// Status classifies the result of an operation that may partially succeed.
type Status int

// Outcome statuses.
const (
	Succeeded Status = iota
	SucceededWithWarning
	Failed
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case SucceededWithWarning:
		return "succeeded with warning"
	default:
		return "failed"
	}
}

// Outcome is returned by operations with a best-effort step, such as the
// reload after a save or the acknowledgement of BOOTSEL.
type Outcome struct {
	Status Status

	// Warning explains a SucceededWithWarning outcome
	Warning string

	// Err is set for Failed outcomes
	Err error
}

// OK reports whether the operation succeeded, with or without a warning.
func (o Outcome) OK() bool {
	return o.Status != Failed
}

func succeeded() Outcome {
	return Outcome{Status: Succeeded}
}

func warned(msg string) Outcome {
	return Outcome{Status: SucceededWithWarning, Warning: msg}
}

func failed(err error) Outcome {
	return Outcome{Status: Failed, Err: err}
}
