package calculator

import "fmt"

// Result is a computed value tagged with whether there was enough data for it.
type Result struct {
	Value  float64
	OK     bool
	Reason string
}

// Available wraps a successfully computed value.
func Available(v float64) Result { return Result{Value: v, OK: true} }

// Insufficient reports that a value could not be computed.
func Insufficient(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Or returns the value when available, def otherwise.
func (r Result) Or(def float64) float64 {
	if r.OK {
		return r.Value
	}
	return def
}

func (r Result) String() string {
	if r.OK {
		return fmt.Sprintf("%.6f", r.Value)
	}
	return "insufficient: " + r.Reason
}
