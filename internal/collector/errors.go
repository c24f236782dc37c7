package collector

import (
	"fmt"
	"strings"
)

// ParseError reports a message body that could not be parsed. The message
// is dropped; the rest of the fetch continues.
type ParseError struct {
	SeqNum uint32
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse message %d: %v", e.SeqNum, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TimeoutError is returned together with a partial result when the
// deadline passed before every requested message settled.
type TimeoutError struct {
	Settled int
	Pending []uint32
	Err     error
}

func (e *TimeoutError) Error() string {
	ids := make([]string, len(e.Pending))
	for i, seq := range e.Pending {
		ids[i] = fmt.Sprint(seq)
	}
	return fmt.Sprintf("timed out with %d messages settled and %d pending (%s)",
		e.Settled, len(e.Pending), strings.Join(ids, ","))
}

func (e *TimeoutError) Unwrap() error { return e.Err }
