package wire

import "time"

// Timestamp is an ISO-8601 (RFC3339, fractional seconds) string used on the
// wire so JSON messages stay human-diffable.
type Timestamp string

// NewTimestamp formats t as an ISO-8601 timestamp with fractional seconds.
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return ""
	}
	return Timestamp(t.Format(time.RFC3339Nano))
}

// TimestampNow returns the current instant as a Timestamp.
func TimestampNow() Timestamp {
	return NewTimestamp(time.Now())
}

// Time parses the timestamp, returning the zero time if it is empty or malformed.
func (t Timestamp) Time() time.Time {
	if t == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, string(t))
	if err != nil {
		return time.Time{}
	}
	return parsed
}
