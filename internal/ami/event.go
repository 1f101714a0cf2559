package ami

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Event is one AMI packet (event or response) as an ordered set of key-value pairs.
type Event struct {
	headers []header
}

type header struct {
	Key   string
	Value string
}

// NewEvent creates an Event from a flat list of key, value pairs.
func NewEvent(kvs ...string) Event {
	e := Event{}
	for i := 0; i+1 < len(kvs); i += 2 {
		e.headers = append(e.headers, header{Key: kvs[i], Value: kvs[i+1]})
	}
	return e
}

// Get returns the value for the given key, or empty string if not found.
// Keys are matched case-insensitively since Asterisk versions disagree on
// casing (Uniqueid vs UniqueID).
func (e Event) Get(key string) string {
	for _, h := range e.headers {
		if h.Key == key {
			return h.Value
		}
	}
	for _, h := range e.headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

// Has reports whether the key is present, even with an empty value.
func (e Event) Has(key string) bool {
	for _, h := range e.headers {
		if strings.EqualFold(h.Key, key) {
			return true
		}
	}
	return false
}

// Type returns the Event header value (the AMI event type).
func (e Event) Type() string {
	return e.Get("Event")
}

// ActionID returns the ActionID header used to correlate responses.
func (e Event) ActionID() string {
	return e.Get("ActionID")
}

// GetInt returns the integer value for the given key, or 0 if not found/parseable.
func (e Event) GetInt(key string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(e.Get(key)))
	return v
}

// GetFloat returns the float value for the given key, or 0 if not found/parseable.
func (e Event) GetFloat(key string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(e.Get(key)), 64)
	return v
}

// GetBool interprets the AMI truthy spellings (yes, true, 1, on).
func (e Event) GetBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(e.Get(key))) {
	case "yes", "true", "1", "on":
		return true
	}
	return false
}

// GetUnix returns the timestamp for the given key parsed as unix seconds
// (with optional fraction), or zero time.
func (e Event) GetUnix(key string) time.Time {
	f := e.GetFloat(key)
	if f <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Headers returns all headers as key-value pairs.
func (e Event) Headers() []header {
	return e.headers
}

// Fields returns the headers as a map. Later duplicates win.
func (e Event) Fields() map[string]string {
	m := make(map[string]string, len(e.headers))
	for _, h := range e.headers {
		if h.Key != "" {
			m[h.Key] = h.Value
		}
	}
	return m
}

// IsResponse returns true if this is an AMI response rather than an event.
func (e Event) IsResponse() bool {
	return e.Get("Response") != ""
}
