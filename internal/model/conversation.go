package model

// Direction of a conversation as seen by its owner.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Conversation is the owner-scoped view of a call, built from a pair of
// channels. Trunks and extensions share the same shape.
type Conversation struct {
	ID              string    `json:"id"`
	Owner           string    `json:"owner"`
	Source          Channel   `json:"chSource"`
	Dest            *Channel  `json:"chDest,omitempty"`
	Queue           string    `json:"throughQueue,omitempty"`
	Recording       bool      `json:"-"`
	RecordingMute   bool      `json:"-"`
	RecordingState  string    `json:"recording"`
	Direction       Direction `json:"direction"`
	CounterpartNum  string    `json:"counterpartNum"`
	CounterpartName string    `json:"counterpartName"`
	Duration        int       `json:"duration"`
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	if c.Dest != nil {
		d := *c.Dest
		c.Dest = &d
	}
	return c
}

// Connected reports whether both legs are known.
func (c Conversation) Connected() bool {
	return c.Dest != nil
}

// OwnChannel returns the leg that belongs to owner, and whether the owner
// is the originating side.
func (c Conversation) OwnChannel(owner string) (ch Channel, isSource bool, ok bool) {
	if c.Source.Owner() == owner {
		return c.Source, true, true
	}
	if c.Dest != nil && c.Dest.Owner() == owner {
		return *c.Dest, false, true
	}
	// Fall back to the direction computed at reconciliation time.
	if c.Owner == owner {
		if c.Direction == DirectionOut {
			return c.Source, true, true
		}
		if c.Dest != nil {
			return *c.Dest, false, true
		}
	}
	return Channel{}, false, false
}

// Counterpart returns the leg opposite to owner.
func (c Conversation) Counterpart(owner string) (Channel, bool) {
	_, isSource, ok := c.OwnChannel(owner)
	if !ok {
		return Channel{}, false
	}
	if isSource {
		if c.Dest == nil {
			return Channel{}, false
		}
		return *c.Dest, true
	}
	return c.Source, true
}

// SetRecording updates the recording flags and the serialized state.
func (c *Conversation) SetRecording(recording, muted bool) {
	c.Recording = recording
	c.RecordingMute = recording && muted
	switch {
	case c.RecordingMute:
		c.RecordingState = "mute"
	case c.Recording:
		c.RecordingState = "true"
	default:
		c.RecordingState = "false"
	}
}
