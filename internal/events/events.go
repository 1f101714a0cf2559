// Package events defines the domain events the engine emits and the
// sinks that receive them.
package events

import (
	"sync"

	"github.com/sweeney/asterisk-proxy/internal/model"
)

// Name identifies a domain event on the wire.
type Name string

const (
	NameExtenChanged        Name = "extenChanged"
	NameTrunkChanged        Name = "trunkChanged"
	NameQueueChanged        Name = "queueChanged"
	NameParkingChanged      Name = "parkingChanged"
	NameQueueMemberChanged  Name = "queueMemberChanged"
	NameExtenDialing        Name = "extenDialing"
	NameNewVoiceMessage     Name = "newVoiceMessage"
	NameUpdateVoiceMessages Name = "updateVoiceMessages"
	NameNewCdr              Name = "newCdr"
)

// Event is implemented by every domain event. The set is closed: only
// types in this package implement it.
type Event interface {
	Name() Name
	sealed()
}

type ExtenChanged struct {
	Extension model.Extension `json:"extension"`
}

type TrunkChanged struct {
	Trunk model.Trunk `json:"trunk"`
}

type QueueChanged struct {
	Queue model.Queue `json:"queue"`
}

type ParkingChanged struct {
	Parking model.Parking `json:"parking"`
}

type QueueMemberChanged struct {
	Member model.QueueMember `json:"member"`
}

// ExtenDialing notifies that an extension is ringing.
type ExtenDialing struct {
	Exten          string               `json:"dialingExten"`
	CallerNum      string               `json:"callerNum"`
	CallerName     string               `json:"callerName"`
	Channel        string               `json:"channel"`
	Queue          string               `json:"queue,omitempty"`
	CallerIdentity model.CallerIdentity `json:"callerIdentity"`
}

// VoiceMessages carries mailbox counters.
type VoiceMessages struct {
	Voicemail string `json:"voicemail"`
	Context   string `json:"context"`
	New       int    `json:"countNew"`
	Old       int    `json:"countOld"`
}

type NewVoiceMessage struct {
	VoiceMessages
}

type UpdateVoiceMessages struct {
	VoiceMessages
}

// NewCdr is a call detail record as delivered by the switch.
type NewCdr struct {
	Fields map[string]string `json:"cdr"`
}

func (ExtenChanged) Name() Name        { return NameExtenChanged }
func (TrunkChanged) Name() Name        { return NameTrunkChanged }
func (QueueChanged) Name() Name        { return NameQueueChanged }
func (ParkingChanged) Name() Name      { return NameParkingChanged }
func (QueueMemberChanged) Name() Name  { return NameQueueMemberChanged }
func (ExtenDialing) Name() Name        { return NameExtenDialing }
func (NewVoiceMessage) Name() Name     { return NameNewVoiceMessage }
func (UpdateVoiceMessages) Name() Name { return NameUpdateVoiceMessages }
func (NewCdr) Name() Name              { return NameNewCdr }

func (ExtenChanged) sealed()        {}
func (TrunkChanged) sealed()        {}
func (QueueChanged) sealed()        {}
func (ParkingChanged) sealed()      {}
func (QueueMemberChanged) sealed()  {}
func (ExtenDialing) sealed()        {}
func (NewVoiceMessage) sealed()     {}
func (UpdateVoiceMessages) sealed() {}
func (NewCdr) sealed()              {}

// Emitter receives domain events. Emit must not block the caller for long.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Multi fans an event out to several emitters in order.
type Multi []Emitter

func (m Multi) Emit(e Event) {
	for _, em := range m {
		if em != nil {
			em.Emit(e)
		}
	}
}

// Nop discards events.
var Nop Emitter = EmitterFunc(func(Event) {})

// Recorder keeps every event, for tests and debugging.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(n Name) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Name() == n {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
