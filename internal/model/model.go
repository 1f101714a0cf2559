// Package model holds the PBX entities tracked by the proxy: extensions,
// trunks, queues, parkings and the conversations reconstructed from channels.
package model

import "time"

// Status is the presence of an extension or trunk as reported by the switch.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusBusy    Status = "busy"
	StatusRinging Status = "ringing"
	StatusOnHold  Status = "onhold"
	StatusDND     Status = "dnd"
)

// Tech is the channel technology of an endpoint.
type Tech string

const (
	TechSIP Tech = "sip"
	TechIAX Tech = "iax"
)

// Extension is a phone configured on the switch.
type Extension struct {
	ID            string                  `json:"exten"`
	Tech          Tech                    `json:"chanType"`
	Name          string                  `json:"name"`
	IP            string                  `json:"ip"`
	Port          string                  `json:"port"`
	UserAgent     string                  `json:"sipuseragent"`
	Context       string                  `json:"context"`
	Status        Status                  `json:"status"`
	DND           bool                    `json:"dnd"`
	CF            string                  `json:"cf"`
	CFVM          string                  `json:"cfVm"`
	WebSocket     bool                    `json:"websocket"`
	Conversations map[string]Conversation `json:"conversations"`
}

// Clone returns a deep copy.
func (e *Extension) Clone() Extension {
	c := *e
	c.Conversations = cloneConversations(e.Conversations)
	return c
}

// Trunk is an outbound/inbound provider line.
type Trunk struct {
	ID            string                  `json:"exten"`
	Tech          Tech                    `json:"chanType"`
	Name          string                  `json:"name"`
	IP            string                  `json:"ip"`
	Port          string                  `json:"port"`
	MaxChannels   int                     `json:"maxChannels"`
	Status        Status                  `json:"status"`
	Conversations map[string]Conversation `json:"conversations"`
}

// Clone returns a deep copy.
func (t *Trunk) Clone() Trunk {
	c := *t
	c.Conversations = cloneConversations(t.Conversations)
	return c
}

func cloneConversations(in map[string]Conversation) map[string]Conversation {
	out := make(map[string]Conversation, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}

// MemberType is how a queue member is provisioned.
type MemberType string

const (
	MemberStatic   MemberType = "static"
	MemberDynamic  MemberType = "dynamic"
	MemberRealtime MemberType = "realtime"
)

// PauseEvent is one pause or unpause of a queue member.
type PauseEvent struct {
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// QueueMember is an agent in a queue.
type QueueMember struct {
	ID            string     `json:"member"`
	Queue         string     `json:"queue"`
	Name          string     `json:"name"`
	Type          MemberType `json:"type"`
	Paused        bool       `json:"paused"`
	PausedReason  string     `json:"pausedReason,omitempty"`
	LoggedIn      bool       `json:"loggedIn"`
	CallsTaken    int        `json:"callsTakenCount"`
	LastCall      time.Time  `json:"lastCallTimestamp"`
	LastPausedIn  PauseEvent `json:"lastPausedIn"`
	LastPausedOut PauseEvent `json:"lastPausedOut"`
}

// QueueWaitingCaller is a caller holding in a queue.
type QueueWaitingCaller struct {
	Channel  string    `json:"channel"`
	Queue    string    `json:"queue"`
	Num      string    `json:"num"`
	Name     string    `json:"name"`
	Position int       `json:"position"`
	Wait     int       `json:"waitingTime"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Queue is an ACD queue with its rolling statistics.
type Queue struct {
	ID               string                        `json:"queue"`
	Name             string                        `json:"name"`
	Strategy         string                        `json:"strategy"`
	AvgHoldTime      int                           `json:"avgHoldTime"`
	AvgTalkTime      int                           `json:"avgTalkTime"`
	Completed        int                           `json:"completedCallsCount"`
	Abandoned        int                           `json:"abandonedCallsCount"`
	ServiceLevelTime int                           `json:"serviceLevelTimePeriod"`
	ServiceLevelPerc float64                       `json:"serviceLevelPercentage"`
	DynamicMembers   []string                      `json:"dynamicMembers,omitempty"`
	Members          map[string]QueueMember        `json:"members"`
	WaitingCallers   map[string]QueueWaitingCaller `json:"waitingCallers"`
}

// Clone returns a deep copy.
func (q *Queue) Clone() Queue {
	c := *q
	c.DynamicMembers = append([]string(nil), q.DynamicMembers...)
	c.Members = make(map[string]QueueMember, len(q.Members))
	for k, v := range q.Members {
		c.Members[k] = v
	}
	c.WaitingCallers = make(map[string]QueueWaitingCaller, len(q.WaitingCallers))
	for k, v := range q.WaitingCallers {
		c.WaitingCallers[k] = v
	}
	return c
}

// ParkedCaller is the call held in a parking slot.
type ParkedCaller struct {
	Channel  string    `json:"channel"`
	Parking  string    `json:"parking"`
	Num      string    `json:"callerNum"`
	Name     string    `json:"callerName"`
	ParkedAt time.Time `json:"parkedAt"`
	Timeout  int       `json:"timeout"`
}

// Parking is a parking slot; it holds at most one caller.
type Parking struct {
	ID     string        `json:"parking"`
	Name   string        `json:"name"`
	Caller *ParkedCaller `json:"parkedCaller,omitempty"`
}

// Clone returns a deep copy.
func (p *Parking) Clone() Parking {
	c := *p
	if p.Caller != nil {
		pc := *p.Caller
		c.Caller = &pc
	}
	return c
}

// CallerNote is a free text note attached to a calling number.
type CallerNote struct {
	ID          int64     `json:"id"`
	Creator     string    `json:"creator"`
	Text        string    `json:"text"`
	Public      bool      `json:"public"`
	Reservation bool      `json:"reservation"`
	CreatedAt   time.Time `json:"creation"`
}

// Contact is a phonebook entry matching a calling number.
type Contact struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Company string `json:"company"`
	Number  string `json:"number"`
	Owner   string `json:"owner"`
}

// CallerIdentity is the best-effort enrichment of a calling number.
type CallerIdentity struct {
	Number   string       `json:"number"`
	Notes    []CallerNote `json:"callerNotes,omitempty"`
	Contacts []Contact    `json:"phonebook,omitempty"`
}

// DisplayName returns the first contact name or company, if any.
func (c CallerIdentity) DisplayName() string {
	for _, ct := range c.Contacts {
		if ct.Name != "" {
			return ct.Name
		}
		if ct.Company != "" {
			return ct.Company
		}
	}
	return ""
}
