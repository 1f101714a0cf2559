// Package correlator rebuilds conversations from a flat channel list.
//
// The switch only reports channels; which channels form a call, which side
// originated it and whether it went through a queue has to be inferred on
// every pass. A pass is never incremental: it always starts from a complete
// channel snapshot.
package correlator

import (
	"strconv"
	"strings"

	"github.com/sweeney/asterisk-proxy/internal/model"
)

// Scope limits a pass to some owners. The zero Scope means everything.
type Scope struct {
	Extensions map[string]bool
	Trunks     map[string]bool
}

// All reports whether the scope covers every owner.
func (s Scope) All() bool {
	return s.Extensions == nil && s.Trunks == nil
}

func (s Scope) wants(ch model.Channel) bool {
	if s.All() {
		return true
	}
	if ch.Extension != "" {
		return s.Extensions[ch.Extension]
	}
	return s.Trunks[ch.Trunk]
}

// RecordingLookup returns the recording flags for a conversation id.
type RecordingLookup func(convID string) (recording, muted bool)

// Result maps owner id to its conversations keyed by conversation id.
type Result struct {
	Extensions map[string]map[string]model.Conversation
	Trunks     map[string]map[string]model.Conversation
}

// Count returns the total number of conversations.
func (r Result) Count() int {
	n := 0
	for _, c := range r.Extensions {
		n += len(c)
	}
	for _, c := range r.Trunks {
		n += len(c)
	}
	return n
}

// ConversationID derives the conversation identity from its two legs.
// The destination is empty while the call is not bridged.
func ConversationID(source, dest string) string {
	return source + ">" + dest
}

// Correlate builds the conversations of every attributed channel in scope.
func Correlate(channels map[string]model.Channel, scope Scope, recording RecordingLookup) Result {
	res := Result{
		Extensions: make(map[string]map[string]model.Conversation),
		Trunks:     make(map[string]map[string]model.Conversation),
	}

	for id, ch := range channels {
		if IsQueueRoutingLeg(id, ch.BridgedChannel) {
			continue
		}
		if ch.Extension == "" && ch.Trunk == "" {
			continue
		}
		if !scope.wants(ch) {
			continue
		}

		conv := build(ch, channels)
		if recording != nil {
			rec, muted := recording(conv.ID)
			conv.SetRecording(rec, muted)
		} else {
			conv.SetRecording(false, false)
		}

		target := res.Extensions
		if ch.Extension == "" {
			target = res.Trunks
		}
		owner := ch.Owner()
		if target[owner] == nil {
			target[owner] = make(map[string]model.Conversation)
		}
		target[owner][conv.ID] = conv
	}
	return res
}

func build(own model.Channel, channels map[string]model.Channel) model.Conversation {
	src, dst := pair(own, channels)

	destID := ""
	if dst != nil {
		destID = dst.ID
	}

	conv := model.Conversation{
		ID:       ConversationID(src.ID, destID),
		Owner:    own.Owner(),
		Source:   src,
		Dest:     dst,
		Duration: own.Duration,
	}

	if leg := queueLegOf(src, dst); leg != "" {
		if p, ok := channels[PartnerLeg(leg)]; ok {
			conv.Queue = p.Queue
		}
	}
	if conv.Queue == "" {
		conv.Queue = own.Queue
	}

	var other *model.Channel
	if src.ID == own.ID {
		conv.Direction = model.DirectionOut
		other = dst
	} else {
		conv.Direction = model.DirectionIn
		other = &src
	}
	conv.CounterpartNum, conv.CounterpartName = counterpart(own, other, conv.Direction)
	return conv
}

// pair orders a channel and its bridged channel into source and destination.
func pair(ch model.Channel, channels map[string]model.Channel) (model.Channel, *model.Channel) {
	if ch.BridgedChannel == "" {
		return ch, nil
	}
	other, ok := channels[ch.BridgedChannel]
	if !ok {
		other = model.Channel{
			ID:             ch.BridgedChannel,
			BridgedChannel: ch.ID,
			CallerNum:      ch.ConnectedNum,
			CallerName:     ch.ConnectedName,
			Source:         !ch.Source,
		}
	}
	if isSourceOf(ch, other) {
		return ch, &other
	}
	return other, &ch
}

// isSourceOf decides which of two bridged legs originated the call. The
// answer must not depend on the argument order, so ties fall back to the
// older unique id, then to the leg whose owner placed the call (its caller
// number is its own), and last to the channel id.
func isSourceOf(a, b model.Channel) bool {
	if a.Source != b.Source {
		return a.Source
	}
	if a.UniqueID != "" && b.UniqueID != "" && a.UniqueID != b.UniqueID {
		return uniqueIDLess(a.UniqueID, b.UniqueID)
	}
	if ac, bc := callsAsOwner(a), callsAsOwner(b); ac != bc {
		return ac
	}
	return a.ID < b.ID
}

func callsAsOwner(ch model.Channel) bool {
	owner := ch.Owner()
	return owner != "" && ch.CallerNum == owner
}

// uniqueIDLess compares "<epoch>.<sequence>" ids numerically.
func uniqueIDLess(a, b string) bool {
	ae, as := splitUniqueID(a)
	be, bs := splitUniqueID(b)
	if ae != be {
		return ae < be
	}
	return as < bs
}

func splitUniqueID(id string) (int64, int64) {
	epoch, seq, _ := strings.Cut(id, ".")
	e, _ := strconv.ParseInt(epoch, 10, 64)
	s, _ := strconv.ParseInt(seq, 10, 64)
	return e, s
}

func queueLegOf(src model.Channel, dst *model.Channel) string {
	if isQueueLeg(src.BridgedChannel) {
		return src.BridgedChannel
	}
	if isQueueLeg(src.ID) {
		return src.ID
	}
	if dst != nil && isQueueLeg(dst.ID) {
		return dst.ID
	}
	return ""
}

func counterpart(own model.Channel, other *model.Channel, dir model.Direction) (string, string) {
	num, name := own.ConnectedNum, own.ConnectedName
	if other != nil && !isQueueLeg(other.ID) {
		if num == "" {
			num = other.CallerNum
		}
		if name == "" {
			name = other.CallerName
		}
	}
	if num == "" && dir == model.DirectionOut {
		num = own.Exten
	}
	return num, name
}
