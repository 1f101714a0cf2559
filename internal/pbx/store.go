package pbx

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/correlator"
	"github.com/sweeney/asterisk-proxy/internal/model"
)

// Store owns all mutable PBX state. Every access goes through its lock, so
// mutation is serialized no matter which goroutine triggered it. Getters
// return copies.
type Store struct {
	mu sync.RWMutex

	extensions map[string]*model.Extension
	trunks     map[string]*model.Trunk
	queues     map[string]*model.Queue
	parkings   map[string]*model.Parking

	// parked channel -> parking id
	parked map[string]string
	// conversation id -> muted; presence means the recording is active
	recordings map[string]bool
	// calling number -> best-effort identity; entries are never evicted
	callerIdentity map[string]model.CallerIdentity

	logger *zap.Logger
}

// NewStore creates an empty store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		extensions:     make(map[string]*model.Extension),
		trunks:         make(map[string]*model.Trunk),
		queues:         make(map[string]*model.Queue),
		parkings:       make(map[string]*model.Parking),
		parked:         make(map[string]string),
		recordings:     make(map[string]bool),
		callerIdentity: make(map[string]model.CallerIdentity),
		logger:         logger,
	}
}

// --- Extensions ---

// UpsertExtension inserts or replaces an extension, keeping its conversations.
func (s *Store) UpsertExtension(e model.Extension) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.extensions[e.ID]; ok && e.Conversations == nil {
		e.Conversations = old.Conversations
	}
	if e.Conversations == nil {
		e.Conversations = make(map[string]model.Conversation)
	}
	s.extensions[e.ID] = &e
}

// Extension returns a copy of an extension.
func (s *Store) Extension(id string) (model.Extension, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.extensions[id]
	if !ok {
		return model.Extension{}, false
	}
	return e.Clone(), true
}

// HasExtension reports whether id is a known extension.
func (s *Store) HasExtension(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.extensions[id]
	return ok
}

// Extensions returns copies of all extensions.
func (s *Store) Extensions() map[string]model.Extension {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Extension, len(s.extensions))
	for id, e := range s.extensions {
		out[id] = e.Clone()
	}
	return out
}

// PatchExtension mutates an extension in place. A missing extension is
// logged and ignored.
func (s *Store) PatchExtension(id string, fn func(*model.Extension)) (model.Extension, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.extensions[id]
	if !ok {
		s.logger.Warn("patching unknown extension", zap.String("exten", id))
		return model.Extension{}, false
	}
	fn(e)
	return e.Clone(), true
}

// --- Trunks ---

// UpsertTrunk inserts or replaces a trunk, keeping its conversations.
func (s *Store) UpsertTrunk(t model.Trunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.trunks[t.ID]; ok && t.Conversations == nil {
		t.Conversations = old.Conversations
	}
	if t.Conversations == nil {
		t.Conversations = make(map[string]model.Conversation)
	}
	s.trunks[t.ID] = &t
}

// Trunk returns a copy of a trunk.
func (s *Store) Trunk(id string) (model.Trunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trunks[id]
	if !ok {
		return model.Trunk{}, false
	}
	return t.Clone(), true
}

// HasTrunk reports whether id is a known trunk.
func (s *Store) HasTrunk(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.trunks[id]
	return ok
}

// Trunks returns copies of all trunks.
func (s *Store) Trunks() map[string]model.Trunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Trunk, len(s.trunks))
	for id, t := range s.trunks {
		out[id] = t.Clone()
	}
	return out
}

// PatchTrunk mutates a trunk in place. A missing trunk is logged and ignored.
func (s *Store) PatchTrunk(id string, fn func(*model.Trunk)) (model.Trunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trunks[id]
	if !ok {
		s.logger.Warn("patching unknown trunk", zap.String("trunk", id))
		return model.Trunk{}, false
	}
	fn(t)
	return t.Clone(), true
}

// --- Queues ---

// UpsertQueue inserts or replaces a queue.
func (s *Store) UpsertQueue(q model.Queue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.Members == nil {
		q.Members = make(map[string]model.QueueMember)
	}
	if q.WaitingCallers == nil {
		q.WaitingCallers = make(map[string]model.QueueWaitingCaller)
	}
	s.queues[q.ID] = &q
}

// Queue returns a copy of a queue.
func (s *Store) Queue(id string) (model.Queue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.queues[id]
	if !ok {
		return model.Queue{}, false
	}
	return q.Clone(), true
}

// HasQueue reports whether id is a known queue.
func (s *Store) HasQueue(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.queues[id]
	return ok
}

// Queues returns copies of all queues.
func (s *Store) Queues() map[string]model.Queue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Queue, len(s.queues))
	for id, q := range s.queues {
		out[id] = q.Clone()
	}
	return out
}

// QueueIDs returns the queue ids in order.
func (s *Store) QueueIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.queues))
	for id := range s.queues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PatchQueue mutates a queue in place. A missing queue is logged and ignored.
func (s *Store) PatchQueue(id string, fn func(*model.Queue)) (model.Queue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[id]
	if !ok {
		s.logger.Warn("patching unknown queue", zap.String("queue", id))
		return model.Queue{}, false
	}
	fn(q)
	return q.Clone(), true
}

// ReplaceQueueMember removes the member and adds the new one in its place.
// Members are never patched field by field.
func (s *Store) ReplaceQueueMember(m model.QueueMember) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[m.Queue]
	if !ok {
		s.logger.Warn("member for unknown queue", zap.String("queue", m.Queue), zap.String("member", m.ID))
		return false
	}
	delete(q.Members, m.ID)
	q.Members[m.ID] = m
	return true
}

// PatchQueueMember mutates an existing member. Used only for the fields
// that events report alone (paused, logged in) and for pause history.
func (s *Store) PatchQueueMember(queueID, memberID string, fn func(*model.QueueMember)) (model.QueueMember, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[queueID]
	if !ok {
		s.logger.Warn("member of unknown queue", zap.String("queue", queueID), zap.String("member", memberID))
		return model.QueueMember{}, false
	}
	m, ok := q.Members[memberID]
	if !ok {
		s.logger.Warn("unknown queue member", zap.String("queue", queueID), zap.String("member", memberID))
		return model.QueueMember{}, false
	}
	fn(&m)
	q.Members[memberID] = m
	return m, true
}

// ReplaceWaitingCallers swaps the waiting callers of a queue wholesale.
func (s *Store) ReplaceWaitingCallers(queueID string, callers map[string]model.QueueWaitingCaller) (model.Queue, bool) {
	return s.PatchQueue(queueID, func(q *model.Queue) {
		if callers == nil {
			callers = make(map[string]model.QueueWaitingCaller)
		}
		q.WaitingCallers = callers
	})
}

// --- Parkings ---

// UpsertParking inserts or replaces a parking.
func (s *Store) UpsertParking(p model.Parking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parkings[p.ID] = &p
	if p.Caller != nil {
		s.parked[p.Caller.Channel] = p.ID
	}
}

// Parking returns a copy of a parking.
func (s *Store) Parking(id string) (model.Parking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parkings[id]
	if !ok {
		return model.Parking{}, false
	}
	return p.Clone(), true
}

// Parkings returns copies of all parkings.
func (s *Store) Parkings() map[string]model.Parking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Parking, len(s.parkings))
	for id, p := range s.parkings {
		out[id] = p.Clone()
	}
	return out
}

// SetParkedCaller puts a caller in a parking, or empties it when pc is nil.
func (s *Store) SetParkedCaller(parkingID string, pc *model.ParkedCaller) (model.Parking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parkings[parkingID]
	if !ok {
		s.logger.Warn("unknown parking", zap.String("parking", parkingID))
		return model.Parking{}, false
	}
	if p.Caller != nil {
		delete(s.parked, p.Caller.Channel)
	}
	p.Caller = pc
	if pc != nil {
		s.parked[pc.Channel] = parkingID
	}
	return p.Clone(), true
}

// ParkingOfChannel returns the parking holding a channel.
func (s *Store) ParkingOfChannel(channel string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.parked[channel]
	return id, ok
}

// --- Conversations ---

// ApplyConversations installs a reconciliation result. Owners in scope
// without conversations in the result are emptied. It returns the owners
// that changed: every owner of a targeted scope, and for a full pass the
// owners that had or now have conversations.
func (s *Store) ApplyConversations(res correlator.Result, scope correlator.Scope) (exts, trunks []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.extensions {
		if !scope.All() && !scope.Extensions[id] {
			continue
		}
		convs := res.Extensions[id]
		if convs == nil {
			convs = make(map[string]model.Conversation)
		}
		s.stampRecording(convs)
		if !scope.All() || len(convs) > 0 || len(e.Conversations) > 0 {
			exts = append(exts, id)
		}
		e.Conversations = convs
	}
	for id, t := range s.trunks {
		if !scope.All() && !scope.Trunks[id] {
			continue
		}
		convs := res.Trunks[id]
		if convs == nil {
			convs = make(map[string]model.Conversation)
		}
		s.stampRecording(convs)
		if !scope.All() || len(convs) > 0 || len(t.Conversations) > 0 {
			trunks = append(trunks, id)
		}
		t.Conversations = convs
	}
	sort.Strings(exts)
	sort.Strings(trunks)
	return exts, trunks
}

// stampRecording sets the recording flags from the recording set as it is
// now. The result may have been correlated before a recording started or
// stopped. Callers hold s.mu.
func (s *Store) stampRecording(convs map[string]model.Conversation) {
	for id, c := range convs {
		muted, recording := s.recordings[id]
		c.SetRecording(recording, muted)
		convs[id] = c
	}
}

// Conversation returns one conversation of an extension.
func (s *Store) Conversation(extID, convID string) (model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.extensions[extID]
	if !ok {
		return model.Conversation{}, ErrEndpointNotFound
	}
	c, ok := e.Conversations[convID]
	if !ok {
		return model.Conversation{}, ErrConversationNotFound
	}
	return c.Clone(), nil
}

// ConversationCount returns the number of conversations of all owners.
func (s *Store) ConversationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.extensions {
		n += len(e.Conversations)
	}
	for _, t := range s.trunks {
		n += len(t.Conversations)
	}
	return n
}

// --- Recording set ---

// RecordingState returns whether a conversation is being recorded and muted.
func (s *Store) RecordingState(convID string) (recording, muted bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	muted, recording = s.recordings[convID]
	return recording, muted
}

// SetRecording adds or updates a conversation in the recording set.
func (s *Store) SetRecording(convID string, muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordings[convID] = muted
}

// RemoveRecording drops a conversation from the recording set.
func (s *Store) RemoveRecording(convID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recordings, convID)
}

// RecordingIDs returns the conversation ids being recorded.
func (s *Store) RecordingIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.recordings))
	for id := range s.recordings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MarkRecording updates the flags of every live conversation with the id.
// The same call may be owned by two extensions, or by a trunk and an
// extension; all of them are returned.
func (s *Store) MarkRecording(convID string, recording, muted bool) (exts []model.Extension, trunks []model.Trunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.extensions {
		if c, ok := e.Conversations[convID]; ok {
			c.SetRecording(recording, muted)
			e.Conversations[convID] = c
			exts = append(exts, e.Clone())
		}
	}
	for _, t := range s.trunks {
		if c, ok := t.Conversations[convID]; ok {
			c.SetRecording(recording, muted)
			t.Conversations[convID] = c
			trunks = append(trunks, t.Clone())
		}
	}
	sort.Slice(exts, func(i, j int) bool { return exts[i].ID < exts[j].ID })
	sort.Slice(trunks, func(i, j int) bool { return trunks[i].ID < trunks[j].ID })
	return exts, trunks
}

// --- Caller identity cache ---

// SetCallerIdentity stores the lookup result for a calling number.
func (s *Store) SetCallerIdentity(num string, ci model.CallerIdentity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callerIdentity[num] = ci
}

// CallerIdentity returns the cached identity of a calling number.
func (s *Store) CallerIdentity(num string) (model.CallerIdentity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ci, ok := s.callerIdentity[num]
	return ci, ok
}
