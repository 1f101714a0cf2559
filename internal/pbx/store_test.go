package pbx

import (
	"errors"
	"testing"

	"github.com/sweeney/asterisk-proxy/internal/correlator"
	"github.com/sweeney/asterisk-proxy/internal/model"
)

func newQueueStore() *Store {
	s := NewStore(nil)
	s.UpsertQueue(model.Queue{ID: "401", Members: map[string]model.QueueMember{
		"201": {ID: "201", Queue: "401", Paused: true, PausedReason: "lunch", CallsTaken: 9},
	}})
	return s
}

func TestPatchUnknownEntitiesIsNoop(t *testing.T) {
	s := NewStore(nil)

	called := false
	if _, ok := s.PatchExtension("999", func(*model.Extension) { called = true }); ok {
		t.Error("expected no extension")
	}
	if _, ok := s.PatchTrunk("999", func(*model.Trunk) { called = true }); ok {
		t.Error("expected no trunk")
	}
	if _, ok := s.PatchQueue("999", func(*model.Queue) { called = true }); ok {
		t.Error("expected no queue")
	}
	if called {
		t.Error("patch function must not run for unknown ids")
	}
	if len(s.Extensions()) != 0 || len(s.Queues()) != 0 {
		t.Error("nothing must be created")
	}
}

func TestReplaceQueueMemberDropsOldFields(t *testing.T) {
	s := newQueueStore()

	if !s.ReplaceQueueMember(model.QueueMember{ID: "201", Queue: "401", LoggedIn: true}) {
		t.Fatal("expected replace")
	}
	q, _ := s.Queue("401")
	m := q.Members["201"]
	if m.Paused || m.PausedReason != "" || m.CallsTaken != 0 || !m.LoggedIn {
		t.Errorf("expected a fresh member, got %+v", m)
	}

	if s.ReplaceQueueMember(model.QueueMember{ID: "201", Queue: "999"}) {
		t.Error("unknown queue must be rejected")
	}
}

func TestPatchQueueMemberUnknownMember(t *testing.T) {
	s := newQueueStore()
	if _, ok := s.PatchQueueMember("401", "202", func(m *model.QueueMember) { m.Paused = true }); ok {
		t.Error("expected unknown member")
	}
	q, _ := s.Queue("401")
	if _, ok := q.Members["202"]; ok {
		t.Error("member must not be created")
	}
}

func TestReadsAreCopies(t *testing.T) {
	s := newQueueStore()
	q, _ := s.Queue("401")
	q.Members["201"] = model.QueueMember{ID: "201", Name: "changed"}

	q2, _ := s.Queue("401")
	if q2.Members["201"].Name == "changed" {
		t.Error("mutating a read must not reach the store")
	}
}

func TestApplyConversationsTargeted(t *testing.T) {
	s := NewStore(nil)
	conv := model.Conversation{ID: "a>b"}
	s.UpsertExtension(model.Extension{ID: "201", Conversations: map[string]model.Conversation{"a>b": conv}})
	s.UpsertExtension(model.Extension{ID: "202", Conversations: map[string]model.Conversation{"a>b": conv}})
	s.UpsertExtension(model.Extension{ID: "203"})

	exts, trunks := s.ApplyConversations(correlator.Result{}, extScope("201", "203"))
	if len(exts) != 2 || exts[0] != "201" || exts[1] != "203" || len(trunks) != 0 {
		t.Errorf("unexpected changed owners %v %v", exts, trunks)
	}
	if x, _ := s.Extension("201"); len(x.Conversations) != 0 {
		t.Error("expected 201 emptied")
	}
	if x, _ := s.Extension("202"); len(x.Conversations) != 1 {
		t.Error("202 is out of scope")
	}
}

func TestApplyConversationsFullReportsOnlyActiveOwners(t *testing.T) {
	s := NewStore(nil)
	s.UpsertExtension(model.Extension{ID: "201", Conversations: map[string]model.Conversation{"a>b": {ID: "a>b"}}})
	s.UpsertExtension(model.Extension{ID: "202"})
	s.UpsertExtension(model.Extension{ID: "203"})

	res := correlator.Result{Extensions: map[string]map[string]model.Conversation{
		"203": {"c>d": {ID: "c>d"}},
	}}
	exts, _ := s.ApplyConversations(res, correlator.Scope{})
	if len(exts) != 2 || exts[0] != "201" || exts[1] != "203" {
		t.Errorf("unexpected changed owners %v", exts)
	}
	if s.ConversationCount() != 1 {
		t.Errorf("expected 1 conversation, got %d", s.ConversationCount())
	}
}

func TestApplyConversationsUsesCurrentRecordingSet(t *testing.T) {
	s := NewStore(nil)
	s.UpsertExtension(model.Extension{ID: "201"})
	s.UpsertTrunk(model.Trunk{ID: "trunk1"})

	// Correlated before the recording of a>b started and before c>d stopped.
	stale := model.Conversation{ID: "a>b"}
	stale.SetRecording(false, false)
	stopped := model.Conversation{ID: "c>d"}
	stopped.SetRecording(true, false)
	res := correlator.Result{
		Extensions: map[string]map[string]model.Conversation{"201": {"a>b": stale}},
		Trunks:     map[string]map[string]model.Conversation{"trunk1": {"c>d": stopped}},
	}
	s.SetRecording("a>b", true)

	s.ApplyConversations(res, correlator.Scope{})

	x, _ := s.Extension("201")
	if got := x.Conversations["a>b"].RecordingState; got != "mute" {
		t.Errorf("expected the live recording state, got %q", got)
	}
	tr, _ := s.Trunk("trunk1")
	if c := tr.Conversations["c>d"]; c.Recording || c.RecordingState != "false" {
		t.Errorf("expected the stopped recording cleared, got %q", c.RecordingState)
	}
}

func TestConversationLookup(t *testing.T) {
	s := NewStore(nil)
	s.UpsertExtension(model.Extension{ID: "201"})

	if _, err := s.Conversation("999", "a>b"); !errors.Is(err, ErrEndpointNotFound) {
		t.Errorf("expected ErrEndpointNotFound, got %v", err)
	}
	if _, err := s.Conversation("201", "a>b"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestUpsertExtensionKeepsConversations(t *testing.T) {
	s := NewStore(nil)
	s.UpsertExtension(model.Extension{ID: "201", Conversations: map[string]model.Conversation{"a>b": {ID: "a>b"}}})
	s.UpsertExtension(model.Extension{ID: "201", Name: "Alice"})

	x, _ := s.Extension("201")
	if x.Name != "Alice" || len(x.Conversations) != 1 {
		t.Errorf("unexpected extension %+v", x)
	}
}

func TestMarkRecordingReachesEveryOwner(t *testing.T) {
	s := NewStore(nil)
	conv := model.Conversation{ID: "a>b"}
	s.UpsertExtension(model.Extension{ID: "201", Conversations: map[string]model.Conversation{"a>b": conv}})
	s.UpsertTrunk(model.Trunk{ID: "trunk1", Conversations: map[string]model.Conversation{"a>b": conv}})
	s.UpsertExtension(model.Extension{ID: "202"})

	exts, trunks := s.MarkRecording("a>b", true, true)
	if len(exts) != 1 || len(trunks) != 1 {
		t.Fatalf("expected one extension and one trunk, got %d/%d", len(exts), len(trunks))
	}
	if got := trunks[0].Conversations["a>b"].RecordingState; got != "mute" {
		t.Errorf("expected mute, got %q", got)
	}
}

func TestParkedChannelIndex(t *testing.T) {
	s := NewStore(nil)
	s.UpsertParking(model.Parking{ID: "71"})

	if _, ok := s.SetParkedCaller("71", &model.ParkedCaller{Channel: "SIP/trunk1-1"}); !ok {
		t.Fatal("expected parking")
	}
	if id, ok := s.ParkingOfChannel("SIP/trunk1-1"); !ok || id != "71" {
		t.Errorf("expected channel indexed, got %q", id)
	}
	s.SetParkedCaller("71", nil)
	if _, ok := s.ParkingOfChannel("SIP/trunk1-1"); ok {
		t.Error("expected index cleared")
	}
	if _, ok := s.SetParkedCaller("72", nil); ok {
		t.Error("unknown parking must be rejected")
	}
}
