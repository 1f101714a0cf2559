package pbx

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/asterisk-proxy/internal/ami"
	"github.com/sweeney/asterisk-proxy/internal/events"
	"github.com/sweeney/asterisk-proxy/internal/model"
	"github.com/sweeney/asterisk-proxy/internal/topology"
)

// Conversation ids of the core-show-channels.raw capture.
const (
	internalConv = "SIP/201-00000001>SIP/202-00000002"
	agentConv    = "Local/203@from-queue-00000004;2>SIP/203-00000005"
	trunkConv    = "SIP/trunk1-00000003>Local/203@from-queue-00000004;1"
)

func fixturesDir() string {
	return filepath.Join("..", "..", "testdata", "fixtures")
}

// loadFixture returns the list entries of a raw AMI capture, without the
// response header.
func loadFixture(t *testing.T, name string) []ami.Event {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(fixturesDir(), name))
	if err != nil {
		t.Fatalf("reading fixture %s: %v", name, err)
	}
	var out []ami.Event
	for _, ev := range ami.ParseBytes(data) {
		if !ev.IsResponse() {
			out = append(out, ev)
		}
	}
	return out
}

// fakeGateway answers every action with success and the list entries
// configured for its name.
type fakeGateway struct {
	mu     sync.Mutex
	sent   []ami.Action
	lists  map[string][]ami.Event
	fields map[string][]string
	fail   map[string]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		lists:  make(map[string][]ami.Event),
		fields: make(map[string][]string),
		fail:   make(map[string]string),
	}
}

func (g *fakeGateway) Send(_ context.Context, a ami.Action) (*ami.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, a)
	if msg, ok := g.fail[a.Name]; ok {
		return &ami.Response{Event: ami.NewEvent("Response", "Error", "Message", msg)},
			&ami.ResponseError{Action: a.Name, Message: msg}
	}
	kvs := append([]string{"Response", "Success"}, g.fields[a.Name]...)
	return &ami.Response{Event: ami.NewEvent(kvs...), Events: g.lists[a.Name]}, nil
}

func (g *fakeGateway) setList(action string, evts []ami.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lists[action] = evts
}

func (g *fakeGateway) failAction(action, msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[action] = msg
}

func (g *fakeGateway) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = nil
}

func (g *fakeGateway) actions() []ami.Action {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ami.Action(nil), g.sent...)
}

func (g *fakeGateway) named(name string) []ami.Action {
	var out []ami.Action
	for _, a := range g.actions() {
		if a.Name == name {
			out = append(out, a)
		}
	}
	return out
}

// commands drops the read-only queries issued by background passes.
func (g *fakeGateway) commands() []ami.Action {
	var out []ami.Action
	for _, a := range g.actions() {
		switch a.Name {
		case "CoreShowChannels", "QueueStatus", "SIPshowpeer", "IAXpeers", "SIPpeers":
			continue
		}
		out = append(out, a)
	}
	return out
}

type memRecordings struct {
	mu   sync.Mutex
	recs map[string]bool
}

func (m *memRecordings) Load(context.Context) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.recs))
	for k, v := range m.recs {
		out[k] = v
	}
	return out, nil
}

func (m *memRecordings) Add(_ context.Context, id string, muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recs == nil {
		m.recs = make(map[string]bool)
	}
	m.recs[id] = muted
	return nil
}

func (m *memRecordings) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, id)
	return nil
}

type fakeDirectory map[string]model.CallerIdentity

func (d fakeDirectory) Lookup(_ context.Context, num string) (model.CallerIdentity, error) {
	return d[num], nil
}

type fakeHistory struct {
	in, out model.PauseEvent
}

func (h fakeHistory) LastPauses(context.Context, string, string) (model.PauseEvent, model.PauseEvent, error) {
	return h.in, h.out, nil
}

var testNow = time.Date(2026, 2, 12, 10, 30, 0, 0, time.UTC)

func testRegistry(t *testing.T) *topology.Registry {
	t.Helper()
	reg, err := topology.New(map[string]topology.Record{
		"201":    {Type: topology.KindExtension, Tech: "sip", Label: "Alice", Extension: "201"},
		"202":    {Type: topology.KindExtension, Tech: "sip", Label: "Bob", Extension: "202", Transport: "wss"},
		"203":    {Type: topology.KindExtension, Tech: "sip", Label: "Carol", Extension: "203"},
		"trunk1": {Type: topology.KindTrunk, Tech: "sip", Label: "Provider", Trunk: "trunk1", MaxChannels: 4},
		"401":    {Type: topology.KindQueue, Label: "Support", Queue: "401", DynamicMembers: []string{"201"}},
		"71":     {Type: topology.KindParking, Label: "Parking 71", Extension: "71"},
	})
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	return reg
}

type testEngine struct {
	*Engine
	gw  *fakeGateway
	rec *events.Recorder
}

// newTestEngine bootstraps an engine over the captured channel list.
func newTestEngine(t *testing.T, opts ...Option) *testEngine {
	t.Helper()
	gw := newFakeGateway()
	gw.setList("CoreShowChannels", loadFixture(t, "core-show-channels.raw"))
	gw.setList("SIPpeers", loadFixture(t, "sip-peers.raw"))
	gw.setList("QueueStatus", loadFixture(t, "queue-status.raw"))

	rec := &events.Recorder{}
	cfg := Config{
		Prefix:           "0039",
		InternalContext:  "from-internal",
		VoicemailContext: "ext-local",
		ParkLot:          "default",
		HangupExten:      "hangup-nonexistent",
		RecordDir:        "/var/spool/asterisk/monitor",
		ExternalContexts: []string{"from-trunk"},
	}
	base := []Option{
		WithEmitter(rec),
		WithClock(func() time.Time { return testNow }),
		WithSleep(func(context.Context, time.Duration) error { return nil }),
	}
	e := New(gw, testRegistry(t), cfg, append(base, opts...)...)
	t.Cleanup(e.Close)

	if err := e.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	e.Wait()
	gw.reset()
	rec.Reset()
	return &testEngine{Engine: e, gw: gw, rec: rec}
}

func TestBootstrapLoadsEntities(t *testing.T) {
	te := newTestEngine(t)

	x, ok := te.Store().Extension("201")
	if !ok {
		t.Fatal("expected extension 201")
	}
	if x.Name != "Alice" || x.IP != "192.168.5.21" || x.Status != model.StatusOnline {
		t.Errorf("unexpected extension 201: %+v", x)
	}
	if x203, _ := te.Store().Extension("203"); x203.Status != model.StatusOffline {
		t.Errorf("expected 203 offline, got %s", x203.Status)
	}
	if x202, _ := te.Store().Extension("202"); !x202.WebSocket {
		t.Error("expected 202 to be websocket capable")
	}

	q, ok := te.Store().Queue("401")
	if !ok {
		t.Fatal("expected queue 401")
	}
	if q.Completed != 37 || q.Abandoned != 4 || q.ServiceLevelPerc != 81.5 {
		t.Errorf("unexpected queue stats: %+v", q)
	}
	if len(q.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(q.Members))
	}
	if m := q.Members["201"]; !m.Paused || m.PausedReason != "lunch" || m.Type != model.MemberDynamic {
		t.Errorf("unexpected member 201: %+v", m)
	}
	wc, ok := q.WaitingCallers["SIP/trunk1-00000007"]
	if !ok || wc.Position != 1 || wc.Num != "0698765432" || wc.Name != "" {
		t.Errorf("unexpected waiting caller: %+v", wc)
	}
	if !wc.JoinedAt.Equal(testNow.Add(-15 * time.Second)) {
		t.Errorf("unexpected joined at %v", wc.JoinedAt)
	}
}

func TestBootstrapBuildsInternalConversation(t *testing.T) {
	te := newTestEngine(t)

	x, _ := te.Store().Extension("201")
	if len(x.Conversations) != 1 {
		t.Fatalf("expected 1 conversation on 201, got %d", len(x.Conversations))
	}
	c, ok := x.Conversations[internalConv]
	if !ok {
		t.Fatalf("expected conversation %s, got %v", internalConv, x.Conversations)
	}
	if c.Source.ID != "SIP/201-00000001" || c.Dest == nil || c.Dest.ID != "SIP/202-00000002" {
		t.Errorf("unexpected legs %s / %+v", c.Source.ID, c.Dest)
	}
	if c.Duration != 65 {
		t.Errorf("expected duration 65, got %d", c.Duration)
	}

	y, _ := te.Store().Extension("202")
	if _, ok := y.Conversations[internalConv]; !ok {
		t.Errorf("expected the same conversation id on 202, got %v", y.Conversations)
	}
}

func TestBootstrapBuildsQueueConversation(t *testing.T) {
	te := newTestEngine(t)

	x, _ := te.Store().Extension("203")
	c, ok := x.Conversations[agentConv]
	if !ok {
		t.Fatalf("expected conversation %s, got %v", agentConv, x.Conversations)
	}
	if c.Queue != "401" {
		t.Errorf("expected queue 401, got %q", c.Queue)
	}
	if c.Direction != model.DirectionIn || c.CounterpartNum != "0612345678" {
		t.Errorf("unexpected direction/counterpart %s %s", c.Direction, c.CounterpartNum)
	}

	tr, _ := te.Store().Trunk("trunk1")
	tc, ok := tr.Conversations[trunkConv]
	if !ok {
		t.Fatalf("expected trunk conversation %s, got %v", trunkConv, tr.Conversations)
	}
	if tc.Queue != "401" || tc.Direction != model.DirectionOut {
		t.Errorf("unexpected trunk conversation %+v", tc)
	}

	for owner, convs := range map[string]map[string]model.Conversation{"203": x.Conversations, "trunk1": tr.Conversations} {
		for _, c := range convs {
			if c.Source.ID == "Local/203@from-queue-00000004;1" && c.Dest != nil && c.Dest.ID == "SIP/trunk1-00000003" {
				t.Errorf("%s: routing leg surfaced as conversation", owner)
			}
		}
	}
}

func TestBootstrapRestoresRecordingSet(t *testing.T) {
	recs := &memRecordings{recs: map[string]bool{internalConv: true}}
	te := newTestEngine(t, WithRecordingStore(recs))

	x, _ := te.Store().Extension("201")
	if got := x.Conversations[internalConv].RecordingState; got != "mute" {
		t.Errorf("expected restored muted recording, got %q", got)
	}
}

func TestBootstrapFailsWithoutPeers(t *testing.T) {
	gw := newFakeGateway()
	gw.failAction("SIPpeers", "Permission denied")
	e := New(gw, testRegistry(t), Config{})
	defer e.Close()

	if err := e.Bootstrap(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSnapshotsObfuscate(t *testing.T) {
	te := newTestEngine(t)

	x, err := te.Extension("203", true)
	if err != nil {
		t.Fatal(err)
	}
	if got := x.Conversations[agentConv].CounterpartNum; got != "0612345xxx" {
		t.Errorf("expected masked counterpart, got %s", got)
	}
	plain, _ := te.Extension("203", false)
	if got := plain.Conversations[agentConv].CounterpartNum; got != "0612345678" {
		t.Errorf("expected plain counterpart, got %s", got)
	}
	if got := te.Queues(true)["401"].WaitingCallers["SIP/trunk1-00000007"].Num; got != "0698765xxx" {
		t.Errorf("expected masked waiting caller, got %s", got)
	}
	if _, err := te.Extension("999", false); err != ErrEndpointNotFound {
		t.Errorf("expected ErrEndpointNotFound, got %v", err)
	}
}
