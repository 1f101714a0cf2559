package ami_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sweeney/asterisk-proxy/internal/ami"
)

func fixturesDir() string {
	return filepath.Join("..", "..", "testdata", "fixtures")
}

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(fixturesDir(), name))
	if err != nil {
		t.Fatalf("reading fixture %s: %v", name, err)
	}
	return data
}

func TestParseCoreShowChannels(t *testing.T) {
	events := ami.ParseBytes(loadFixture(t, "core-show-channels.raw"))

	// Response + 6 channels + completion marker; the banner is skipped
	if len(events) != 8 {
		t.Fatalf("expected 8 packets, got %d", len(events))
	}
	if !events[0].IsResponse() || events[0].Get("EventList") != "start" {
		t.Errorf("expected the list start response first, got %v", events[0].Fields())
	}

	first := events[1]
	if first.Type() != "CoreShowChannel" {
		t.Fatalf("expected CoreShowChannel, got %q", first.Type())
	}
	if first.Get("Channel") != "SIP/201-00000001" {
		t.Errorf("expected Channel=SIP/201-00000001, got %q", first.Get("Channel"))
	}
	if first.Get("Linkedid") != "1770888509.40" {
		t.Errorf("expected Linkedid=1770888509.40, got %q", first.Get("Linkedid"))
	}
	if !first.Has("AccountCode") || first.Get("AccountCode") != "" {
		t.Errorf("expected an empty AccountCode header, got %q", first.Get("AccountCode"))
	}

	last := events[len(events)-1]
	if last.Type() != "CoreShowChannelsComplete" || last.GetInt("ListItems") != 6 {
		t.Errorf("unexpected completion marker %v", last.Fields())
	}
}

func TestParseQueueStatus(t *testing.T) {
	events := ami.ParseBytes(loadFixture(t, "queue-status.raw"))

	types := countEventTypes(events)
	assertEventCount(t, types, "QueueParams", 1)
	assertEventCount(t, types, "QueueMember", 2)
	assertEventCount(t, types, "QueueEntry", 1)

	for _, ev := range events {
		if ev.Type() == "QueueParams" {
			if ev.GetFloat("ServicelevelPerf2") != 81.5 {
				t.Errorf("expected ServicelevelPerf2=81.5, got %v", ev.GetFloat("ServicelevelPerf2"))
			}
		}
	}
}

func TestParseSIPPeers(t *testing.T) {
	events := ami.ParseBytes(loadFixture(t, "sip-peers.raw"))

	types := countEventTypes(events)
	assertEventCount(t, types, "PeerEntry", 4)
}

func TestGetIsCaseInsensitive(t *testing.T) {
	ev := ami.NewEvent("Event", "Hangup", "UniqueID", "1.2")
	if ev.Get("Uniqueid") != "1.2" {
		t.Errorf("expected case-insensitive match, got %q", ev.Get("Uniqueid"))
	}
	if ev.Has("Linkedid") {
		t.Error("expected Linkedid absent")
	}
}

func TestGetConversions(t *testing.T) {
	ev := ami.NewEvent("New", " 3 ", "Waiting", "Yes", "Paused", "0", "LastCall", "1770880000")
	if ev.GetInt("New") != 3 {
		t.Errorf("expected 3, got %d", ev.GetInt("New"))
	}
	if !ev.GetBool("Waiting") || ev.GetBool("Paused") || ev.GetBool("Missing") {
		t.Error("unexpected boolean conversion")
	}
	if got := ev.GetUnix("LastCall").Unix(); got != 1770880000 {
		t.Errorf("unexpected timestamp %d", got)
	}
	if !ev.GetUnix("Missing").IsZero() {
		t.Error("expected zero time for a missing key")
	}
}

func TestParserMultilineValue(t *testing.T) {
	raw := "Response: Follows\r\nActionID: 1\r\nline one\r\nline two\r\n\r\n"
	events := ami.ParseBytes([]byte(raw))
	if len(events) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(events))
	}
	if n := len(events[0].Headers()); n != 4 {
		t.Errorf("expected output lines kept as headers, got %d", n)
	}
}

func TestParserHandlesTruncatedStream(t *testing.T) {
	raw := "Event: Hangup\r\nChannel: SIP/201-00000001\r\n"
	p := ami.NewParser(strings.NewReader(raw))

	ev, ok := p.Next()
	if !ok || ev.Type() != "Hangup" {
		t.Fatalf("expected the trailing packet, got %v", ev.Fields())
	}
	if _, ok := p.Next(); ok {
		t.Error("expected end of stream")
	}
	if p.Err() != nil {
		t.Errorf("unexpected error %v", p.Err())
	}
}

func TestActionMarshal(t *testing.T) {
	a := ami.NewAction("Redirect", "Channel", "SIP/202-00000002", "Context", "", "Exten", "203\r\nAction: Hangup")
	got := string(a.Marshal("abc"))
	want := "Action: Redirect\r\nActionID: abc\r\nChannel: SIP/202-00000002\r\nExten: 203Action: Hangup\r\n\r\n"
	if got != want {
		t.Errorf("unexpected wire form:\n%q\nwant\n%q", got, want)
	}
}

func countEventTypes(events []ami.Event) map[string]int {
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.Type()]++
	}
	return counts
}

func assertEventCount(t *testing.T, counts map[string]int, eventType string, expected int) {
	t.Helper()
	if counts[eventType] != expected {
		t.Errorf("expected %d %s events, got %d", expected, eventType, counts[eventType])
	}
}
