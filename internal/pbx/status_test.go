package pbx

import (
	"testing"

	"github.com/sweeney/asterisk-proxy/internal/ami"
	"github.com/sweeney/asterisk-proxy/internal/model"
)

func TestParseChannelsPairsTwoPartyBridges(t *testing.T) {
	chs := parseChannels(loadFixture(t, "core-show-channels.raw"))
	if len(chs) != 6 {
		t.Fatalf("expected 6 channels, got %d", len(chs))
	}
	a := chs["SIP/201-00000001"]
	if !a.Source || a.BridgedChannel != "SIP/202-00000002" || a.Duration != 65 {
		t.Errorf("unexpected channel: %+v", a)
	}
	if b := chs["SIP/202-00000002"]; b.Source || b.BridgedChannel != "SIP/201-00000001" {
		t.Errorf("unexpected channel: %+v", b)
	}
}

func TestParseChannelsSkipsConferenceBridges(t *testing.T) {
	var evts []ami.Event
	for _, id := range []string{"SIP/201-1", "SIP/202-1", "SIP/203-1"} {
		evts = append(evts, ami.NewEvent("Event", "CoreShowChannel", "Channel", id, "BridgeId", "conf"))
	}
	for id, ch := range parseChannels(evts) {
		if ch.BridgedChannel != "" {
			t.Errorf("%s: expected no partner in a three-party bridge, got %s", id, ch.BridgedChannel)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := map[string]int{
		"":         0,
		"42":       42,
		"00:01:05": 65,
		"01:00:00": 3600,
	}
	for in, want := range tests {
		if got := parseDuration(in); got != want {
			t.Errorf("parseDuration(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestMemberID(t *testing.T) {
	tests := map[string]string{
		"Local/201@from-queue/n": "201",
		"SIP/203":                "203",
		"PJSIP/204/sip:x":        "204",
	}
	for in, want := range tests {
		if got := memberID(in); got != want {
			t.Errorf("memberID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtensionStatus(t *testing.T) {
	tests := []struct {
		code int
		want model.Status
	}{
		{0, model.StatusOnline},
		{1, model.StatusBusy},
		{2, model.StatusBusy},
		{4, model.StatusOffline},
		{8, model.StatusRinging},
		{9, model.StatusRinging},
		{16, model.StatusOnHold},
		{-1, model.StatusOffline},
	}
	for _, tt := range tests {
		if got := extensionStatus(tt.code); got != tt.want {
			t.Errorf("extensionStatus(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestPresence(t *testing.T) {
	if got := presence(model.StatusOnline, true); got != model.StatusDND {
		t.Errorf("expected dnd, got %s", got)
	}
	if got := presence(model.StatusBusy, true); got != model.StatusBusy {
		t.Errorf("busy must win over dnd, got %s", got)
	}
	if got := presence(model.StatusOnline, false); got != model.StatusOnline {
		t.Errorf("expected online, got %s", got)
	}
}

func TestPeerStatus(t *testing.T) {
	for in, want := range map[string]model.Status{
		"OK (3 ms)":   model.StatusOnline,
		"LAGGED":      model.StatusOnline,
		"UNREACHABLE": model.StatusOffline,
		"UNKNOWN":     model.StatusOffline,
	} {
		if got := peerStatus(in); got != want {
			t.Errorf("peerStatus(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseParkedCallerLegacyHeaders(t *testing.T) {
	ev := ami.NewEvent("Event", "ParkedCall", "Exten", "71", "Channel", "SIP/trunk1-1",
		"CallerIDNum", "0612345678", "CallerIDName", "<unknown>", "Timeout", "45")
	id, pc := parseParkedCaller(ev, testNow)
	if id != "71" || pc.Channel != "SIP/trunk1-1" || pc.Num != "0612345678" || pc.Name != "" || pc.Timeout != 45 {
		t.Errorf("unexpected parked caller %s %+v", id, pc)
	}
	if !pc.ParkedAt.Equal(testNow) {
		t.Errorf("unexpected parked at %v", pc.ParkedAt)
	}
}

func TestFirstField(t *testing.T) {
	if got := firstField("401,t,,,300"); got != "401" {
		t.Errorf("got %q", got)
	}
	if got := firstField(""); got != "" {
		t.Errorf("got %q", got)
	}
}
