package events

import (
	"testing"

	"github.com/sweeney/asterisk-proxy/internal/model"
)

func TestEventNames(t *testing.T) {
	tests := []struct {
		evt  Event
		want Name
	}{
		{ExtenChanged{}, "extenChanged"},
		{TrunkChanged{}, "trunkChanged"},
		{QueueChanged{}, "queueChanged"},
		{ParkingChanged{}, "parkingChanged"},
		{QueueMemberChanged{}, "queueMemberChanged"},
		{ExtenDialing{}, "extenDialing"},
		{NewVoiceMessage{}, "newVoiceMessage"},
		{UpdateVoiceMessages{}, "updateVoiceMessages"},
		{NewCdr{}, "newCdr"},
	}
	for _, tc := range tests {
		if got := tc.evt.Name(); got != tc.want {
			t.Errorf("%T: got %s, want %s", tc.evt, got, tc.want)
		}
	}
}

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster(2, nil)
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	b.Emit(ExtenChanged{Extension: model.Extension{ID: "201"}})

	for i, s := range []Subscriber{s1, s2} {
		select {
		case e := <-s:
			if ec, ok := e.(ExtenChanged); !ok || ec.Extension.ID != "201" {
				t.Errorf("subscriber %d: unexpected event %+v", i, e)
			}
		default:
			t.Errorf("subscriber %d: no event", i)
		}
	}
}

func TestBroadcasterDropsWhenFull(t *testing.T) {
	b := NewBroadcaster(1, nil)
	s := b.Subscribe()

	b.Emit(NewCdr{})
	b.Emit(NewCdr{}) // must not block

	if len(s) != 1 {
		t.Errorf("expected 1 buffered event, got %d", len(s))
	}
}

func TestBroadcasterUnsubscribeCloses(t *testing.T) {
	b := NewBroadcaster(1, nil)
	s := b.Subscribe()
	b.Unsubscribe(s)
	b.Unsubscribe(s) // idempotent

	if _, ok := <-s; ok {
		t.Error("expected closed channel")
	}
	if b.Len() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.Len())
	}
	b.Emit(NewCdr{})
}

func TestMultiAndRecorder(t *testing.T) {
	r1, r2 := &Recorder{}, &Recorder{}
	m := Multi{r1, nil, r2}
	m.Emit(QueueChanged{})
	m.Emit(NewCdr{})

	if len(r1.Events()) != 2 || len(r2.Events()) != 2 {
		t.Fatalf("expected both recorders to get 2 events")
	}
	if len(r1.Named(NameNewCdr)) != 1 {
		t.Error("expected one newCdr")
	}
	r1.Reset()
	if len(r1.Events()) != 0 {
		t.Error("expected reset")
	}
}
