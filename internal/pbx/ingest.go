package pbx

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/ami"
	"github.com/sweeney/asterisk-proxy/internal/correlator"
	"github.com/sweeney/asterisk-proxy/internal/events"
	"github.com/sweeney/asterisk-proxy/internal/metrics"
	"github.com/sweeney/asterisk-proxy/internal/model"
)

type handler func(e *Engine, ev ami.Event)

var handlers = map[string]handler{
	"ExtensionStatus":    (*Engine).onExtensionStatus,
	"PeerStatus":         (*Engine).onPeerStatus,
	"QueueMemberAdded":   (*Engine).onQueueMember,
	"QueueMemberStatus":  (*Engine).onQueueMember,
	"QueueMemberRemoved": (*Engine).onQueueMemberRemoved,
	"QueueMemberPause":   (*Engine).onQueueMemberPause,
	"QueueMemberPaused":  (*Engine).onQueueMemberPause,
	"QueueCallerJoin":    (*Engine).onQueueCaller,
	"QueueCallerLeave":   (*Engine).onQueueCaller,
	"QueueCallerAbandon": (*Engine).onQueueCaller,
	"Rename":             (*Engine).onRename,
	"DialBegin":          (*Engine).onDialBegin,
	"BridgeEnter":        (*Engine).onBridgeEnter,
	"Hangup":             (*Engine).onHangup,
	"Newchannel":         (*Engine).onNewChannel,
	"MessageWaiting":     (*Engine).onMessageWaiting,
	"Cdr":                (*Engine).onCdr,
	"ParkedCall":         (*Engine).onParkedCall,
	"UnParkedCall":       (*Engine).onParkingEmptied,
	"ParkedCallTimeOut":  (*Engine).onParkingEmptied,
	"ParkedCallGiveUp":   (*Engine).onParkingEmptied,
	"FullyBooted":        (*Engine).onFullyBooted,
}

// HandleEvent applies one switch event. It never panics and never returns
// an error: a handler that fails logs and leaves the store as it was.
func (e *Engine) HandleEvent(ev ami.Event) {
	h, ok := handlers[ev.Type()]
	if !ok {
		return
	}
	metrics.EventsIngestedTotal.WithLabelValues(ev.Type()).Inc()
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerPanicsTotal.Inc()
			e.logger.Error("panic in event handler", zap.String("event", ev.Type()), zap.Any("panic", r))
		}
	}()
	h(e, ev)
}

// Run dispatches events until the channel closes or ctx is done.
func (e *Engine) Run(ctx context.Context, evts <-chan ami.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-evts:
			if !ok {
				return
			}
			e.HandleEvent(ev)
		}
	}
}

func (e *Engine) onExtensionStatus(ev ami.Event) {
	id := ev.Get("Exten")
	if !e.store.HasExtension(id) {
		return
	}
	e.updateStatus(id, extensionStatus(ev.GetInt("Status")))
}

func (e *Engine) onPeerStatus(ev ami.Event) {
	_, name := model.Endpoint(ev.Get("Peer") + "-")
	status := peerEventStatus(ev.Get("PeerStatus"))
	if e.store.HasTrunk(name) {
		if t, ok := e.store.PatchTrunk(name, func(t *model.Trunk) { t.Status = status }); ok {
			e.emitTrunk(t)
		}
		return
	}
	if !e.store.HasExtension(name) {
		return
	}
	e.updateStatus(name, status)
}

// updateStatus sets the status right away and re-reads the peer details
// in the background before notifying.
func (e *Engine) updateStatus(id string, status model.Status) {
	x, ok := e.store.PatchExtension(id, func(x *model.Extension) {
		x.Status = presence(status, x.DND)
	})
	if !ok {
		return
	}
	e.goAsync("peer details", func(ctx context.Context) {
		var err error
		if x.Tech == model.TechIAX {
			err = e.refreshIAXDetails(ctx, id)
		} else {
			err = e.refreshSIPDetails(ctx, id)
		}
		if err != nil {
			e.logger.Warn("peer details", zap.String("exten", id), zap.Error(err))
		}
		if x, ok := e.store.Extension(id); ok {
			e.emitExtension(x)
		}
	})
}

func (e *Engine) onQueueMember(ev ami.Event) {
	m := parseMember(ev)
	if !e.store.ReplaceQueueMember(m) {
		return
	}
	e.emit(events.QueueMemberChanged{Member: m})
	e.hydratePauses(m.Queue, m.ID)
}

func (e *Engine) onQueueMemberRemoved(ev ami.Event) {
	m := parseMember(ev)
	got, ok := e.store.PatchQueueMember(m.Queue, m.ID, func(qm *model.QueueMember) {
		qm.LoggedIn = false
		qm.Paused = false
	})
	if ok {
		e.emit(events.QueueMemberChanged{Member: got})
	}
}

func (e *Engine) onQueueMemberPause(ev ami.Event) {
	m := parseMember(ev)
	reason := ev.Get("PausedReason")
	if reason == "" {
		reason = ev.Get("Reason")
	}
	now := e.now()
	got, ok := e.store.PatchQueueMember(m.Queue, m.ID, func(qm *model.QueueMember) {
		qm.Paused = m.Paused
		if m.Paused {
			qm.PausedReason = reason
			qm.LastPausedIn = model.PauseEvent{At: now, Reason: reason}
		} else {
			qm.PausedReason = ""
			qm.LastPausedOut = model.PauseEvent{At: now}
		}
	})
	if ok {
		e.emit(events.QueueMemberChanged{Member: got})
	}
}

func (e *Engine) onQueueCaller(ev ami.Event) {
	id := ev.Get("Queue")
	if !e.store.HasQueue(id) {
		e.logger.Warn("caller event for unknown queue", zap.String("queue", id))
		return
	}
	e.goAsync("queue refresh", func(ctx context.Context) {
		if err := e.refreshQueue(ctx, id); err != nil {
			e.logger.Warn("queue refresh failed", zap.String("queue", id), zap.Error(err))
		}
	})
}

// onRename follows transfers: channel names change, so waiting callers and
// every conversation are re-read.
func (e *Engine) onRename(ev ami.Event) {
	e.goAsync("rename", func(ctx context.Context) {
		for _, id := range e.store.QueueIDs() {
			if err := e.refreshQueue(ctx, id); err != nil {
				e.logger.Warn("queue refresh failed", zap.String("queue", id), zap.Error(err))
			}
		}
		if err := e.ReconcileAll(ctx); err != nil {
			e.logger.Warn("reconciliation after rename failed", zap.Error(err))
		}
	})
}

func (e *Engine) onDialBegin(ev ami.Event) {
	src := ev.Get("Channel")
	dst := ev.Get("DestChannel")
	if dst == "" {
		return
	}
	num := cleanNum(ev.Get("CallerIDNum"))
	name := cleanName(ev.Get("CallerIDName"))

	destExt, _ := e.owner(dst)
	dialing := events.ExtenDialing{
		Exten:      destExt,
		CallerNum:  num,
		CallerName: name,
		Channel:    dst,
	}
	// Speed over completeness: whatever the directory returned so far wins
	// over the event fields, a lookup still running is not waited for.
	if ci, ok := e.store.CallerIdentity(num); ok {
		dialing.CallerIdentity = ci
		if n := ci.DisplayName(); n != "" {
			dialing.CallerName = n
		}
	} else {
		dialing.CallerIdentity = model.CallerIdentity{Number: num}
	}

	scope, _ := e.ownerScope(src, dst)
	e.goAsync("dialing", func(ctx context.Context) {
		chs, err := e.reconcileLinked(ctx, scope, map[string]string{src: dst})
		if err != nil {
			e.logger.Warn("reconciliation after dial failed", zap.Error(err))
		}
		if destExt == "" {
			return
		}
		if ch, ok := chs[src]; ok {
			dialing.Queue = ch.Queue
			if p, ok := chs[correlator.PartnerLeg(src)]; ok && dialing.Queue == "" {
				dialing.Queue = p.Queue
			}
		}
		e.emit(dialing)
	})
}

// onBridgeEnter reconciles both parties once a call is answered. The event
// only names one of them; the other comes from the channel list.
func (e *Engine) onBridgeEnter(ev ami.Event) {
	ch := ev.Get("Channel")
	e.goAsync("bridge", func(ctx context.Context) {
		chs, err := e.channels(ctx)
		if err != nil {
			e.logger.Warn("reconciliation after bridge failed", zap.Error(err))
			return
		}
		ids := []string{ch}
		if c, ok := chs[ch]; ok && c.BridgedChannel != "" {
			ids = append(ids, c.BridgedChannel)
		}
		if scope, ok := e.ownerScope(ids...); ok {
			e.apply(chs, scope)
		}
	})
}

func (e *Engine) onHangup(ev ami.Event) {
	scope, ok := e.ownerScope(ev.Get("Channel"))
	if !ok {
		return
	}
	e.reconcileAsync("hangup", scope)
}

// onNewChannel starts the directory lookup for calls entering from outside
// so that the result is ready by the time an extension rings.
func (e *Engine) onNewChannel(ev ami.Event) {
	if e.directory == nil || !e.external[ev.Get("Context")] {
		return
	}
	num := cleanNum(ev.Get("CallerIDNum"))
	if num == "" {
		return
	}
	e.goAsync("caller lookup", func(ctx context.Context) {
		ci, err := e.directory.Lookup(ctx, num)
		if err != nil {
			e.logger.Warn("caller lookup failed", zap.String("number", num), zap.Error(err))
			return
		}
		ci.Number = num
		e.store.SetCallerIdentity(num, ci)
	})
}

func (e *Engine) onMessageWaiting(ev ami.Event) {
	box, vmContext, _ := strings.Cut(ev.Get("Mailbox"), "@")
	vm := events.VoiceMessages{
		Voicemail: box,
		Context:   vmContext,
		New:       ev.GetInt("New"),
		Old:       ev.GetInt("Old"),
	}
	if ev.GetBool("Waiting") && vm.New > 0 {
		e.emit(events.NewVoiceMessage{VoiceMessages: vm})
		return
	}
	e.emit(events.UpdateVoiceMessages{VoiceMessages: vm})
}

func (e *Engine) onCdr(ev ami.Event) {
	fields := ev.Fields()
	delete(fields, "Event")
	delete(fields, "Privilege")
	e.emit(events.NewCdr{Fields: fields})
}

func (e *Engine) onParkedCall(ev ami.Event) {
	id, pc := parseParkedCaller(ev, e.now())
	if p, ok := e.store.SetParkedCaller(id, &pc); ok {
		e.emit(events.ParkingChanged{Parking: p})
	}
}

func (e *Engine) onParkingEmptied(ev ami.Event) {
	id, pc := parseParkedCaller(ev, e.now())
	if id == "" {
		id, _ = e.store.ParkingOfChannel(pc.Channel)
	}
	if p, ok := e.store.SetParkedCaller(id, nil); ok {
		e.emit(events.ParkingChanged{Parking: p})
	}
}

func (e *Engine) onFullyBooted(ami.Event) {
	e.goAsync("resync", func(ctx context.Context) {
		if err := e.Resync(ctx); err != nil {
			e.logger.Warn("resync failed", zap.Error(err))
		}
	})
}
