package pbx

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/ami"
	"github.com/sweeney/asterisk-proxy/internal/events"
	"github.com/sweeney/asterisk-proxy/internal/model"
)

// Queue audit log events, as written by the switch's own queue application.
const (
	queueLogAdd     = "ADDMEMBER"
	queueLogRemove  = "REMOVEMEMBER"
	queueLogPause   = "PAUSE"
	queueLogUnpause = "UNPAUSE"
	queueLogAll     = "all"
)

// RefreshQueues reads the status of every queue and replaces statistics and
// waiting callers. With members set, the member lists are replaced too and
// their pause history is hydrated in the background.
func (e *Engine) RefreshQueues(ctx context.Context, members bool) error {
	resp, err := e.send(ctx, ami.NewAction("QueueStatus"))
	if err != nil {
		return fmt.Errorf("queue status: %w", err)
	}
	qs := parseQueueStatus(resp.Events, e.now())
	for _, id := range e.store.QueueIDs() {
		q, ok := e.applyQueueStatus(id, qs, members)
		if ok {
			e.emitQueue(q)
		}
	}
	return nil
}

// refreshQueue re-reads one queue after a caller joined or left it.
func (e *Engine) refreshQueue(ctx context.Context, id string) error {
	resp, err := e.send(ctx, ami.NewAction("QueueStatus", "Queue", id))
	if err != nil {
		return fmt.Errorf("queue %s status: %w", id, err)
	}
	qs := parseQueueStatus(resp.Events, e.now())
	if q, ok := e.applyQueueStatus(id, qs, false); ok {
		e.emitQueue(q)
	}
	return nil
}

func (e *Engine) applyQueueStatus(id string, qs queueStatus, members bool) (model.Queue, bool) {
	q, ok := e.store.PatchQueue(id, func(q *model.Queue) {
		if p, ok := qs.Params[id]; ok {
			applyQueueParams(q, p)
		}
		callers := qs.Callers[id]
		if callers == nil {
			callers = make(map[string]model.QueueWaitingCaller)
		}
		q.WaitingCallers = callers
		if members {
			q.Members = make(map[string]model.QueueMember, len(qs.Members[id]))
			for _, m := range qs.Members[id] {
				q.Members[m.ID] = m
			}
		}
	})
	if !ok {
		return q, false
	}
	if members {
		for _, m := range qs.Members[id] {
			e.hydratePauses(m.Queue, m.ID)
		}
	}
	return q, true
}

// hydratePauses fills the last pause timestamps of a member from history.
func (e *Engine) hydratePauses(queue, member string) {
	if e.history == nil {
		return
	}
	e.goAsync("pause history", func(ctx context.Context) {
		in, out, err := e.history.LastPauses(ctx, queue, member)
		if err != nil {
			e.logger.Warn("pause history lookup failed",
				zap.String("queue", queue), zap.String("member", member), zap.Error(err))
			return
		}
		m, ok := e.store.PatchQueueMember(queue, member, func(m *model.QueueMember) {
			m.LastPausedIn, m.LastPausedOut = in, out
		})
		if ok {
			e.emit(events.QueueMemberChanged{Member: m})
		}
	})
}

// RunQueueRefresher refreshes queue statistics on a fixed interval until
// ctx is done.
func (e *Engine) RunQueueRefresher(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.QueueRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.RefreshQueues(ctx, false); err != nil {
				e.logger.Warn("periodic queue refresh failed", zap.Error(err))
			}
		}
	}
}

// memberInterface is how extensions join queues: through a Local channel
// so that the dialplan applies follow-me and call forward rules.
func memberInterface(ext string) string {
	return "Local/" + ext + "@from-queue/n"
}

func (e *Engine) checkQueueMember(queueID, ext string, mustBeMember bool) error {
	q, ok := e.store.Queue(queueID)
	if !ok {
		return ErrQueueNotFound
	}
	if mustBeMember {
		if _, ok := q.Members[ext]; !ok {
			return ErrMemberNotFound
		}
	}
	return nil
}

// QueueMemberAdd logs an extension into a queue as a dynamic member.
func (e *Engine) QueueMemberAdd(ctx context.Context, endpointType, ext, queueID string, paused bool) error {
	x, err := e.extension(endpointType, ext)
	if err != nil {
		return err
	}
	if err := e.checkQueueMember(queueID, ext, false); err != nil {
		return err
	}
	iface := memberInterface(ext)
	add := ami.NewAction("QueueAdd",
		"Queue", queueID,
		"Interface", iface,
		"MemberName", x.Name,
		"StateInterface", channelTech(x.Tech)+"/"+ext,
		"Paused", fmt.Sprint(paused),
	)
	audit := ami.NewAction("QueueLog",
		"Queue", queueID,
		"Event", queueLogAdd,
		"Interface", iface,
	)
	return e.queueAction(ctx, "queue member add", ext, add, audit)
}

// QueueMemberRemove logs an extension out of a queue.
func (e *Engine) QueueMemberRemove(ctx context.Context, endpointType, ext, queueID string) error {
	if _, err := e.extension(endpointType, ext); err != nil {
		return err
	}
	if err := e.checkQueueMember(queueID, ext, true); err != nil {
		return err
	}
	iface := memberInterface(ext)
	remove := ami.NewAction("QueueRemove", "Queue", queueID, "Interface", iface)
	audit := ami.NewAction("QueueLog",
		"Queue", queueID,
		"Event", queueLogRemove,
		"Interface", iface,
	)
	return e.queueAction(ctx, "queue member remove", ext, remove, audit)
}

// QueueMemberPauseUnpause pauses or resumes a member. An empty queueID
// applies to every queue the member belongs to; the audit entry is then
// written against "all".
func (e *Engine) QueueMemberPauseUnpause(ctx context.Context, endpointType, ext, queueID, reason string, paused bool) error {
	if _, err := e.extension(endpointType, ext); err != nil {
		return err
	}
	if queueID != "" {
		if err := e.checkQueueMember(queueID, ext, true); err != nil {
			return err
		}
	}
	iface := memberInterface(ext)
	pause := ami.NewAction("QueuePause",
		"Interface", iface,
		"Paused", fmt.Sprint(paused),
		"Queue", queueID,
		"Reason", reason,
	)
	logQueue, logEvent := queueID, queueLogUnpause
	if logQueue == "" {
		logQueue = queueLogAll
	}
	if paused {
		logEvent = queueLogPause
	}
	audit := ami.NewAction("QueueLog",
		"Queue", logQueue,
		"Event", logEvent,
		"Interface", iface,
		"Message", reason,
	)
	return e.queueAction(ctx, "queue member pause", ext, pause, audit)
}

// queueAction issues the membership action and then its audit entry. The
// audit is written whatever the action returned; the operation succeeds
// only when both do.
func (e *Engine) queueAction(ctx context.Context, op, ext string, action, audit ami.Action) error {
	_, actErr := e.send(ctx, action)
	_, auditErr := e.send(ctx, audit)
	if actErr != nil {
		if auditErr != nil {
			e.logger.Warn("queue audit failed", zap.String("op", op), zap.Error(auditErr))
		}
		return fmt.Errorf("%s: %w", op, actErr)
	}
	if auditErr != nil {
		return fmt.Errorf("%s audit: %w", op, auditErr)
	}
	e.after(op, ext)
	return nil
}
