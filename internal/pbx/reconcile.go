package pbx

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/ami"
	"github.com/sweeney/asterisk-proxy/internal/correlator"
	"github.com/sweeney/asterisk-proxy/internal/metrics"
	"github.com/sweeney/asterisk-proxy/internal/model"
)

// extScope limits a pass to the given extensions.
func extScope(ids ...string) correlator.Scope {
	s := correlator.Scope{Extensions: make(map[string]bool), Trunks: make(map[string]bool)}
	for _, id := range ids {
		s.Extensions[id] = true
	}
	return s
}

// ownerScope builds the scope covering the owners of the given channels.
func (e *Engine) ownerScope(channels ...string) (correlator.Scope, bool) {
	s := correlator.Scope{Extensions: make(map[string]bool), Trunks: make(map[string]bool)}
	found := false
	for _, id := range channels {
		ext, trunk := e.owner(id)
		switch {
		case ext != "":
			s.Extensions[ext] = true
			found = true
		case trunk != "":
			s.Trunks[trunk] = true
			found = true
		}
	}
	return s, found
}

// owner attributes a channel id to an extension or a trunk.
func (e *Engine) owner(channelID string) (ext, trunk string) {
	tech, name := model.Endpoint(channelID)
	if tech == "" || strings.EqualFold(tech, "Local") {
		return "", ""
	}
	if e.store.HasExtension(name) {
		return name, ""
	}
	if e.store.HasTrunk(name) {
		return "", name
	}
	return "", ""
}

// attribute fills the extension, trunk and queue of every channel.
func (e *Engine) attribute(chs map[string]model.Channel) {
	for id, ch := range chs {
		ch.Extension, ch.Trunk = e.owner(id)
		if strings.EqualFold(ch.Application, "Queue") {
			ch.Queue = firstField(ch.AppData)
		}
		chs[id] = ch
	}
	// The first half of a queue leg inherits the queue its caller waits in.
	for id, ch := range chs {
		if !correlator.IsFirstLeg(id) || ch.Queue != "" {
			continue
		}
		if b, ok := chs[ch.BridgedChannel]; ok && strings.EqualFold(b.Application, "Queue") {
			ch.Queue = firstField(b.AppData)
			chs[id] = ch
		}
	}
}

// channels queries the live channel list and attributes it.
func (e *Engine) channels(ctx context.Context) (map[string]model.Channel, error) {
	resp, err := e.send(ctx, ami.NewAction("CoreShowChannels"))
	if err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	chs := parseChannels(resp.Events)
	e.attribute(chs)
	return chs, nil
}

// reconcile re-derives the conversations of the scope from a fresh
// channel list.
func (e *Engine) reconcile(ctx context.Context, scope correlator.Scope) error {
	chs, err := e.channels(ctx)
	if err != nil {
		return err
	}
	e.apply(chs, scope)
	return nil
}

// reconcileLinked is reconcile for ringing calls: the switch does not bridge
// the legs until answer, so the dial pairs are linked before correlation.
func (e *Engine) reconcileLinked(ctx context.Context, scope correlator.Scope, links map[string]string) (map[string]model.Channel, error) {
	chs, err := e.channels(ctx)
	if err != nil {
		return nil, err
	}
	for a, b := range links {
		ca, okA := chs[a]
		cb, okB := chs[b]
		if !okA || !okB {
			continue
		}
		if ca.BridgedChannel == "" {
			ca.BridgedChannel = b
			chs[a] = ca
		}
		if cb.BridgedChannel == "" {
			cb.BridgedChannel = a
			chs[b] = cb
		}
	}
	e.apply(chs, scope)
	return chs, nil
}

// apply installs conversations and notifies every changed owner.
func (e *Engine) apply(chs map[string]model.Channel, scope correlator.Scope) {
	res := correlator.Correlate(chs, scope, e.store.RecordingState)
	exts, trunks := e.store.ApplyConversations(res, scope)

	label := "targeted"
	if scope.All() {
		label = "full"
		metrics.ActiveConversations.Set(float64(res.Count()))
	}
	metrics.ReconcilePassesTotal.WithLabelValues(label).Inc()
	e.logger.Debug("reconciled",
		zap.String("scope", label),
		zap.Int("channels", len(chs)),
		zap.Int("conversations", res.Count()))

	for _, id := range exts {
		if ext, ok := e.store.Extension(id); ok {
			e.emitExtension(ext)
		}
	}
	for _, id := range trunks {
		if t, ok := e.store.Trunk(id); ok {
			e.emitTrunk(t)
		}
	}
}

// reconcileAsync runs a pass in the background; failures are only logged.
func (e *Engine) reconcileAsync(reason string, scope correlator.Scope) {
	e.goAsync("reconcile", func(ctx context.Context) {
		if err := e.reconcile(ctx, scope); err != nil {
			e.logger.Warn("reconciliation failed", zap.String("reason", reason), zap.Error(err))
		}
	})
}

// ReconcileAll runs a full pass over every extension and trunk.
func (e *Engine) ReconcileAll(ctx context.Context) error {
	return e.reconcile(ctx, correlator.Scope{})
}
