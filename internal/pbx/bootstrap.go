package pbx

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/ami"
	"github.com/sweeney/asterisk-proxy/internal/model"
	"github.com/sweeney/asterisk-proxy/internal/topology"
)

// Bootstrap creates the entities described by the topology and fills them
// from the switch: peers, settings, queues, parkings and live calls.
// Configuration wins on labels. Records the switch does not report are kept
// offline and logged.
func (e *Engine) Bootstrap(ctx context.Context) error {
	e.loadRecordings(ctx)
	e.loadTopology()

	if err := e.refreshPeers(ctx); err != nil {
		return err
	}
	e.loadSettings(ctx)
	if err := e.RefreshQueues(ctx, true); err != nil {
		e.logger.Warn("queue status unavailable", zap.Error(err))
	}
	if err := e.refreshParkings(ctx); err != nil {
		e.logger.Warn("parked calls unavailable", zap.Error(err))
	}
	if err := e.ReconcileAll(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	e.logger.Info("bootstrap complete",
		zap.Int("extensions", len(e.store.Extensions())),
		zap.Int("trunks", len(e.store.Trunks())),
		zap.Int("queues", len(e.store.QueueIDs())),
		zap.Int("parkings", len(e.store.Parkings())),
		zap.Int("conversations", e.store.ConversationCount()))
	return nil
}

// Resync refreshes everything the switch reports without reloading the
// topology. It runs after the switch restarts.
func (e *Engine) Resync(ctx context.Context) error {
	if err := e.refreshPeers(ctx); err != nil {
		return err
	}
	if err := e.RefreshQueues(ctx, true); err != nil {
		e.logger.Warn("queue status unavailable", zap.Error(err))
	}
	if err := e.refreshParkings(ctx); err != nil {
		e.logger.Warn("parked calls unavailable", zap.Error(err))
	}
	return e.ReconcileAll(ctx)
}

func (e *Engine) loadRecordings(ctx context.Context) {
	if e.recordings == nil {
		return
	}
	recs, err := e.recordings.Load(ctx)
	if err != nil {
		e.logger.Warn("loading recording set", zap.Error(err))
		return
	}
	for id, muted := range recs {
		e.store.SetRecording(id, muted)
	}
	e.logger.Info("recording set restored", zap.Int("count", len(recs)))
}

func (e *Engine) loadTopology() {
	for _, r := range e.registry.ByKind(topology.KindExtension) {
		e.store.UpsertExtension(model.Extension{
			ID:        r.Key(),
			Tech:      model.Tech(r.Tech),
			Name:      r.Label,
			Status:    model.StatusOffline,
			WebSocket: strings.Contains(strings.ToLower(r.Transport), "ws"),
		})
	}
	for _, r := range e.registry.ByKind(topology.KindTrunk) {
		e.store.UpsertTrunk(model.Trunk{
			ID:          r.Key(),
			Tech:        model.Tech(r.Tech),
			Name:        r.Label,
			MaxChannels: r.MaxChannels,
			Status:      model.StatusOffline,
		})
	}
	for _, r := range e.registry.ByKind(topology.KindQueue) {
		e.store.UpsertQueue(model.Queue{
			ID:             r.Key(),
			Name:           r.Label,
			DynamicMembers: r.DynamicMembers,
		})
	}
	for _, r := range e.registry.ByKind(topology.KindParking) {
		e.store.UpsertParking(model.Parking{ID: r.Key(), Name: r.Label})
	}
}

// refreshPeers reads both peer lists and the SIP details of each extension.
func (e *Engine) refreshPeers(ctx context.Context) error {
	resp, err := e.send(ctx, ami.NewAction("SIPpeers"))
	if err != nil {
		return fmt.Errorf("listing sip peers: %w", err)
	}
	peers := parsePeers(resp.Events)

	if resp, err := e.send(ctx, ami.NewAction("IAXpeers")); err != nil {
		e.logger.Warn("iax peers unavailable", zap.Error(err))
	} else {
		peers = append(peers, parsePeers(resp.Events)...)
	}

	seen := make(map[string]bool, len(peers))
	for _, p := range peers {
		seen[p.Name] = true
		switch {
		case e.store.HasExtension(p.Name):
			e.store.PatchExtension(p.Name, func(x *model.Extension) {
				x.IP, x.Port = p.IP, p.Port
				x.Status = presence(p.Status, x.DND)
			})
		case e.store.HasTrunk(p.Name):
			e.store.PatchTrunk(p.Name, func(t *model.Trunk) {
				t.IP, t.Port, t.Status = p.IP, p.Port, p.Status
			})
		}
	}

	for id, x := range e.store.Extensions() {
		if !seen[id] {
			e.logger.Warn("configured extension not reported by the switch", zap.String("exten", id))
			continue
		}
		if x.Tech == model.TechSIP {
			if err := e.refreshSIPDetails(ctx, id); err != nil {
				e.logger.Warn("sip peer details", zap.String("exten", id), zap.Error(err))
			}
		}
	}
	for id := range e.store.Trunks() {
		if !seen[id] {
			e.logger.Warn("configured trunk not reported by the switch", zap.String("trunk", id))
		}
	}
	return nil
}

// refreshSIPDetails reads user agent, context and address of one peer.
func (e *Engine) refreshSIPDetails(ctx context.Context, id string) error {
	resp, err := e.send(ctx, ami.NewAction("SIPshowpeer", "Peer", id))
	if err != nil {
		return err
	}
	e.store.PatchExtension(id, func(x *model.Extension) {
		if ua := resp.Get("SIP-Useragent"); ua != "" {
			x.UserAgent = ua
		}
		if c := resp.Get("Context"); c != "" {
			x.Context = c
		}
		if ip := cleanAddr(resp.Get("Address-IP")); ip != "" {
			x.IP = ip
		}
		if port := resp.Get("Address-Port"); port != "" && port != "0" {
			x.Port = port
		}
	})
	return nil
}

// refreshIAXDetails reads the address of one IAX peer from the peer list.
func (e *Engine) refreshIAXDetails(ctx context.Context, id string) error {
	resp, err := e.send(ctx, ami.NewAction("IAXpeers"))
	if err != nil {
		return err
	}
	for _, p := range parsePeers(resp.Events) {
		if p.Name != id {
			continue
		}
		e.store.PatchExtension(id, func(x *model.Extension) {
			x.IP, x.Port = p.IP, p.Port
		})
	}
	return nil
}

// refreshParkings reads the parked calls and empties the other parkings.
func (e *Engine) refreshParkings(ctx context.Context) error {
	resp, err := e.send(ctx, ami.NewAction("ParkedCalls"))
	if err != nil {
		return err
	}
	parked := make(map[string]model.ParkedCaller)
	now := e.now()
	for _, ev := range resp.Events {
		if ev.Type() != "ParkedCall" {
			continue
		}
		id, pc := parseParkedCaller(ev, now)
		parked[id] = pc
	}
	for id := range e.store.Parkings() {
		var caller *model.ParkedCaller
		if pc, ok := parked[id]; ok {
			caller = &pc
		}
		e.store.SetParkedCaller(id, caller)
	}
	return nil
}
