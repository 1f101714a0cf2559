// Package pbx is the state engine of the proxy. It keeps the in-memory
// model of the switch live from AMI events and translates call-control
// requests into AMI actions.
package pbx

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/ami"
	"github.com/sweeney/asterisk-proxy/internal/events"
	"github.com/sweeney/asterisk-proxy/internal/metrics"
	"github.com/sweeney/asterisk-proxy/internal/model"
	"github.com/sweeney/asterisk-proxy/internal/topology"
)

// Gateway issues actions to the switch. ami.Client implements it.
type Gateway interface {
	Send(ctx context.Context, a ami.Action) (*ami.Response, error)
}

// History reads queue pause history.
type History interface {
	LastPauses(ctx context.Context, queue, member string) (in, out model.PauseEvent, err error)
}

// Directory resolves a calling number to notes and phonebook contacts.
type Directory interface {
	Lookup(ctx context.Context, number string) (model.CallerIdentity, error)
}

// RecordingStore persists the recording set across restarts.
type RecordingStore interface {
	Load(ctx context.Context) (map[string]bool, error)
	Add(ctx context.Context, convID string, muted bool) error
	Remove(ctx context.Context, convID string) error
}

// Config holds the switch dialplan conventions the engine relies on.
type Config struct {
	Prefix               string
	InternalContext      string
	QueueContext         string
	VoicemailContext     string
	ParkLot              string
	HangupExten          string
	RecordDir            string
	DTMFDelay            time.Duration
	QueueRefreshInterval time.Duration
	ExternalContexts     []string
}

const (
	defaultDTMFDelay       = 300 * time.Millisecond
	defaultQueueRefresh    = 60 * time.Second
	defaultInternalContext = "from-internal"
	defaultHangupExten     = "hangup-nonexistent"
	asyncTimeout           = 30 * time.Second
)

// Option configures an Engine.
type Option func(*Engine)

func WithHistory(h History) Option { return func(e *Engine) { e.history = h } }

func WithDirectory(d Directory) Option { return func(e *Engine) { e.directory = d } }

func WithRecordingStore(r RecordingStore) Option { return func(e *Engine) { e.recordings = r } }

// WithEmitter sets where domain events go.
func WithEmitter(em events.Emitter) Option {
	return func(e *Engine) {
		if em != nil {
			e.emitter = em
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithSleep replaces the wait between DTMF tones.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// Engine owns the Store and everything that mutates it.
type Engine struct {
	gw         Gateway
	registry   *topology.Registry
	cfg        Config
	store      *Store
	history    History
	directory  Directory
	recordings RecordingStore
	emitter    events.Emitter
	logger     *zap.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error

	external map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Engine. Call Bootstrap before handling events.
func New(gw Gateway, registry *topology.Registry, cfg Config, opts ...Option) *Engine {
	if cfg.DTMFDelay <= 0 {
		cfg.DTMFDelay = defaultDTMFDelay
	}
	if cfg.QueueRefreshInterval <= 0 {
		cfg.QueueRefreshInterval = defaultQueueRefresh
	}
	if cfg.InternalContext == "" {
		cfg.InternalContext = defaultInternalContext
	}
	if cfg.HangupExten == "" {
		cfg.HangupExten = defaultHangupExten
	}
	if registry == nil {
		registry, _ = topology.New(nil)
	}
	e := &Engine{
		gw:       gw,
		registry: registry,
		cfg:      cfg,
		emitter:  events.Nop,
		logger:   zap.NewNop(),
		now:      time.Now,
		sleep:    sleepCtx,
		external: make(map[string]bool, len(cfg.ExternalContexts)),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, c := range cfg.ExternalContexts {
		e.external[c] = true
	}
	e.store = NewStore(e.logger.Named("store"))
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// Store exposes the entity store for read access.
func (e *Engine) Store() *Store {
	return e.store
}

// Wait blocks until background work started so far has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close cancels background work and waits for it.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

// goAsync runs best-effort work outside the caller. Panics are logged.
func (e *Engine) goAsync(name string, fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.HandlerPanicsTotal.Inc()
				e.logger.Error("panic in background task", zap.String("task", name), zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(e.ctx, asyncTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// send issues one action and records its outcome.
func (e *Engine) send(ctx context.Context, a ami.Action) (*ami.Response, error) {
	start := time.Now()
	resp, err := e.gw.Send(ctx, a)
	metrics.ActionDuration.WithLabelValues(a.Name).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
		e.logger.Warn("action failed", zap.String("action", a.Name), zap.Error(err))
	}
	metrics.ActionsTotal.WithLabelValues(a.Name, status).Inc()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strings.ToLower(a.Name), err)
	}
	return resp, nil
}

// sendAll issues actions in order and stops at the first failure.
func (e *Engine) sendAll(ctx context.Context, actions ...ami.Action) error {
	for _, a := range actions {
		if _, err := e.send(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) emit(evt events.Event) {
	metrics.DomainEventsTotal.WithLabelValues(string(evt.Name())).Inc()
	e.emitter.Emit(evt)
}

func (e *Engine) emitExtension(ext model.Extension) {
	e.emit(events.ExtenChanged{Extension: ext})
}

func (e *Engine) emitTrunk(t model.Trunk) {
	e.emit(events.TrunkChanged{Trunk: t})
}

func (e *Engine) emitQueue(q model.Queue) {
	e.emit(events.QueueChanged{Queue: q})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
