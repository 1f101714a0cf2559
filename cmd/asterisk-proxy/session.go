package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/ami"
	"github.com/sweeney/asterisk-proxy/internal/config"
	"github.com/sweeney/asterisk-proxy/internal/metrics"
	"github.com/sweeney/asterisk-proxy/internal/pbx"
)

// sessionGateway hands engine actions to whichever AMI session is current.
// Between sessions every action fails with ami.ErrClosed.
type sessionGateway struct {
	mu     sync.RWMutex
	client *ami.Client
}

func (g *sessionGateway) Send(ctx context.Context, a ami.Action) (*ami.Response, error) {
	g.mu.RLock()
	c := g.client
	g.mu.RUnlock()
	if c == nil {
		return nil, ami.ErrClosed
	}
	return c.Send(ctx, a)
}

// Connected reports whether a logged-in session is attached.
func (g *sessionGateway) Connected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.client != nil
}

func (g *sessionGateway) set(c *ami.Client) {
	g.mu.Lock()
	g.client = c
	g.mu.Unlock()
	if c != nil {
		metrics.AMIConnected.Set(1)
	} else {
		metrics.AMIConnected.Set(0)
	}
}

type dialFunc func(ctx context.Context, addr string, opts ...ami.ClientOption) (*ami.Client, error)

// session keeps one AMI connection alive and feeds it to the engine.
type session struct {
	cfg    config.AMIConfig
	engine *pbx.Engine
	gw     *sessionGateway
	logger *zap.Logger
	dial   dialFunc

	booted atomic.Bool
}

// loop runs sessions until ctx is done, waiting ReconnectDelay between them.
func (s *session) loop(ctx context.Context) {
	for {
		err := s.run(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("AMI session ended, reconnecting",
			zap.Error(err), zap.Duration("delay", s.cfg.ReconnectDelay))
		select {
		case <-time.After(s.cfg.ReconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (s *session) run(ctx context.Context) error {
	dial := s.dial
	if dial == nil {
		dial = ami.Dial
	}
	addr := s.cfg.Addr()
	s.logger.Info("connecting to AMI", zap.String("addr", addr))

	client, err := dial(ctx, addr, ami.WithLogger(s.logger.Named("ami")), ami.WithActionTimeout(s.cfg.ActionTimeout))
	if err != nil {
		return err
	}
	defer client.Close()

	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-client.Done():
		}
	}()

	if err := client.Login(ctx, s.cfg.Username, s.cfg.Secret); err != nil {
		return err
	}
	s.gw.set(client)
	defer s.gw.set(nil)
	s.logger.Info("AMI authenticated")

	// The topology is loaded once; later sessions only refresh switch state.
	if !s.booted.Load() {
		if err := s.engine.Bootstrap(ctx); err != nil {
			return err
		}
		s.booted.Store(true)
	} else if err := s.engine.Resync(ctx); err != nil {
		return err
	}

	rctx, rcancel := context.WithCancel(ctx)
	defer rcancel()
	go s.engine.RunQueueRefresher(rctx)

	s.engine.Run(ctx, client.Events())
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("AMI connection closed: %w", client.Err())
}
