package pbx

import (
	"context"
	"fmt"

	"github.com/sweeney/asterisk-proxy/internal/ami"
)

// ChanSpy options: q skips the beep, B lets the spier talk to both parties.
const (
	spyListen = "q"
	spySpeak  = "qB"
)

// StartSpyListen lets spier listen to ext's side of a conversation.
func (e *Engine) StartSpyListen(ctx context.Context, endpointType, ext, convID, spier string) error {
	return e.spy(ctx, endpointType, ext, convID, spier, spyListen)
}

// StartSpySpeak lets spier listen and talk to both parties.
func (e *Engine) StartSpySpeak(ctx context.Context, endpointType, ext, convID, spier string) error {
	return e.spy(ctx, endpointType, ext, convID, spier, spySpeak)
}

func (e *Engine) spy(ctx context.Context, endpointType, ext, convID, spier, options string) error {
	_, c, err := e.conversation(endpointType, ext, convID)
	if err != nil {
		return err
	}
	s, err := e.extension(EndpointExtension, spier)
	if err != nil {
		return err
	}
	spied, err := ownChannel(c, ext)
	if err != nil {
		return err
	}
	spierChannel := dialString(s)
	_, err = e.send(ctx, ami.NewAction("Originate",
		"Channel", spierChannel,
		"Application", "ChanSpy",
		"Data", spied+","+options,
		"CallerID", "spy <"+ext+">",
		"Async", "true",
	))
	if err != nil {
		return fmt.Errorf("spy %s by %s: %w", convID, spier, err)
	}
	e.after("spy", spier)
	return nil
}
