package pbx

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/ami"
	"github.com/sweeney/asterisk-proxy/internal/model"
)

// EndpointExtension is the only endpoint type call control accepts.
const EndpointExtension = "extension"

// extension validates the endpoint of a request.
func (e *Engine) extension(endpointType, id string) (model.Extension, error) {
	if endpointType != EndpointExtension {
		return model.Extension{}, fmt.Errorf("%w: type %q", ErrEndpointNotFound, endpointType)
	}
	x, ok := e.store.Extension(id)
	if !ok {
		return model.Extension{}, fmt.Errorf("%w: extension %q", ErrEndpointNotFound, id)
	}
	return x, nil
}

// conversation validates the endpoint and returns one of its conversations.
func (e *Engine) conversation(endpointType, ext, convID string) (model.Extension, model.Conversation, error) {
	x, err := e.extension(endpointType, ext)
	if err != nil {
		return x, model.Conversation{}, err
	}
	c, ok := x.Conversations[convID]
	if !ok {
		return x, c, fmt.Errorf("%w: %q on extension %s", ErrConversationNotFound, convID, ext)
	}
	return x, c, nil
}

// ownChannel is the leg of the conversation that belongs to ext.
func ownChannel(c model.Conversation, ext string) (string, error) {
	ch, _, ok := c.OwnChannel(ext)
	if !ok || ch.ID == "" {
		return "", fmt.Errorf("%w: extension %s in %s", ErrChannelNotFound, ext, c.ID)
	}
	return ch.ID, nil
}

// counterpartChannel is the leg of the conversation opposite to ext.
func counterpartChannel(c model.Conversation, ext string) (string, error) {
	ch, ok := c.Counterpart(ext)
	if !ok || ch.ID == "" {
		return "", fmt.Errorf("%w: counterpart of %s in %s", ErrChannelNotFound, ext, c.ID)
	}
	return ch.ID, nil
}

// after reconciles the extensions touched by an operation. It never
// changes the result already returned.
func (e *Engine) after(op string, exts ...string) {
	e.logger.Debug("operation done", zap.String("op", op), zap.Strings("extensions", exts))
	e.reconcileAsync(op, extScope(exts...))
}

// AddPrefix prepends the configured international prefix to an external
// number. Known extensions and already prefixed numbers are unchanged.
func (e *Engine) AddPrefix(num string) string {
	p := e.cfg.Prefix
	if p == "" || num == "" || e.store.HasExtension(num) || strings.HasPrefix(num, p) {
		return num
	}
	return p + num
}

// dialString is the channel used to reach an extension.
func dialString(x model.Extension) string {
	return channelTech(x.Tech) + "/" + x.ID
}

// Call makes the extension's phone ring and then dials the destination.
func (e *Engine) Call(ctx context.Context, endpointType, ext, to string) error {
	x, err := e.extension(endpointType, ext)
	if err != nil {
		return err
	}
	if to == "" {
		return fmt.Errorf("%w: missing destination", ErrInvalidRequest)
	}
	_, err = e.send(ctx, ami.NewAction("Originate",
		"Channel", dialString(x),
		"Context", e.cfg.InternalContext,
		"Exten", e.AddPrefix(to),
		"Priority", "1",
		"CallerID", x.ID,
		"Async", "true",
	))
	if err != nil {
		return fmt.Errorf("call %s from %s: %w", to, ext, err)
	}
	e.after("call", ext)
	return nil
}

// HangupConversation hangs up the extension's own leg.
func (e *Engine) HangupConversation(ctx context.Context, endpointType, ext, convID string) error {
	_, c, err := e.conversation(endpointType, ext, convID)
	if err != nil {
		return err
	}
	ch, err := ownChannel(c, ext)
	if err != nil {
		return err
	}
	if _, err := e.send(ctx, ami.NewAction("Hangup", "Channel", ch)); err != nil {
		return fmt.Errorf("hangup %s: %w", convID, err)
	}
	e.after("hangup", ext)
	return nil
}

// ForceHangupConversation ends the extension's leg by redirecting it to a
// destination that does not exist. It works on channels a plain Hangup
// cannot reach, such as legs held by an application.
func (e *Engine) ForceHangupConversation(ctx context.Context, endpointType, ext, convID string) error {
	_, c, err := e.conversation(endpointType, ext, convID)
	if err != nil {
		return err
	}
	ch, err := ownChannel(c, ext)
	if err != nil {
		return err
	}
	if err := e.redirect(ctx, ch, e.cfg.InternalContext, e.cfg.HangupExten); err != nil {
		return fmt.Errorf("force hangup %s: %w", convID, err)
	}
	e.after("force hangup", ext)
	return nil
}

// HangupChannel hangs up one channel of the extension.
func (e *Engine) HangupChannel(ctx context.Context, endpointType, ext, channel string) error {
	if _, err := e.extension(endpointType, ext); err != nil {
		return err
	}
	if _, name := model.Endpoint(channel); name != ext {
		return fmt.Errorf("%w: %s does not belong to %s", ErrChannelNotFound, channel, ext)
	}
	if _, err := e.send(ctx, ami.NewAction("Hangup", "Channel", channel)); err != nil {
		return fmt.Errorf("hangup channel %s: %w", channel, err)
	}
	e.after("hangup channel", ext)
	return nil
}

// MuteConversation stops the extension's audio from reaching the other
// party. Recordings are not affected.
func (e *Engine) MuteConversation(ctx context.Context, endpointType, ext, convID string) error {
	return e.muteAudio(ctx, endpointType, ext, convID, true)
}

// UnmuteConversation reverts MuteConversation.
func (e *Engine) UnmuteConversation(ctx context.Context, endpointType, ext, convID string) error {
	return e.muteAudio(ctx, endpointType, ext, convID, false)
}

func (e *Engine) muteAudio(ctx context.Context, endpointType, ext, convID string, on bool) error {
	_, c, err := e.conversation(endpointType, ext, convID)
	if err != nil {
		return err
	}
	ch, err := ownChannel(c, ext)
	if err != nil {
		return err
	}
	state := "off"
	if on {
		state = "on"
	}
	if _, err := e.send(ctx, ami.NewAction("MuteAudio", "Channel", ch, "Direction", "in", "State", state)); err != nil {
		return fmt.Errorf("mute %s %s: %w", convID, state, err)
	}
	e.after("mute", ext)
	return nil
}

func (e *Engine) redirect(ctx context.Context, channel, dialContext, exten string) error {
	_, err := e.send(ctx, ami.NewAction("Redirect",
		"Channel", channel,
		"Context", dialContext,
		"Exten", exten,
		"Priority", "1",
	))
	return err
}

// RedirectConversation blind transfers the other party to a destination.
func (e *Engine) RedirectConversation(ctx context.Context, endpointType, ext, convID, to string) error {
	if to == "" {
		return fmt.Errorf("%w: missing destination", ErrInvalidRequest)
	}
	_, c, err := e.conversation(endpointType, ext, convID)
	if err != nil {
		return err
	}
	ch, err := counterpartChannel(c, ext)
	if err != nil {
		return err
	}
	if err := e.redirect(ctx, ch, e.cfg.InternalContext, e.AddPrefix(to)); err != nil {
		return fmt.Errorf("redirect %s to %s: %w", convID, to, err)
	}
	e.after("redirect", ext)
	return nil
}

// AttendedTransferConversation starts an attended transfer from the
// extension's own leg: the other party waits while the extension consults
// the destination.
func (e *Engine) AttendedTransferConversation(ctx context.Context, endpointType, ext, convID, to string) error {
	if to == "" {
		return fmt.Errorf("%w: missing destination", ErrInvalidRequest)
	}
	_, c, err := e.conversation(endpointType, ext, convID)
	if err != nil {
		return err
	}
	ch, err := ownChannel(c, ext)
	if err != nil {
		return err
	}
	_, err = e.send(ctx, ami.NewAction("Atxfer",
		"Channel", ch,
		"Exten", e.AddPrefix(to),
		"Context", e.cfg.InternalContext,
		"Priority", "1",
	))
	if err != nil {
		return fmt.Errorf("attended transfer %s to %s: %w", convID, to, err)
	}
	e.after("attended transfer", ext)
	return nil
}

// TransferToVoicemail sends the other party to a mailbox.
func (e *Engine) TransferToVoicemail(ctx context.Context, endpointType, ext, convID, mailbox string) error {
	if mailbox == "" {
		return fmt.Errorf("%w: missing voicemail", ErrInvalidRequest)
	}
	_, c, err := e.conversation(endpointType, ext, convID)
	if err != nil {
		return err
	}
	ch, err := counterpartChannel(c, ext)
	if err != nil {
		return err
	}
	vmContext := e.cfg.VoicemailContext
	if vmContext == "" {
		vmContext = e.cfg.InternalContext
	}
	if err := e.redirect(ctx, ch, vmContext, "vmu"+mailbox); err != nil {
		return fmt.Errorf("transfer %s to voicemail %s: %w", convID, mailbox, err)
	}
	e.after("transfer to voicemail", ext)
	return nil
}

// PickupConversation moves the other party of ext's conversation to the
// picking extension. Used to answer a call ringing elsewhere.
func (e *Engine) PickupConversation(ctx context.Context, endpointType, ext, convID, picker string) error {
	_, c, err := e.conversation(endpointType, ext, convID)
	if err != nil {
		return err
	}
	if _, err := e.extension(EndpointExtension, picker); err != nil {
		return err
	}
	ch, err := counterpartChannel(c, ext)
	if err != nil {
		return err
	}
	if err := e.redirect(ctx, ch, e.cfg.InternalContext, picker); err != nil {
		return fmt.Errorf("pickup %s by %s: %w", convID, picker, err)
	}
	e.after("pickup", ext, picker)
	return nil
}
