package pbx

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sweeney/asterisk-proxy/internal/ami"
	"github.com/sweeney/asterisk-proxy/internal/model"
)

const dtmfDigits = "0123456789*#ABCD"

// SendDTMF plays tones on the extension's channel. With no call in
// progress the extension is called first and the tones are played once
// it answers.
func (e *Engine) SendDTMF(ctx context.Context, endpointType, ext, tones string) error {
	x, err := e.extension(endpointType, ext)
	if err != nil {
		return err
	}
	tones = strings.ToUpper(tones)
	if tones == "" || strings.Trim(tones, dtmfDigits) != "" {
		return fmt.Errorf("%w: tones %q", ErrInvalidRequest, tones)
	}

	ch := activeChannel(x)
	if ch == "" {
		ch, err = e.callForTones(ctx, x, len(tones))
		if err != nil {
			return err
		}
	}
	if err := e.playDTMF(ctx, ch, tones); err != nil {
		return err
	}
	e.after("dtmf", ext)
	return nil
}

// activeChannel returns the extension's leg of its first conversation.
func activeChannel(x model.Extension) string {
	ids := make([]string, 0, len(x.Conversations))
	for id := range x.Conversations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if ch, _, ok := x.Conversations[id].OwnChannel(x.ID); ok && ch.ID != "" {
			return ch.ID
		}
	}
	return ""
}

// callForTones rings the extension and waits for it to answer, then
// returns its new channel.
func (e *Engine) callForTones(ctx context.Context, x model.Extension, n int) (string, error) {
	hold := time.Duration(n)*e.cfg.DTMFDelay + 5*time.Second
	_, err := e.send(ctx, ami.NewAction("Originate",
		"Channel", dialString(x),
		"Application", "Wait",
		"Data", fmt.Sprint(int(hold.Seconds())),
		"CallerID", x.ID,
	))
	if err != nil {
		return "", fmt.Errorf("dtmf call to %s: %w", x.ID, err)
	}
	chs, err := e.channels(ctx)
	if err != nil {
		return "", err
	}
	ids := make([]string, 0, len(chs))
	for id, ch := range chs {
		if ch.Extension == x.ID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: no channel for %s after call", ErrChannelNotFound, x.ID)
	}
	sort.Strings(ids)
	return ids[len(ids)-1], nil
}

// playDTMF sends one tone at a time with a fixed pause between tones.
func (e *Engine) playDTMF(ctx context.Context, channel, tones string) error {
	for i, d := range tones {
		if i > 0 {
			if err := e.sleep(ctx, e.cfg.DTMFDelay); err != nil {
				return err
			}
		}
		if _, err := e.send(ctx, ami.NewAction("PlayDTMF", "Channel", channel, "Digit", string(d))); err != nil {
			return fmt.Errorf("dtmf %c on %s: %w", d, channel, err)
		}
	}
	return nil
}
