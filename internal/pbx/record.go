package pbx

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/ami"
	"github.com/sweeney/asterisk-proxy/internal/model"
)

// recordingPath builds "<dir>/YYYY/MM/DD/exten-<ext>-<other>-<stamp>-<uniqueid>.wav".
func (e *Engine) recordingPath(ext string, c model.Conversation) (dir, file string) {
	now := e.now()
	other := c.CounterpartNum
	if other == "" {
		other = "unknown"
	}
	uid := strings.ReplaceAll(c.Source.UniqueID, "/", "")
	file = fmt.Sprintf("exten-%s-%s-%s-%s.wav", ext, other, now.Format("20060102-150405"), uid)
	dir = path.Join(e.cfg.RecordDir, now.Format("2006/01/02"))
	return dir, file
}

// recordedChannel is the leg MixMonitor is attached to. Both owners of a
// conversation resolve the same leg so either of them can stop it.
func recordedChannel(c model.Conversation) (string, error) {
	if c.Source.ID == "" {
		return "", fmt.Errorf("%w: no source leg in %s", ErrChannelNotFound, c.ID)
	}
	return c.Source.ID, nil
}

// StartRecord starts recording a conversation. The channel variables the
// dialplan and the call detail records rely on are set first, one after
// the other; the recording only starts if all of them succeeded.
func (e *Engine) StartRecord(ctx context.Context, endpointType, ext, convID string) error {
	_, c, err := e.conversation(endpointType, ext, convID)
	if err != nil {
		return err
	}
	ch, err := recordedChannel(c)
	if err != nil {
		return err
	}
	dir, file := e.recordingPath(ext, c)
	full := path.Join(dir, file)

	steps := []ami.Action{
		setvar(ch, "AUDIOHOOK_INHERIT(MixMonitor)", "yes"),
		setvar(ch, "MASTER_CHANNEL(ONETOUCH_REC)", "RECORDING"),
		setvar(ch, "MASTER_CHANNEL(REC_STATUS)", "RECORDING"),
		setvar(ch, "MASTER_CHANNEL(MIXMONITOR_FILENAME)", full),
		setvar(ch, "MASTER_CHANNEL(CDR(recordingfile))", file),
		ami.NewAction("MixMonitor", "Channel", ch, "File", full),
	}
	if err := e.sendAll(ctx, steps...); err != nil {
		return fmt.Errorf("start record %s: %w", convID, err)
	}

	e.store.SetRecording(convID, false)
	e.persistRecording(ctx, convID, true, false)
	e.markRecording(convID, true, false)
	e.logger.Info("recording started", zap.String("conversation", convID), zap.String("file", full))
	e.after("start record", ext)
	return nil
}

// StopRecord stops recording a conversation.
func (e *Engine) StopRecord(ctx context.Context, endpointType, ext, convID string) error {
	_, c, err := e.conversation(endpointType, ext, convID)
	if err != nil {
		return err
	}
	ch, err := recordedChannel(c)
	if err != nil {
		return err
	}
	if _, err := e.send(ctx, ami.NewAction("StopMixMonitor", "Channel", ch)); err != nil {
		return fmt.Errorf("stop record %s: %w", convID, err)
	}
	e.store.RemoveRecording(convID)
	e.persistRecording(ctx, convID, false, false)
	e.markRecording(convID, false, false)
	e.after("stop record", ext)
	return nil
}

// MuteRecord keeps the recording running but writes silence. Muting a
// conversation that is not being recorded succeeds without doing anything.
func (e *Engine) MuteRecord(ctx context.Context, endpointType, ext, convID string) error {
	return e.muteRecord(ctx, endpointType, ext, convID, true)
}

// UnmuteRecord reverts MuteRecord.
func (e *Engine) UnmuteRecord(ctx context.Context, endpointType, ext, convID string) error {
	return e.muteRecord(ctx, endpointType, ext, convID, false)
}

func (e *Engine) muteRecord(ctx context.Context, endpointType, ext, convID string, mute bool) error {
	_, c, err := e.conversation(endpointType, ext, convID)
	if err != nil {
		return err
	}
	if recording, _ := e.store.RecordingState(convID); !recording {
		return nil
	}
	ch, err := recordedChannel(c)
	if err != nil {
		return err
	}
	state := "0"
	if mute {
		state = "1"
	}
	_, err = e.send(ctx, ami.NewAction("MixMonitorMute",
		"Channel", ch,
		"Direction", "both",
		"State", state,
	))
	if err != nil {
		return fmt.Errorf("mute record %s: %w", convID, err)
	}
	e.store.SetRecording(convID, mute)
	e.persistRecording(ctx, convID, true, mute)
	e.markRecording(convID, true, mute)
	e.after("mute record", ext)
	return nil
}

func setvar(channel, name, value string) ami.Action {
	return ami.NewAction("Setvar", "Channel", channel, "Variable", name, "Value", value)
}

// markRecording updates every live conversation sharing the id and
// notifies each owner.
func (e *Engine) markRecording(convID string, recording, muted bool) {
	exts, trunks := e.store.MarkRecording(convID, recording, muted)
	for _, x := range exts {
		e.emitExtension(x)
	}
	for _, t := range trunks {
		e.emitTrunk(t)
	}
}

// persistRecording mirrors the recording set; failures only cost the state
// after a restart.
func (e *Engine) persistRecording(ctx context.Context, convID string, recording, muted bool) {
	if e.recordings == nil {
		return
	}
	var err error
	if recording {
		err = e.recordings.Add(ctx, convID, muted)
	} else {
		err = e.recordings.Remove(ctx, convID)
	}
	if err != nil {
		e.logger.Warn("recording mirror update failed", zap.String("conversation", convID), zap.Error(err))
	}
}
