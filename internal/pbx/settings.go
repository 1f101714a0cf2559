package pbx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/ami"
	"github.com/sweeney/asterisk-proxy/internal/model"
)

// Families of the switch database holding per extension settings.
const (
	dbFamilyDND = "DND"
	dbFamilyCF  = "CF"
	dndOn       = "YES"
	vmPrefix    = "vmu"
)

// dbGet reads one key. A missing key is an empty value, not an error.
func (e *Engine) dbGet(ctx context.Context, family, key string) (string, error) {
	resp, err := e.send(ctx, ami.NewAction("DBGet", "Family", family, "Key", key))
	if err != nil {
		if isMissingKey(err) {
			return "", nil
		}
		return "", err
	}
	for _, ev := range resp.Events {
		if v := ev.Get("Val"); v != "" {
			return v, nil
		}
	}
	return resp.Get("Val"), nil
}

// isMissingKey reports a DBGet or DBDel on a key that does not exist.
func isMissingKey(err error) bool {
	var re *ami.ResponseError
	if !errors.As(err, &re) {
		return false
	}
	msg := strings.ToLower(re.Message)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "not deleted")
}

// loadSettings reads do-not-disturb and call forward of every extension.
func (e *Engine) loadSettings(ctx context.Context) {
	for id := range e.store.Extensions() {
		dnd, err := e.dbGet(ctx, dbFamilyDND, id)
		if err != nil {
			e.logger.Warn("reading dnd", zap.String("exten", id), zap.Error(err))
		}
		cf, err := e.dbGet(ctx, dbFamilyCF, id)
		if err != nil {
			e.logger.Warn("reading call forward", zap.String("exten", id), zap.Error(err))
		}
		e.store.PatchExtension(id, func(x *model.Extension) {
			x.DND = strings.EqualFold(dnd, dndOn)
			x.CF, x.CFVM = splitForward(cf)
			x.Status = presence(basePresence(x.Status), x.DND)
		})
	}
}

// splitForward separates a voicemail forward ("vmu201") from a number.
func splitForward(v string) (cf, cfvm string) {
	if strings.HasPrefix(v, vmPrefix) {
		return "", strings.TrimPrefix(v, vmPrefix)
	}
	return v, ""
}

// basePresence undoes presence.
func basePresence(s model.Status) model.Status {
	if s == model.StatusDND {
		return model.StatusOnline
	}
	return s
}

// SetDND turns do-not-disturb on or off.
func (e *Engine) SetDND(ctx context.Context, endpointType, ext string, on bool) error {
	if _, err := e.extension(endpointType, ext); err != nil {
		return err
	}
	a := ami.NewAction("DBDel", "Family", dbFamilyDND, "Key", ext)
	if on {
		a = ami.NewAction("DBPut", "Family", dbFamilyDND, "Key", ext, "Val", dndOn)
	}
	if _, err := e.send(ctx, a); err != nil && (on || !isMissingKey(err)) {
		return fmt.Errorf("set dnd %s: %w", ext, err)
	}
	x, ok := e.store.PatchExtension(ext, func(x *model.Extension) {
		x.DND = on
		x.Status = presence(basePresence(x.Status), on)
	})
	if ok {
		e.emitExtension(x)
	}
	return nil
}

// SetCallForward forwards every call to a number; an empty number disables it.
func (e *Engine) SetCallForward(ctx context.Context, endpointType, ext, to string) error {
	if to != "" {
		to = e.AddPrefix(to)
	}
	return e.setForward(ctx, endpointType, ext, to)
}

// SetCallForwardVoicemail forwards every call to a mailbox; an empty
// mailbox disables it.
func (e *Engine) SetCallForwardVoicemail(ctx context.Context, endpointType, ext, mailbox string) error {
	if mailbox != "" {
		mailbox = vmPrefix + mailbox
	}
	return e.setForward(ctx, endpointType, ext, mailbox)
}

func (e *Engine) setForward(ctx context.Context, endpointType, ext, value string) error {
	if _, err := e.extension(endpointType, ext); err != nil {
		return err
	}
	a := ami.NewAction("DBDel", "Family", dbFamilyCF, "Key", ext)
	if value != "" {
		a = ami.NewAction("DBPut", "Family", dbFamilyCF, "Key", ext, "Val", value)
	}
	if _, err := e.send(ctx, a); err != nil && (value != "" || !isMissingKey(err)) {
		return fmt.Errorf("set call forward %s: %w", ext, err)
	}
	x, ok := e.store.PatchExtension(ext, func(x *model.Extension) {
		x.CF, x.CFVM = splitForward(value)
	})
	if ok {
		e.emitExtension(x)
	}
	return nil
}
