package redisclient

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	stateRecording = "recording"
	stateMuted     = "mute"
)

// hashClient is the part of *redis.Client the store needs.
type hashClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
}

// RecordingStore mirrors the set of recorded conversations in a hash:
// conversation id -> "recording" or "mute".
type RecordingStore struct {
	client hashClient
	key    string
	logger *zap.Logger
}

func NewRecordingStore(client hashClient, prefix string, logger *zap.Logger) *RecordingStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordingStore{client: client, key: RecordingsKey(prefix), logger: logger}
}

// Load returns every mirrored conversation and whether it is muted.
func (s *RecordingStore) Load(ctx context.Context) (map[string]bool, error) {
	vals, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("loading recordings: %w", err)
	}
	out := make(map[string]bool, len(vals))
	for id, state := range vals {
		switch state {
		case stateRecording, stateMuted:
			out[id] = state == stateMuted
		default:
			s.logger.Warn("ignoring malformed recording entry", zap.String("conversation", id), zap.String("state", state))
		}
	}
	return out, nil
}

func (s *RecordingStore) Add(ctx context.Context, convID string, muted bool) error {
	state := stateRecording
	if muted {
		state = stateMuted
	}
	if err := s.client.HSet(ctx, s.key, convID, state).Err(); err != nil {
		return fmt.Errorf("saving recording %s: %w", convID, err)
	}
	return nil
}

func (s *RecordingStore) Remove(ctx context.Context, convID string) error {
	if err := s.client.HDel(ctx, s.key, convID).Err(); err != nil {
		return fmt.Errorf("removing recording %s: %w", convID, err)
	}
	return nil
}
