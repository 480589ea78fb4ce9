package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carewellhealth/patient-portal/internal/guard"
)

const transcriptKeyPrefix = "portal:transcript:"

// TranscriptStore persists conversation turns per chat session in Redis so
// the validator can judge the latest message against real history even when
// the client omits or tampers with it.
type TranscriptStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTranscriptStore creates a store. Transcripts expire ttl after the last
// appended turn.
func NewTranscriptStore(client *redis.Client, ttl time.Duration) *TranscriptStore {
	if client == nil {
		panic("chat: redis client cannot be nil")
	}
	return &TranscriptStore{client: client, ttl: ttl}
}

// Append adds turns to the session transcript and refreshes its expiry.
func (s *TranscriptStore) Append(ctx context.Context, sessionID string, turns ...guard.Message) error {
	if len(turns) == 0 {
		return nil
	}
	key := transcriptKeyPrefix + sessionID
	encoded := make([]any, 0, len(turns))
	for _, turn := range turns {
		raw, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("chat: failed to encode transcript turn: %w", err)
		}
		encoded = append(encoded, raw)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, encoded...)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("chat: failed to append transcript for session %s: %w", sessionID, err)
	}
	return nil
}

// History returns the session transcript in chronological order. An unknown
// session yields an empty transcript, not an error.
func (s *TranscriptStore) History(ctx context.Context, sessionID string) ([]guard.Message, error) {
	key := transcriptKeyPrefix + sessionID
	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("chat: failed to load transcript for session %s: %w", sessionID, err)
	}
	turns := make([]guard.Message, 0, len(raw))
	for _, item := range raw {
		var turn guard.Message
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("chat: corrupt transcript turn for session %s: %w", sessionID, err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}
