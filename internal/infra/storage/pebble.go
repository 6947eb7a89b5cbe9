package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"trade_sim/internal/domain"

	"github.com/cockroachdb/pebble"
)

// keys: session -> JSON SessionState, cfg:<key> -> settings
var (
	keySession = []byte("session")
	cfgPrefix  = []byte("cfg:")
)

// PebbleStore keeps the session in an embedded pebble KV directory.
type PebbleStore struct {
	db *pebble.DB
}

var _ domain.SessionRepository = (*PebbleStore)(nil)

func NewPebbleStore(dir string) (*PebbleStore, error) {
	if dir == "" {
		return nil, &domain.ValidationError{Field: "path", Reason: "cannot be empty"}
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// SaveSession replaces the stored session with a synced write.
func (s *PebbleStore) SaveSession(ctx context.Context, state *domain.SessionState) error {
	if state == nil {
		return &domain.ValidationError{Field: "state", Reason: "cannot be nil"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.db.Set(keySession, data, pebble.Sync); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// LoadSession returns (nil, nil) when no session was saved.
func (s *PebbleStore) LoadSession(ctx context.Context) (*domain.SessionState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	val, closer, err := s.db.Get(keySession)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	defer closer.Close()

	var state domain.SessionState
	if err := json.Unmarshal(val, &state); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &state, nil
}

// SaveConfig stores a key-value setting.
func (s *PebbleStore) SaveConfig(key, value string) error {
	return s.db.Set(append(append([]byte{}, cfgPrefix...), key...), []byte(value), pebble.Sync)
}

// LoadConfigMap returns every stored setting.
func (s *PebbleStore) LoadConfigMap() (map[string]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: cfgPrefix,
		UpperBound: []byte("cfg;"), // ';' follows ':'
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	result := make(map[string]string)
	for iter.First(); iter.Valid(); iter.Next() {
		result[string(iter.Key()[len(cfgPrefix):])] = string(iter.Value())
	}
	return result, iter.Error()
}
