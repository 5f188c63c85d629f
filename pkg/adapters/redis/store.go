// Package redis implements ports.Store on Redis.
//
// Snapshots are stored as JSON values and every read-modify-write cycle
// (commit, rejection append) runs inside a Lua script, so the
// compare-and-swap is atomic across any number of engine replicas sharing
// the same Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gatewright/passage/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Scripts return a small string protocol instead of error replies so the
// adapter can distinguish outcomes portably:
//
//	"N"          entity not found
//	"V:<actual>" version conflict, stored version attached
//	"C:<json>"   commit applied, updated snapshot attached
//	"A"          rejection entry appended
const commitScript = `
local raw = redis.call("GET", KEYS[1])
if not raw then
	return "N"
end
local snap = cjson.decode(raw)
if snap.version ~= tonumber(ARGV[1]) then
	return "V:" .. snap.version
end
local entry = cjson.decode(ARGV[3])
entry.sequence = snap.log.next_seq
snap.log.next_seq = snap.log.next_seq + 1
if #snap.log.entries >= snap.log.cap then
	table.remove(snap.log.entries, 1)
end
table.insert(snap.log.entries, entry)
snap.state = ARGV[2]
snap.version = snap.version + 1
local encoded = cjson.encode(snap)
redis.call("SET", KEYS[1], encoded)
return "C:" .. encoded
`

const appendScript = `
local raw = redis.call("GET", KEYS[1])
if not raw then
	return "N"
end
local snap = cjson.decode(raw)
local entry = cjson.decode(ARGV[1])
entry.sequence = snap.log.next_seq
snap.log.next_seq = snap.log.next_seq + 1
if #snap.log.entries >= snap.log.cap then
	table.remove(snap.log.entries, 1)
end
table.insert(snap.log.entries, entry)
redis.call("SET", KEYS[1], cjson.encode(snap))
return "A"
`

// Store implements ports.Store using Redis.
type Store struct {
	client *backend.Client
	prefix string
}

// Option configures the store.
type Option func(*Store)

// WithPrefix sets the key prefix for entities (default "passage:entity:").
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "passage:entity:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(entityID string) string {
	return s.prefix + entityID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Create persists a new snapshot via SETNX.
func (s *Store) Create(ctx context.Context, snapshot *domain.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	set, err := s.client.SetNX(ctx, s.key(snapshot.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create entity in redis: %w", err)
	}
	if !set {
		return domain.ErrEntityExists
	}

	if err := s.client.SAdd(ctx, s.indexKey(), snapshot.ID).Err(); err != nil {
		return fmt.Errorf("failed to index entity: %w", err)
	}
	return nil
}

// Load retrieves and decodes a snapshot.
func (s *Store) Load(ctx context.Context, entityID string) (*domain.Snapshot, error) {
	val, err := s.client.Get(ctx, s.key(entityID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get entity from redis: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return &snap, nil
}

// CommitIfVersionMatches runs the commit script; Redis executes scripts
// serially, which is exactly the atomicity the port demands.
func (s *Store) CommitIfVersionMatches(ctx context.Context, entityID string, expectedVersion int64, newState string, entry domain.LogEntry) (*domain.Snapshot, error) {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal log entry: %w", err)
	}

	raw, err := s.client.Eval(ctx, commitScript,
		[]string{s.key(entityID)},
		expectedVersion, newState, string(entryJSON),
	).Text()
	if err != nil {
		return nil, fmt.Errorf("failed to run commit script: %w", err)
	}

	switch {
	case raw == "N":
		return nil, domain.ErrEntityNotFound
	case strings.HasPrefix(raw, "V:"):
		actual, perr := strconv.ParseInt(raw[2:], 10, 64)
		if perr != nil {
			return nil, fmt.Errorf("malformed conflict reply %q: %w", raw, perr)
		}
		return nil, &domain.VersionConflictError{Expected: expectedVersion, Actual: actual}
	case strings.HasPrefix(raw, "C:"):
		var snap domain.Snapshot
		if err := json.Unmarshal([]byte(raw[2:]), &snap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal committed entity: %w", err)
		}
		return &snap, nil
	default:
		return nil, fmt.Errorf("unexpected commit script reply %q", raw)
	}
}

// AppendRejection runs the append script.
func (s *Store) AppendRejection(ctx context.Context, entityID string, entry domain.LogEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	raw, err := s.client.Eval(ctx, appendScript,
		[]string{s.key(entityID)},
		string(entryJSON),
	).Text()
	if err != nil {
		return fmt.Errorf("failed to run append script: %w", err)
	}
	if raw == "N" {
		return domain.ErrEntityNotFound
	}
	return nil
}

// Delete removes the entity and its index membership.
func (s *Store) Delete(ctx context.Context, entityID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(entityID))
	pipe.SRem(ctx, s.indexKey(), entityID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete entity from redis: %w", err)
	}
	return nil
}

// List returns all indexed entity IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	return ids, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
