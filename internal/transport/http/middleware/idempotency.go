package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"

	"paystub/internal/platform/querier"
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

// IdempotencyKeys remembers the response stored under a caller's key so a
// replayed request gets the same answer instead of a second side effect.
type IdempotencyKeys interface {
	Check(ctx context.Context, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error)
	Save(ctx context.Context, userID, endpoint, key, requestHash string, response json.RawMessage) error
}

type IdempotencyStore struct {
	db querier.Querier
}

func NewIdempotencyStore(db querier.Querier) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (s *IdempotencyStore) Check(ctx context.Context, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, nil
	}
	var storedHash string
	var stored json.RawMessage
	err := s.db.QueryRow(ctx, `
    SELECT request_hash, response_json
    FROM idempotency_keys
    WHERE user_id = $1 AND key = $2 AND endpoint = $3
  `, userID, key, endpoint).Scan(&storedHash, &stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if storedHash != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	return stored, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, userID, endpoint, key, requestHash string, response json.RawMessage) error {
	if s == nil || s.db == nil {
		return nil
	}
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (user_id, key, endpoint, request_hash, response_json)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (user_id, key, endpoint)
    DO UPDATE SET response_json = EXCLUDED.response_json
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
  `, userID, key, endpoint, requestHash, response)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

type memoryEntry struct {
	hash     string
	response json.RawMessage
}

// MemoryIdempotency is a process-local IdempotencyKeys.
type MemoryIdempotency struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{entries: map[string]memoryEntry{}}
}

func memoryKey(userID, endpoint, key string) string {
	return userID + "\x00" + endpoint + "\x00" + key
}

func (m *MemoryIdempotency) Check(_ context.Context, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[memoryKey(userID, endpoint, key)]
	if !ok {
		return nil, false, nil
	}
	if e.hash != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	return e.response, true, nil
}

func (m *MemoryIdempotency) Save(_ context.Context, userID, endpoint, key, requestHash string, response json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey(userID, endpoint, key)
	if e, ok := m.entries[k]; ok && e.hash != requestHash {
		return ErrIdempotencyConflict
	}
	m.entries[k] = memoryEntry{hash: requestHash, response: append(json.RawMessage(nil), response...)}
	return nil
}
