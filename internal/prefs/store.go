// Package prefs persists the user's chain and wallet selection as a single
// namespaced JSON object.
//
// Store never reports failures to its callers: a broken or unavailable
// backend reads as empty and writes become no-ops. Failures are logged.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
)

// Key is one of the closed set of preference keys.
type Key string

const (
	KeySelectedNetwork     Key = "selectedNetwork"
	KeySelectedWallet      Key = "selectedWallet"
	KeyIsConnectedToWallet Key = "isConnectedToWallet"
	KeyWasIntroShown       Key = "wasIntroShown"
)

// Keys lists every known key.
var Keys = []Key{KeySelectedNetwork, KeySelectedWallet, KeyIsConnectedToWallet, KeyWasIntroShown}

// Valid reports whether k is a known key.
func (k Key) Valid() bool {
	for _, known := range Keys {
		if k == known {
			return true
		}
	}
	return false
}

// Backend stores the raw preference blob.
type Backend interface {
	// Load returns the stored blob, or nil if nothing has been stored yet.
	Load(ctx context.Context) ([]byte, error)
	// Update replaces the blob with fn(old) atomically with respect to other
	// Update calls on the same backend.
	Update(ctx context.Context, fn func(old []byte) ([]byte, error)) error
	Close() error
}

// StorageError wraps a backend failure. It is only ever logged.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("prefs: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Store is the soft-fail preference store.
type Store struct {
	backend Backend
	logger  *slog.Logger
	mu      sync.Mutex // serialises read-modify-write cycles
}

// New creates a store over backend.
func New(backend Backend, logger *slog.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger.With("component", "prefs"),
	}
}

// Get returns the raw JSON value for key.
func (s *Store) Get(ctx context.Context, key Key) (json.RawMessage, bool) {
	obj := s.load(ctx)
	v, ok := obj[string(key)]
	return v, ok
}

// GetString returns key as a string.
func (s *Store) GetString(ctx context.Context, key Key) (string, bool) {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}

// GetBool returns key as a bool.
func (s *Store) GetBool(ctx context.Context, key Key) (bool, bool) {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return false, false
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, false
	}
	return v, true
}

// GetUint64 returns key as an unsigned integer. Numeric strings are accepted
// as well, since older clients stored chain ids as strings.
func (s *Store) GetUint64(ctx context.Context, key Key) (uint64, bool) {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return 0, false
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, false
	}
	n, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// All returns every stored entry, including keys this version doesn't know.
func (s *Store) All(ctx context.Context) map[string]json.RawMessage {
	return s.load(ctx)
}

// Set merges key=value into the stored object. Other keys, known or not,
// are preserved.
func (s *Store) Set(ctx context.Context, key Key, value any) {
	if !key.Valid() {
		s.logger.Warn("ignoring unknown preference key", "key", key)
		return
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		s.logFailure(&StorageError{Op: "encode " + string(key), Err: err})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.backend.Update(ctx, func(old []byte) ([]byte, error) {
		obj := s.decode(old)
		obj[string(key)] = encoded
		return json.Marshal(obj)
	})
	if err != nil {
		s.logFailure(&StorageError{Op: "set " + string(key), Err: err})
		return
	}
	s.logger.Debug("preference saved", "key", key)
}

// Delete removes key, preserving everything else.
func (s *Store) Delete(ctx context.Context, key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.backend.Update(ctx, func(old []byte) ([]byte, error) {
		obj := s.decode(old)
		delete(obj, string(key))
		return json.Marshal(obj)
	})
	if err != nil {
		s.logFailure(&StorageError{Op: "delete " + string(key), Err: err})
	}
}

// Clear drops every stored preference.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.backend.Update(ctx, func([]byte) ([]byte, error) {
		return []byte("{}"), nil
	})
	if err != nil {
		s.logFailure(&StorageError{Op: "clear", Err: err})
		return
	}
	s.logger.Info("preferences cleared")
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) load(ctx context.Context) map[string]json.RawMessage {
	data, err := s.backend.Load(ctx)
	if err != nil {
		s.logFailure(&StorageError{Op: "load", Err: err})
		return map[string]json.RawMessage{}
	}
	return s.decode(data)
}

// decode parses the blob; anything unreadable is treated as an empty object.
func (s *Store) decode(data []byte) map[string]json.RawMessage {
	obj := map[string]json.RawMessage{}
	if len(data) == 0 {
		return obj
	}
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		if err != nil {
			s.logFailure(&StorageError{Op: "decode", Err: err})
		}
		return map[string]json.RawMessage{}
	}
	return obj
}

func (s *Store) logFailure(err *StorageError) {
	s.logger.Warn("preference storage failure", "op", err.Op, "error", err.Err)
}
