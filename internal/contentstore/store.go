// Package contentstore keeps rendered certificate documents under their
// content hash.
package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	apperrors "certificate-workers/internal/common/errors"
)

// Store is content addressed: Put returns the hex SHA-256 of data, and
// storing the same bytes twice yields the same hash.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	ResolveURL(ctx context.Context, hash string) (string, error)
}

// Hash returns the content address of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func validHash(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

// Memory keeps documents in process memory.
type Memory struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
}

// NewMemory resolves documents as <baseURL>/<hash>.
func NewMemory(baseURL string) *Memory {
	return &Memory{baseURL: strings.TrimRight(baseURL, "/"), objects: make(map[string][]byte)}
}

func (m *Memory) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", apperrors.NewValidationError("document is empty")
	}
	hash := Hash(data)
	m.mu.Lock()
	m.objects[hash] = append([]byte(nil), data...)
	m.mu.Unlock()
	return hash, nil
}

func (m *Memory) ResolveURL(_ context.Context, hash string) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[hash]
	m.mu.RUnlock()
	if !ok {
		return "", apperrors.NewNotFoundError("document", hash)
	}
	return fmt.Sprintf("%s/%s", m.baseURL, hash), nil
}

// Get returns a copy of the stored bytes.
func (m *Memory) Get(hash string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[hash]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// Len reports how many distinct documents are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
