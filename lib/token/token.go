// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/shift-foundation/shift/lib/clock"
	"github.com/shift-foundation/shift/lib/fault"
	"github.com/shift-foundation/shift/lib/secret"
)

const (
	randomBytes = 32
	keySize     = 32

	// DefaultTombstoneRetention is how long consumed tokens keep
	// reporting already_used after redemption or revocation.
	DefaultTombstoneRetention = time.Hour
)

// Draft is what a token grants: the pending session it admits.
type Draft struct {
	SessionID   string
	Role        string
	DisplayName string
}

type digest [32]byte

type entry struct {
	draft      Draft
	expiresAt  time.Time // zero: never
	consumed   bool
	consumedAt time.Time
}

// Config configures an Authenticator.
type Config struct {
	Clock clock.Clock

	// TombstoneRetention overrides DefaultTombstoneRetention.
	TombstoneRetention time.Duration
}

// Authenticator is the token table. It is safe for concurrent use.
type Authenticator struct {
	clock     clock.Clock
	retention time.Duration
	key       *secret.Buffer

	mu        sync.Mutex
	entries   map[digest]*entry
	bySession map[string]digest
}

// New creates an empty table with a fresh digest key.
func New(config Config) (*Authenticator, error) {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.TombstoneRetention <= 0 {
		config.TombstoneRetention = DefaultTombstoneRetention
	}
	key, err := secret.Random(keySize)
	if err != nil {
		return nil, fmt.Errorf("allocating token key: %w", err)
	}
	return &Authenticator{
		clock:     config.Clock,
		retention: config.TombstoneRetention,
		key:       key,
		entries:   make(map[digest]*entry),
		bySession: make(map[string]digest),
	}, nil
}

// Mint issues a token for draft. A non-positive ttl never expires.
// Minting again for the same session revokes the previous token.
func (a *Authenticator) Mint(draft Draft, ttl time.Duration) (string, error) {
	if draft.SessionID == "" {
		return "", fmt.Errorf("minting token: empty session id")
	}
	raw := make([]byte, randomBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("minting token: %w", err)
	}
	token := rolePrefix(draft.Role) + base64.RawURLEncoding.EncodeToString(raw)
	sum, err := a.digest(token)
	if err != nil {
		return "", err
	}

	record := &entry{draft: draft}
	if ttl > 0 {
		record.expiresAt = a.clock.Now().Add(ttl)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if previous, ok := a.bySession[draft.SessionID]; ok {
		delete(a.entries, previous)
	}
	a.entries[sum] = record
	a.bySession[draft.SessionID] = sum
	return token, nil
}

// Redeem consumes token and returns its draft. Fails with
// fault.ErrInvalidToken, fault.ErrTokenAlreadyUsed, or
// fault.ErrTokenExpired; a failed redemption changes nothing.
func (a *Authenticator) Redeem(token string) (Draft, error) {
	if token == "" {
		return Draft{}, fault.New(fault.KindInvalidToken, "empty token")
	}
	sum, err := a.digest(token)
	if err != nil {
		return Draft{}, err
	}
	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()
	record, ok := a.entries[sum]
	switch {
	case !ok:
		return Draft{}, fault.New(fault.KindInvalidToken, "unknown token")
	case record.consumed:
		return Draft{}, fault.New(fault.KindTokenAlreadyUsed, "token for session %s was already used", record.draft.SessionID)
	case !record.expiresAt.IsZero() && !now.Before(record.expiresAt):
		return Draft{}, fault.New(fault.KindTokenExpired, "token for session %s expired at %s",
			record.draft.SessionID, record.expiresAt.UTC().Format(time.RFC3339))
	}
	record.consumed = true
	record.consumedAt = now
	return record.draft, nil
}

// Revoke invalidates the session's token if it has not been redeemed.
// Returns true if an unredeemed token was revoked.
func (a *Authenticator) Revoke(sessionID string) bool {
	now := a.clock.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	sum, ok := a.bySession[sessionID]
	if !ok {
		return false
	}
	record := a.entries[sum]
	if record == nil || record.consumed {
		return false
	}
	record.consumed = true
	record.consumedAt = now
	return true
}

// Cleanup drops tombstones older than the retention window and
// unredeemed tokens past their expiry. It returns the drafts of the
// expired, never-redeemed tokens so the caller can retire their
// pending sessions.
func (a *Authenticator) Cleanup(now time.Time) []Draft {
	a.mu.Lock()
	defer a.mu.Unlock()

	var expired []Draft
	for sum, record := range a.entries {
		switch {
		case record.consumed:
			if now.Sub(record.consumedAt) < a.retention {
				continue
			}
		case record.expiresAt.IsZero() || now.Before(record.expiresAt):
			continue
		default:
			expired = append(expired, record.draft)
		}
		delete(a.entries, sum)
		if a.bySession[record.draft.SessionID] == sum {
			delete(a.bySession, record.draft.SessionID)
		}
	}
	return expired
}

// Len returns the number of live and tombstoned entries.
func (a *Authenticator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Close wipes the digest key. Redeem and Mint must not be called after.
func (a *Authenticator) Close() error {
	return a.key.Close()
}

func (a *Authenticator) digest(token string) (digest, error) {
	hasher, err := blake3.NewKeyed(a.key.Bytes())
	if err != nil {
		return digest{}, fmt.Errorf("token digest: %w", err)
	}
	hasher.Write([]byte(token))
	var sum digest
	copy(sum[:], hasher.Sum(nil))
	return sum, nil
}

func rolePrefix(role string) string {
	if strings.EqualFold(role, "admin") {
		return "adm_"
	}
	return "ses_"
}
