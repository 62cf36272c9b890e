// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shift-foundation/shift/lib/clock"
	"github.com/shift-foundation/shift/lib/fault"
)

func newAuthenticator(t *testing.T) (*Authenticator, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	authenticator, err := New(Config{Clock: fake, TombstoneRetention: time.Minute})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { authenticator.Close() })
	return authenticator, fake
}

func TestRedeem_SingleUse(t *testing.T) {
	authenticator, _ := newAuthenticator(t)
	token, err := authenticator.Mint(Draft{SessionID: "ses_1", Role: "session"}, time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if !strings.HasPrefix(token, "ses_") {
		t.Errorf("token %q lacks role prefix", token)
	}

	draft, err := authenticator.Redeem(token)
	if err != nil {
		t.Fatalf("first Redeem: %v", err)
	}
	if draft.SessionID != "ses_1" {
		t.Errorf("SessionID = %q, want ses_1", draft.SessionID)
	}

	_, err = authenticator.Redeem(token)
	if !errors.Is(err, fault.ErrTokenAlreadyUsed) {
		t.Fatalf("second Redeem error = %v, want already_used", err)
	}
}

func TestRedeem_Invalid(t *testing.T) {
	authenticator, _ := newAuthenticator(t)
	for _, token := range []string{"", "ses_not-a-real-token"} {
		if _, err := authenticator.Redeem(token); !errors.Is(err, fault.ErrInvalidToken) {
			t.Errorf("Redeem(%q) error = %v, want invalid", token, err)
		}
	}
}

func TestRedeem_Expired(t *testing.T) {
	authenticator, fake := newAuthenticator(t)
	token, err := authenticator.Mint(Draft{SessionID: "ses_1"}, 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	fake.Advance(10 * time.Second)

	_, err = authenticator.Redeem(token)
	if !errors.Is(err, fault.ErrTokenExpired) {
		t.Fatalf("Redeem error = %v, want expired", err)
	}
	// A failed redemption does not consume the entry.
	_, err = authenticator.Redeem(token)
	if !errors.Is(err, fault.ErrTokenExpired) {
		t.Fatalf("repeat Redeem error = %v, want expired", err)
	}
}

func TestRedeem_ConcurrentExactlyOneWins(t *testing.T) {
	authenticator, _ := newAuthenticator(t)
	token, err := authenticator.Mint(Draft{SessionID: "ses_race"}, 0)
	if err != nil {
		t.Fatal(err)
	}

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := authenticator.Redeem(token)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case !errors.Is(err, fault.ErrTokenAlreadyUsed):
			t.Errorf("losing Redeem error = %v, want already_used", err)
		}
	}
	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
}

func TestRevoke(t *testing.T) {
	authenticator, _ := newAuthenticator(t)
	token, err := authenticator.Mint(Draft{SessionID: "ses_1"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !authenticator.Revoke("ses_1") {
		t.Error("Revoke of unredeemed token = false")
	}
	if authenticator.Revoke("ses_1") {
		t.Error("second Revoke = true")
	}
	if _, err := authenticator.Redeem(token); !errors.Is(err, fault.ErrTokenAlreadyUsed) {
		t.Errorf("Redeem after Revoke error = %v, want already_used", err)
	}
}

func TestMint_AdminPrefix(t *testing.T) {
	authenticator, _ := newAuthenticator(t)
	token, err := authenticator.Mint(Draft{SessionID: "ses_admin", Role: "admin"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(token, "adm_") {
		t.Errorf("admin token %q lacks adm_ prefix", token)
	}
}

func TestCleanup(t *testing.T) {
	authenticator, fake := newAuthenticator(t)
	used, _ := authenticator.Mint(Draft{SessionID: "ses_used"}, 0)
	if _, err := authenticator.Mint(Draft{SessionID: "ses_stale"}, 30*time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := authenticator.Mint(Draft{SessionID: "ses_fresh"}, time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, err := authenticator.Redeem(used); err != nil {
		t.Fatal(err)
	}

	fake.Advance(45 * time.Second)
	expired := authenticator.Cleanup(fake.Now())
	if len(expired) != 1 || expired[0].SessionID != "ses_stale" {
		t.Fatalf("Cleanup expired = %+v, want [ses_stale]", expired)
	}
	if authenticator.Len() != 2 {
		t.Errorf("Len = %d after first cleanup, want 2 (tombstone + fresh)", authenticator.Len())
	}
	if _, err := authenticator.Redeem(used); !errors.Is(err, fault.ErrTokenAlreadyUsed) {
		t.Errorf("tombstone Redeem error = %v, want already_used", err)
	}

	fake.Advance(time.Minute)
	authenticator.Cleanup(fake.Now())
	if authenticator.Len() != 1 {
		t.Errorf("Len = %d after retention, want 1", authenticator.Len())
	}
}
