// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package token issues and redeems single-use session tokens.
//
// A token is 32 random bytes, base64url-encoded and prefixed with its
// role ("adm_" or "ses_") so that a token pasted into a log line is
// recognizable. The server never stores the token itself: the table is
// keyed by a BLAKE3 keyed digest, with the key held in a lib/secret
// buffer for the life of the process. Tokens do not survive a restart.
//
// Redemption is atomic: the first caller to present a token marks it
// consumed under the table lock, and every later or concurrent attempt
// sees [fault.ErrTokenAlreadyUsed]. Tearing a session down revokes its
// token whether or not it was ever redeemed. Consumed entries are kept
// as tombstones for a retention window so that replays report
// already_used rather than invalid; [Authenticator.Cleanup] drops them
// along with expired entries.
package token
