// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is Shift's CBOR configuration.
//
// The tab protocol speaks JSON because compositor clients in any
// language must parse it. Everything internal to the server host uses
// CBOR: the control socket that shiftctl talks to, and the detail
// blobs stored in the lifecycle journal. This package fixes one
// encoding for both: Core Deterministic Encoding (sorted keys, shortest
// integers, definite lengths) with times as RFC 3339 strings so that
// sub-second lifecycle timestamps survive a round trip.
//
//	data, err := codec.Marshal(record)
//	err = codec.Unmarshal(data, &record)
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
