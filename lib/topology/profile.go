// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// Profile pins placement for selected monitors. The zero Profile packs
// everything left to right.
type Profile struct {
	Monitors map[string]Pin `json:"monitors"`
}

// Pin fixes one monitor. X and Y must both be present to pin the
// position; Scale alone may be set without pinning.
type Pin struct {
	X     *int    `json:"x,omitempty"`
	Y     *int    `json:"y,omitempty"`
	Scale float64 `json:"scale,omitempty"`
}

// ParseProfile decodes a JSONC profile (comments and trailing commas
// allowed).
func ParseProfile(data []byte) (Profile, error) {
	var profile Profile
	if err := json.Unmarshal(jsonc.ToJSON(data), &profile); err != nil {
		return Profile{}, fmt.Errorf("parsing layout profile: %w", err)
	}
	for id, pin := range profile.Monitors {
		if pin.Scale < 0 {
			return Profile{}, fmt.Errorf("layout profile: monitor %s has negative scale", id)
		}
		if (pin.X == nil) != (pin.Y == nil) {
			return Profile{}, fmt.Errorf("layout profile: monitor %s pins only one coordinate", id)
		}
	}
	return profile, nil
}

// LoadProfile reads a profile file. An empty path yields the zero
// Profile.
func LoadProfile(path string) (Profile, error) {
	if path == "" {
		return Profile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("reading layout profile: %w", err)
	}
	return ParseProfile(data)
}
