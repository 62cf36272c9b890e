// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfo_Dirty(t *testing.T) {
	original := GitDirty
	t.Cleanup(func() { GitDirty = original })

	GitDirty = "true"
	if info := Info(); !strings.Contains(info, "-dirty") {
		t.Errorf("Info() = %q, want dirty marker", info)
	}
	GitDirty = "false"
	if info := Info(); strings.Contains(info, "-dirty") {
		t.Errorf("Info() = %q, want no dirty marker", info)
	}
}

func TestFull_IncludesProtocol(t *testing.T) {
	if full := Full("tab/v1"); !strings.Contains(full, "Protocol: tab/v1") {
		t.Errorf("Full() = %q", full)
	}
	if name := ServerName(); name != "shift/"+Version {
		t.Errorf("ServerName() = %q", name)
	}
}
