//go:build !nogpu

package gpu

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestHALBackendPreference(t *testing.T) {
	want := []gputypes.Backend{gputypes.BackendVulkan, gputypes.BackendGL}
	if len(halBackendOrder) != len(want) {
		t.Fatalf("acquisition tries %d backends, want %d", len(halBackendOrder), len(want))
	}
	for i, kind := range want {
		if halBackendOrder[i] != kind {
			t.Fatalf("acquisition order[%d] = %s, want %s", i, halBackendOrder[i], kind)
		}
	}
}
