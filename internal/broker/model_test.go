package broker

import (
	"testing"
	"time"
)

func TestRecordState(t *testing.T) {
	keyed := &MediaRecord{ObjectKey: "ws/a.jpg"}
	tests := []struct {
		name   string
		rec    *MediaRecord
		exists bool
		want   State
	}{
		{"no record", nil, true, StateUnknown},
		{"placeholder", &MediaRecord{TinyFingerprint: "t1"}, true, StatePending},
		{"present", keyed, true, StateUploaded},
		{"absent", keyed, false, StateStale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecordState(tt.rec, tt.exists); got != tt.want {
				t.Errorf("RecordState() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	if StateStale.String() != "stale" || State(42).String() != "invalid" {
		t.Errorf("String() = %q, %q", StateStale.String(), State(42).String())
	}
}

func TestBuildObjectKey(t *testing.T) {
	now := time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC)
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"plain", "DJI_0001.JPG", "ws1/20240115/DJI_0001.JPG"},
		{"slashes flattened", "../../etc/passwd", "ws1/20240115/.._.._etc_passwd"},
		{"backslashes flattened", `C:\DCIM\a.jpg`, "ws1/20240115/C:_DCIM_a.jpg"},
		{"nul stripped", "a\x00.jpg", "ws1/20240115/a.jpg"},
		{"empty", "  ", "ws1/20240115/unknown"},
		{"dot dot", "..", "ws1/20240115/unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildObjectKey("ws1", tt.filename, now); got != tt.want {
				t.Errorf("BuildObjectKey(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
