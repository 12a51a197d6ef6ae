package config

import (
	"testing"
	"time"
)

func TestParseDurationField(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"45s", 45 * time.Second, false},
		{"2m", 2 * time.Minute, false},
		{"500ms", 500 * time.Millisecond, false},
		{"-1s", 0, true},
		{"soon", 0, true},
		{"45", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDurationField("poll.every", tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDurationField(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDurationField(%q): %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDurationField(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	got, err := ParseDurationOrDefault("poll.every", "", 45*time.Second)
	if err != nil || got != 45*time.Second {
		t.Fatalf("empty: got %v, %v", got, err)
	}
	got, err = ParseDurationOrDefault("poll.every", "90s", 45*time.Second)
	if err != nil || got != 90*time.Second {
		t.Fatalf("explicit: got %v, %v", got, err)
	}
}
