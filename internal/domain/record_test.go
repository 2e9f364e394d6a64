package domain

import (
	"testing"
	"time"
)

func TestRecordEffectiveRoleDefaultsToUser(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role Role
		want Role
	}{
		{role: "", want: RoleUser},
		{role: RoleUser, want: RoleUser},
		{role: RoleAssistant, want: RoleAssistant},
		{role: "system", want: RoleUser},
	}
	for _, tt := range tests {
		got := Record{Role: tt.role}.EffectiveRole()
		if got != tt.want {
			t.Errorf("EffectiveRole(%q) = %q, want %q", tt.role, got, tt.want)
		}
	}
}

func TestNewRecordTimeRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 30, 45, 250_000_000, time.Local)
	rec := NewRecord(now, "hello", RoleUser)

	if rec.HumanTime != "2024-05-01 12:30:45" {
		t.Fatalf("unexpected HumanTime: %q", rec.HumanTime)
	}
	if diff := rec.Time().Sub(now); diff > time.Millisecond || diff < -time.Millisecond {
		t.Fatalf("Time() drifted by %v", diff)
	}
}

func TestConversationKeyRoundTrip(t *testing.T) {
	t.Parallel()

	key := NewConversationKey(-1001234567890, 42)
	if key.String() != "-1001234567890:42" {
		t.Fatalf("unexpected String(): %q", key.String())
	}

	parsed, err := ParseConversationKey(key.String())
	if err != nil {
		t.Fatalf("ParseConversationKey failed: %v", err)
	}
	if parsed != key {
		t.Fatalf("got %+v, want %+v", parsed, key)
	}

	if _, err := ParseConversationKey("no-separator"); err == nil {
		t.Fatal("expected error for malformed key")
	}
}
