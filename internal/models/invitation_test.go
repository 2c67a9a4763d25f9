package models

import (
	"testing"
	"time"
)

func TestInvitationIsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name string
		at   *time.Time
		want bool
	}{
		{"no expiration", nil, false},
		{"future", &future, false},
		{"past", &past, true},
	}
	for _, tt := range tests {
		inv := Invitation{ExpiresAt: tt.at}
		if got := inv.IsExpired(now); got != tt.want {
			t.Errorf("%s: IsExpired = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestInvitationIsHandled(t *testing.T) {
	now := time.Now()
	if (&Invitation{}).IsHandled() {
		t.Error("pending invitation reported handled")
	}
	if !(&Invitation{AcceptedAt: &now}).IsHandled() {
		t.Error("accepted invitation not handled")
	}
	if !(&Invitation{DeclinedAt: &now}).IsHandled() {
		t.Error("declined invitation not handled")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  User@Example.COM "); got != "user@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}
