package auth

import (
	"testing"
	"time"
)

const testSecret = "01234567890123456789012345678901"

func TestIssueThenVerify_RoundTrip(t *testing.T) {
	svc := NewService(testSecret)
	u := Subject{ID: "u1", Name: "Alice", AvatarPath: "/a.png", RoomID: "r1", IsHost: true, UserColor: "#FF0000"}

	token, err := svc.Issue(u)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.ID != u.ID || claims.Name != u.Name || claims.AvatarPath != u.AvatarPath ||
		claims.RoomID != u.RoomID || claims.IsHost != u.IsHost || claims.UserColor != u.UserColor {
		t.Errorf("claims mismatch: got %+v, want %+v", claims, u)
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(testSecret).WithClock(func() time.Time { return start })

	token, err := svc.Issue(Subject{ID: "u1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later := svc.WithClock(func() time.Time { return start.Add(25 * time.Hour) })
	if _, err := later.Verify(token); err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerify_JustBeforeExpiry(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(testSecret).WithClock(func() time.Time { return start })

	token, err := svc.Issue(Subject{ID: "u1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	almost := svc.WithClock(func() time.Time { return start.Add(23*time.Hour + 59*time.Minute) })
	if _, err := almost.Verify(token); err != nil {
		t.Errorf("expected token still valid just before 24h, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	svc := NewService(testSecret)
	token, err := svc.Issue(Subject{ID: "u1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := NewService("different-secret-different-secret")
	if _, err := other.Verify(token); err == nil {
		t.Error("expected verification to fail with a different secret")
	}
}

func TestVerify_Garbage(t *testing.T) {
	svc := NewService(testSecret)
	if _, err := svc.Verify("not-a-token"); err == nil {
		t.Error("expected an error for a malformed token")
	}
}
