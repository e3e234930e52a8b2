package models

import (
	"testing"
	"time"
)

func TestAuditLogScope(t *testing.T) {
	cases := map[string]string{
		"member.verify":   "member",
		"event.duplicate": "event",
		"admin.login":     "admin",
		"bootstrap":       "",
	}
	for action, want := range cases {
		if got := (AuditLog{Action: action}).Scope(); got != want {
			t.Fatalf("scope of %q: got %q want %q", action, got, want)
		}
	}
}

func TestMemberStatusValid(t *testing.T) {
	for _, s := range []MemberStatus{MemberStatusPending, MemberStatusVerified, MemberStatusBlocked} {
		if !s.Valid() {
			t.Fatalf("expected %s to be valid", s)
		}
	}
	if MemberStatus("pending").Valid() {
		t.Fatal("expected lowercase status to be invalid")
	}
}

func TestMemberFullName(t *testing.T) {
	if got := (Member{FirstName: "Ana", LastName: "Lee"}).FullName(); got != "Ana Lee" {
		t.Fatalf("unexpected full name %q", got)
	}
	if got := (Member{FirstName: "Ana"}).FullName(); got != "Ana" {
		t.Fatalf("unexpected full name %q", got)
	}
}

func TestEventIsUpcoming(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !(Event{StartTime: now.Add(time.Minute)}).IsUpcoming(now) {
		t.Fatal("expected future event to be upcoming")
	}
	if !(Event{StartTime: now}).IsUpcoming(now) {
		t.Fatal("expected event starting now to be upcoming")
	}
	if (Event{StartTime: now.Add(-time.Second)}).IsUpcoming(now) {
		t.Fatal("expected started event to be past")
	}
}

func TestCacheEntryExpired(t *testing.T) {
	now := time.Now()
	if (CacheEntry{ExpiresAt: now.Add(time.Second)}).Expired(now) {
		t.Fatal("expected entry to be live")
	}
	if !(CacheEntry{ExpiresAt: now}).Expired(now) {
		t.Fatal("expected entry to be expired at its expiry instant")
	}
	if (CacheEntry{}).Expired(now) {
		t.Fatal("expected zero expiry to never expire")
	}
}
