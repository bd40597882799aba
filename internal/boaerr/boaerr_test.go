package boaerr

import (
	"errors"
	"testing"
	"time"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := New(KindNotFound, "campaign %q not found", "c1")
	if !errors.Is(err, NotFound) {
		t.Fatal("expected errors.Is to match the NotFound sentinel")
	}
	if errors.Is(err, ValidationError) {
		t.Fatal("did not expect a NotFound error to match ValidationError")
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindRepositoryError, cause, "write checkpoint")
	if !errors.Is(err, cause) {
		t.Fatal("expected Wrap to preserve the underlying cause for errors.Is")
	}
	if !errors.Is(err, RepositoryError) {
		t.Fatal("expected Wrap to still match its own Kind sentinel")
	}
}

func TestNotFoundf(t *testing.T) {
	err := NotFoundf("process %q not found", "widget")
	if !errors.Is(err, NotFound) {
		t.Fatal("expected NotFoundf to produce a NotFound-kind error")
	}
	if err.Error() != "NotFound: process \"widget\" not found" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestLockedIsMatchesCampaignLockedSentinel(t *testing.T) {
	l := &Locked{CampaignID: "c1", Holder: "worker-1", ExpiresAt: time.Now().Add(time.Minute)}
	if !errors.Is(l, CampaignLocked) {
		t.Fatal("expected Locked to match the CampaignLocked sentinel")
	}
}

func TestNewValidationIssuesEmptyReturnsNil(t *testing.T) {
	if err := NewValidationIssues(nil); err != nil {
		t.Fatalf("expected nil for no messages, got %v", err)
	}
	if err := NewValidationIssues([]string{}); err != nil {
		t.Fatalf("expected nil for empty messages, got %v", err)
	}
}

func TestNewValidationIssuesAggregatesMessages(t *testing.T) {
	err := NewValidationIssues([]string{"input x: missing bounds", "objective y: unknown kind"})
	if !errors.Is(err, SpecValidationError) {
		t.Fatal("expected aggregated error to match SpecValidationError sentinel")
	}
	msg := err.Error()
	if !containsAll(msg, "input x: missing bounds", "objective y: unknown kind") {
		t.Fatalf("expected both messages in aggregated error, got: %s", msg)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !stringsContains(s, sub) {
			return false
		}
	}
	return true
}

func stringsContains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
