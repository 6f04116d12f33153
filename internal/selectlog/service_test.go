package selectlog

import (
	"context"
	"testing"
)

func TestLog_RequiresDestinationAndKind(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Log(context.Background(), KindInMenu, "", "", ""); err == nil {
		t.Fatalf("expected error for missing destination")
	}
	if err := svc.Log(context.Background(), "", "dest-1", "", ""); err == nil {
		t.Fatalf("expected error for missing kind")
	}
}

func TestLog_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Log(context.Background(), KindCallingUser, "dest-1", "user-1", "call-1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.Log(context.Background(), KindFinishedCall, "dest-1", "user-1", "call-1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Kind != KindCallingUser || evs[1].Kind != KindFinishedCall {
		t.Fatalf("unexpected kinds: %v %v", evs[0].Kind, evs[1].Kind)
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be filled")
	}
	if got := repo.OfKind(KindFinishedCall); len(got) != 1 {
		t.Fatalf("expected 1 finished event, got %d", len(got))
	}
}
