package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/pagesift/models"
)

func TestInMemoryLifecycle(t *testing.T) {
	t.Parallel()
	s := NewInMemory(time.Hour)
	defer s.Close()
	ctx := context.Background()

	id, err := s.Create(ctx)
	if err != nil || id == "" {
		t.Fatalf("Create() = %q, %v", id, err)
	}

	turn := models.ConversationTurn{Role: models.RoleUser, Content: "analyze https://example.com", Timestamp: time.Now()}
	if err := s.AppendTurn(ctx, id, turn); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	history, err := s.History(ctx, id)
	if err != nil || len(history) != 1 || history[0].Content != turn.Content {
		t.Fatalf("History() = %v, %v", history, err)
	}

	if a, err := s.Analysis(ctx, id); err != nil || a != nil {
		t.Fatalf("fresh session should have nil analysis, got %v, %v", a, err)
	}
	analysis := models.SiteAnalysis{URL: "https://example.com", WebsiteType: "ecommerce"}
	if err := s.SetAnalysis(ctx, id, analysis); err != nil {
		t.Fatalf("SetAnalysis() error = %v", err)
	}
	got, err := s.Analysis(ctx, id)
	if err != nil || got == nil || got.WebsiteType != "ecommerce" {
		t.Fatalf("Analysis() = %v, %v", got, err)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.History(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted session should be not found, got %v", err)
	}
}

func TestInMemoryUnknownSession(t *testing.T) {
	t.Parallel()
	s := NewInMemory(time.Hour)
	defer s.Close()
	ctx := context.Background()

	if _, err := s.History(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.AppendTurn(ctx, "missing", models.ConversationTurn{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryTurnsKeepSubmissionOrder(t *testing.T) {
	t.Parallel()
	s := NewInMemory(time.Hour)
	defer s.Close()
	ctx := context.Background()
	id, _ := s.Create(ctx)

	for i := 0; i < 20; i++ {
		turn := models.ConversationTurn{Role: models.RoleUser, Content: fmt.Sprintf("turn-%02d", i)}
		if err := s.AppendTurn(ctx, id, turn); err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
	}
	history, _ := s.History(ctx, id)
	for i, turn := range history {
		if want := fmt.Sprintf("turn-%02d", i); turn.Content != want {
			t.Fatalf("turn %d got %q, want %q", i, turn.Content, want)
		}
	}
}

func TestInMemorySessionsDoNotBlockEachOther(t *testing.T) {
	t.Parallel()
	s := NewInMemory(time.Hour)
	defer s.Close()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 8; i++ {
		id, _ := s.Create(ctx)
		ids = append(ids, id)
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(id string, i int) {
				defer wg.Done()
				_ = s.AppendTurn(ctx, id, models.ConversationTurn{Content: fmt.Sprintf("%d", i)})
			}(id, i)
		}
	}
	wg.Wait()
	for _, id := range ids {
		history, err := s.History(ctx, id)
		if err != nil || len(history) != 25 {
			t.Fatalf("session %s history = %d turns, %v", id, len(history), err)
		}
	}
}

func TestInMemoryJanitorEvictsIdleSessions(t *testing.T) {
	t.Parallel()
	s := NewInMemory(40 * time.Millisecond)
	defer s.Close()
	ctx := context.Background()
	id, _ := s.Create(ctx)

	// Reading history refreshes the TTL, so wait idle well past expiry and
	// only then look.
	time.Sleep(300 * time.Millisecond)
	if _, err := s.History(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("idle session was never evicted, err = %v", err)
	}
}
