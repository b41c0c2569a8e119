package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/kinnevo/fastinnovation-api/model"
)

// pagedStore serves a fixed set of conversations across multiple pages.
type pagedStore struct {
	*fakeStore
	conversations []model.Conversation
	pagesServed   int
}

func (p *pagedStore) ListConversations(ctx context.Context, page, limit int) ([]model.Conversation, int64, error) {
	p.pagesServed++
	start := (page - 1) * limit
	if start >= len(p.conversations) {
		return nil, int64(len(p.conversations)), nil
	}
	end := start + limit
	if end > len(p.conversations) {
		end = len(p.conversations)
	}
	return p.conversations[start:end], int64(len(p.conversations)), nil
}

func TestCollectConversationsCoversAllPages(t *testing.T) {
	total := exportPageSize*2 + 3
	store := &pagedStore{fakeStore: newFakeStore()}
	for i := 0; i < total; i++ {
		store.conversations = append(store.conversations, model.Conversation{
			ThreadID: fmt.Sprintf("thread-%d", i),
		})
	}

	exporter := &ReportExporter{store: store}
	conversations, err := exporter.collectConversations(context.Background())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}

	if len(conversations) != total {
		t.Fatalf("expected all %d conversations, got %d", total, len(conversations))
	}
	if store.pagesServed != 3 {
		t.Errorf("expected 3 pages to cover the total, got %d", store.pagesServed)
	}
	if got := conversations[total-1].ThreadID; got != fmt.Sprintf("thread-%d", total-1) {
		t.Errorf("expected last row to survive pagination, got %q", got)
	}
}

func TestCollectConversationsEmptyTable(t *testing.T) {
	store := &pagedStore{fakeStore: newFakeStore()}
	exporter := &ReportExporter{store: store}

	conversations, err := exporter.collectConversations(context.Background())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if len(conversations) != 0 {
		t.Errorf("expected no rows, got %d", len(conversations))
	}
	if store.pagesServed != 1 {
		t.Errorf("expected a single probe page, got %d", store.pagesServed)
	}
}
