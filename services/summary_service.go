package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/kinnevo/fastinnovation-api/database"
	"github.com/kinnevo/fastinnovation-api/model"
	"github.com/kinnevo/fastinnovation-api/services/filc"
)

const summaryPrompt = `Summarize the following conversation in 3-5 sentences. ` +
	`Capture the user's goal, the main points discussed, and any conclusions reached. ` +
	`Write in third person.

Conversation:
%s`

// SummaryService generates the at-most-once summary artifact for finished
// conversations. The agent does the summarization; the unique index on
// summaries.conversation_id makes concurrent generation attempts harmless.
type SummaryService struct {
	store    database.Storage
	agent    *filc.Client
	analyzer *Analyzer // optional; nil disables analysis generation
}

func NewSummaryService(store database.Storage, agent *filc.Client, analyzer *Analyzer) *SummaryService {
	return &SummaryService{
		store:    store,
		agent:    agent,
		analyzer: analyzer,
	}
}

// GenerateForThread summarizes one conversation. Returns (nil, nil) when the
// thread already has a summary or has no messages to summarize.
func (s *SummaryService) GenerateForThread(ctx context.Context, threadID string) (*model.Summary, error) {
	existing, err := s.store.GetSummaryForThread(ctx, threadID)
	if err != nil && !database.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return nil, nil
	}

	history, err := s.store.GetConversationHistory(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}

	transcript := formatTranscript(history)
	result := s.agent.ProcessMessage(ctx, fmt.Sprintf(summaryPrompt, transcript), threadID+":summary", nil)
	if !result.Success {
		return nil, fmt.Errorf("summary generation failed: %w", result.Error)
	}

	summary, err := s.store.CreateConversationSummary(ctx, threadID, result.Content, "filc-agent")
	if err != nil {
		return nil, err
	}
	if summary == nil {
		// Another worker won the unique-index race.
		return nil, nil
	}

	if s.analyzer != nil {
		if _, err := s.analyzer.AnalyzeSummary(ctx, summary); err != nil {
			// Analysis is best-effort on top of the summary.
			log.Printf("[Summary] analysis failed for thread %s: %v", threadID, err)
		}
	}

	return summary, nil
}

// GenerateBacklog summarizes up to limit conversations that went inactive
// without a summary. Returns how many summaries were produced.
func (s *SummaryService) GenerateBacklog(ctx context.Context, limit int) (int, error) {
	pending, err := s.store.ListConversationsWithoutSummary(ctx, limit)
	if err != nil {
		return 0, err
	}

	generated := 0
	for _, conversation := range pending {
		summary, err := s.GenerateForThread(ctx, conversation.ThreadID)
		if err != nil {
			log.Printf("[Summary] backlog generation failed for thread %s: %v", conversation.ThreadID, err)
			continue
		}
		if summary != nil {
			generated++
		}
	}
	return generated, nil
}

func formatTranscript(history []model.HistoryMessage) string {
	var b strings.Builder
	for _, h := range history {
		b.WriteString(h.Role)
		b.WriteString(": ")
		b.WriteString(h.Content)
		b.WriteString("\n")
	}
	return b.String()
}
