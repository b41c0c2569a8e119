package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/kinnevo/fastinnovation-api/database"
	"github.com/kinnevo/fastinnovation-api/model"
	"github.com/sashabaranov/go-openai"
)

// Analyzer extracts structured insights from conversation summaries using
// the OpenAI chat API. The model is prompted for a strict JSON object; a
// response that fails to parse falls back to a minimal insight rather than
// failing the pipeline.
type Analyzer struct {
	client *openai.Client
	model  string
	store  database.Storage
}

func NewAnalyzer(apiKey, model string, store database.Storage) *Analyzer {
	return &Analyzer{
		client: openai.NewClient(apiKey),
		model:  model,
		store:  store,
	}
}

// AnalyzeSummary produces and persists the insight payload for a summary.
// Regeneration overwrites the previous analysis.
func (a *Analyzer) AnalyzeSummary(ctx context.Context, summary *model.Summary) (*model.Analysis, error) {
	insight, err := a.extractInsight(ctx, summary.Summary)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(insight)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal insight: %w", err)
	}

	return a.store.SaveAnalysis(ctx, summary.ID, payload, a.model)
}

func (a *Analyzer) extractInsight(ctx context.Context, summaryText string) (*model.ConversationInsight, error) {
	prompt := fmt.Sprintf(`Analyze the following conversation summary and provide a structured analysis with:
- The user's main intent
- Topics discussed, each with sentiment (positive, negative, neutral, mixed) and importance (1-5)
- Estimated user satisfaction (1-5)
- Key questions the user asked
- Action items that came out of the conversation
- The conversation type (e.g. "support", "brainstorming", "planning")

Return the response as a JSON object with this structure:
{
    "main_intent": "intent",
    "topics": [{"topic": "name", "sentiment": "positive", "importance": 3}],
    "user_satisfaction": 4,
    "key_questions": ["question1"],
    "action_items": ["item1"],
    "conversation_type": "type"
}

Summary: %s`, summaryText)

	resp, err := a.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: a.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   800,
			Temperature: 0.2,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("analysis returned no choices")
	}

	var insight model.ConversationInsight
	response := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(response), &insight); err != nil {
		log.Printf("[Analyzer] failed to parse model response, storing fallback: %v", err)
		return fallbackInsight(summaryText), nil
	}
	return &insight, nil
}

// fallbackInsight is used when the model's answer is not valid JSON.
func fallbackInsight(summaryText string) *model.ConversationInsight {
	intent := summaryText
	if len(intent) > 200 {
		intent = intent[:200]
	}
	return &model.ConversationInsight{
		MainIntent:       intent,
		Topics:           []model.TopicSentiment{},
		UserSatisfaction: 3,
		KeyQuestions:     []string{},
		ActionItems:      []string{},
		ConversationType: "general",
	}
}
