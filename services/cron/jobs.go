package cron

import (
	"context"
	"fmt"
	"time"
)

// CheckAgentConnection probes the agent's health endpoint so the status
// surfaced by /health stays fresh even when no chat traffic is flowing.
func (m *CronManager) CheckAgentConnection() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jobName := "check_agent_connection"
	if err := m.agent.CheckConnection(ctx); err != nil {
		m.logJobError(jobName, err)
		return
	}
	m.logJobComplete(jobName, "agent reachable")
}

// SweepIdleConversations marks conversations inactive after the configured
// quiet period.
func (m *CronManager) SweepIdleConversations() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	jobName := "sweep_idle_conversations"
	swept, err := m.store.MarkConversationsInactive(ctx, m.env.CONVERSATION_IDLE_MINUTES)
	if err != nil {
		m.logJobError(jobName, fmt.Errorf("failed to sweep conversations: %w", err))
		return
	}
	m.logJobComplete(jobName, fmt.Sprintf("%d conversations marked inactive", swept))
}

// SweepIdleUsers moves users from active to idle after the configured quiet
// period.
func (m *CronManager) SweepIdleUsers() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	jobName := "sweep_idle_users"
	swept, err := m.store.MarkUsersIdle(ctx, m.env.USER_IDLE_MINUTES)
	if err != nil {
		m.logJobError(jobName, fmt.Errorf("failed to sweep users: %w", err))
		return
	}
	m.logJobComplete(jobName, fmt.Sprintf("%d users marked idle", swept))
}

// GenerateSummaryBacklog summarizes a batch of finished conversations that
// never got a summary.
func (m *CronManager) GenerateSummaryBacklog() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	jobName := "generate_summary_backlog"
	if m.summary == nil {
		m.logJobComplete(jobName, "summary service not configured")
		return
	}

	generated, err := m.summary.GenerateBacklog(ctx, 20)
	if err != nil {
		m.logJobError(jobName, fmt.Errorf("failed to generate backlog: %w", err))
		return
	}
	m.logJobComplete(jobName, fmt.Sprintf("%d summaries generated", generated))
}
