package cron

import (
	"log"
	"time"

	"github.com/kinnevo/fastinnovation-api/config"
	"github.com/kinnevo/fastinnovation-api/database"
	"github.com/kinnevo/fastinnovation-api/services"
	"github.com/kinnevo/fastinnovation-api/services/filc"
	"github.com/robfig/cron/v3"
)

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron    *cron.Cron
	store   database.Storage
	agent   *filc.Client
	summary *services.SummaryService
	env     *config.EnviornmentVariable
}

// NewCronManager creates a new cron manager
func NewCronManager(store database.Storage, agent *filc.Client, summary *services.SummaryService, env *config.EnviornmentVariable) *CronManager {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron:    c,
		store:   store,
		agent:   agent,
		summary: summary,
		env:     env,
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	log.Println("Starting cron jobs...")

	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()

	log.Println("Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs and waits for running ones to finish
func (m *CronManager) Stop() {
	log.Println("Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	// Every 5 minutes: probe the agent's health endpoint
	_, err := m.cron.AddFunc("0 */5 * * * *", func() {
		m.logJobStart("check_agent_connection")
		m.CheckAgentConnection()
	})
	if err != nil {
		return err
	}

	// Every 15 minutes: sweep conversations that went quiet
	_, err = m.cron.AddFunc("0 */15 * * * *", func() {
		m.logJobStart("sweep_idle_conversations")
		m.SweepIdleConversations()
	})
	if err != nil {
		return err
	}

	// Every 30 minutes: mark inactive users idle
	_, err = m.cron.AddFunc("0 */30 * * * *", func() {
		m.logJobStart("sweep_idle_users")
		m.SweepIdleUsers()
	})
	if err != nil {
		return err
	}

	// Every hour: summarize conversations that ended without a summary
	_, err = m.cron.AddFunc("0 0 * * * *", func() {
		m.logJobStart("generate_summary_backlog")
		m.GenerateSummaryBacklog()
	})
	if err != nil {
		return err
	}

	log.Println("All cron jobs registered successfully")
	return nil
}

// logJobStart logs the start of a cron job
func (m *CronManager) logJobStart(jobName string) {
	log.Printf("[CRON] Starting job: %s at %s", jobName, time.Now().Format(time.RFC3339))
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(jobName string, message string) {
	log.Printf("[CRON] Completed job: %s - %s", jobName, message)
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(jobName string, err error) {
	log.Printf("[CRON] Error in job: %s - %v", jobName, err)
}
