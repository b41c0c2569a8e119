package config

import (
	"os"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	vars := []string{
		"PORT", "DB_HOST", "DB_PORT", "DB_STRATEGY", "DB_BACKEND",
		"FILC_API_URL", "FILC_MAX_RETRIES", "OPENAI_MODEL",
		"CONVERSATION_IDLE_MINUTES", "USER_IDLE_MINUTES",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}

	getEnv, err := Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if getEnv.PORT != 8080 {
		t.Errorf("default PORT: got %d", getEnv.PORT)
	}
	if getEnv.DB_HOST != "localhost" || getEnv.DB_PORT != "5432" {
		t.Errorf("default DB host/port: got %s:%s", getEnv.DB_HOST, getEnv.DB_PORT)
	}
	if getEnv.DB_STRATEGY != DBStrategyLocal {
		t.Errorf("default DB_STRATEGY: got %s", getEnv.DB_STRATEGY)
	}
	if getEnv.DB_BACKEND != "gorm" {
		t.Errorf("default DB_BACKEND: got %s", getEnv.DB_BACKEND)
	}
	if getEnv.FILC_MAX_RETRIES != 3 {
		t.Errorf("default FILC_MAX_RETRIES: got %d", getEnv.FILC_MAX_RETRIES)
	}
	if getEnv.OPENAI_MODEL != "gpt-4o" {
		t.Errorf("default OPENAI_MODEL: got %s", getEnv.OPENAI_MODEL)
	}
	if getEnv.CONVERSATION_IDLE_MINUTES != 120 || getEnv.USER_IDLE_MINUTES != 60 {
		t.Errorf("default idle thresholds: got %d/%d",
			getEnv.CONVERSATION_IDLE_MINUTES, getEnv.USER_IDLE_MINUTES)
	}
}

func TestGetOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DB_BACKEND", "pq")
	t.Setenv("FILC_MAX_RETRIES", "5")

	getEnv, err := Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if getEnv.PORT != 9999 {
		t.Errorf("PORT override: got %d", getEnv.PORT)
	}
	if getEnv.DB_BACKEND != "pq" {
		t.Errorf("DB_BACKEND override: got %s", getEnv.DB_BACKEND)
	}
	if getEnv.FILC_MAX_RETRIES != 5 {
		t.Errorf("FILC_MAX_RETRIES override: got %d", getEnv.FILC_MAX_RETRIES)
	}
}

func TestGetRejectsBadNumbers(t *testing.T) {
	t.Setenv("FILC_MAX_RETRIES", "not-a-number")
	t.Setenv("CONVERSATION_IDLE_MINUTES", "-5")

	getEnv, err := Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if getEnv.FILC_MAX_RETRIES != 3 {
		t.Errorf("bad FILC_MAX_RETRIES should fall back to 3, got %d", getEnv.FILC_MAX_RETRIES)
	}
	if getEnv.CONVERSATION_IDLE_MINUTES != 120 {
		t.Errorf("negative idle minutes should fall back to 120, got %d", getEnv.CONVERSATION_IDLE_MINUTES)
	}
}
