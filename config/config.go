package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Database connection strategies. The stores treat these purely as opaque
// construction parameters; no call site branches on them.
const (
	DBStrategyLocal  = "local"  // direct TCP DSN
	DBStrategyProxy  = "proxy"  // Cloud SQL auth proxy on 127.0.0.1
	DBStrategySocket = "socket" // managed unix-socket connector
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil {
			return err
		}
	}

	return nil
}

type EnviornmentVariable struct {
	// All variables
	GO_ENV       string
	DB_STRATEGY  string
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	// Managed-connector (unix socket) connection name, e.g. project:region:instance
	DB_CONNECTION_NAME string
	// Which persistence backend serves the Storage interface: "gorm" or "pq"
	DB_BACKEND string
	PORT       int
	// JWT Configuration
	JWT_SECRET string
	JWT_ISSUER string
	// Redis Configuration
	REDIS_URL string
	// FILC Agent Configuration
	FILC_API_URL     string
	FILC_API_KEY     string
	FILC_MAX_RETRIES int
	// OpenAI (summary analysis)
	OPENAI_API_KEY string
	OPENAI_MODEL   string
	// Spaces (report exports)
	SPACES_ACCESS_KEY string
	SPACES_SECRET_KEY string
	SPACES_BUCKET     string
	SPACES_REGION     string
	SPACES_ENDPOINT   string
	// Idle sweep thresholds (minutes)
	CONVERSATION_IDLE_MINUTES int
	USER_IDLE_MINUTES         int
}

func Get() (*EnviornmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	// Database defaults
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}

	dbStrategy := os.Getenv("DB_STRATEGY")
	if dbStrategy == "" {
		dbStrategy = DBStrategyLocal
	}

	dbBackend := os.Getenv("DB_BACKEND")
	if dbBackend == "" {
		dbBackend = "gorm"
	}

	filcURL := os.Getenv("FILC_API_URL")
	if filcURL == "" {
		filcURL = "https://filc-production.up.railway.app"
	}

	maxRetries, err := strconv.Atoi(os.Getenv("FILC_MAX_RETRIES"))
	if err != nil || maxRetries < 0 {
		maxRetries = 3
	}

	openaiModel := os.Getenv("OPENAI_MODEL")
	if openaiModel == "" {
		openaiModel = "gpt-4o"
	}

	convIdle, err := strconv.Atoi(os.Getenv("CONVERSATION_IDLE_MINUTES"))
	if err != nil || convIdle <= 0 {
		convIdle = 120
	}

	userIdle, err := strconv.Atoi(os.Getenv("USER_IDLE_MINUTES"))
	if err != nil || userIdle <= 0 {
		userIdle = 60
	}

	envVariables := &EnviornmentVariable{
		GO_ENV:             os.Getenv("GO_ENV"),
		DB_STRATEGY:        dbStrategy,
		DB_USER_NAME:       os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:        os.Getenv("DB_PASSWORD"),
		DB_NAME:            os.Getenv("DB_NAME"),
		DB_HOST:            dbHost,
		DB_PORT:            dbPort,
		DB_SSL_MODE:        os.Getenv("DB_SSL_MODE"),
		DB_CONNECTION_NAME: os.Getenv("DB_CONNECTION_NAME"),
		DB_BACKEND:         dbBackend,
		PORT:               port,
		// JWT
		JWT_SECRET: os.Getenv("JWT_SECRET"),
		JWT_ISSUER: os.Getenv("JWT_ISSUER"),
		// Redis
		REDIS_URL: os.Getenv("REDIS_URL"),
		// FILC Agent
		FILC_API_URL:     filcURL,
		FILC_API_KEY:     os.Getenv("FILC_API_KEY"),
		FILC_MAX_RETRIES: maxRetries,
		// OpenAI
		OPENAI_API_KEY: os.Getenv("OPENAI_API_KEY"),
		OPENAI_MODEL:   openaiModel,
		// Spaces
		SPACES_ACCESS_KEY: os.Getenv("SPACES_ACCESS_KEY"),
		SPACES_SECRET_KEY: os.Getenv("SPACES_SECRET_KEY"),
		SPACES_BUCKET:     os.Getenv("SPACES_BUCKET"),
		SPACES_REGION:     os.Getenv("SPACES_REGION"),
		SPACES_ENDPOINT:   os.Getenv("SPACES_ENDPOINT"),
		// Idle sweeps
		CONVERSATION_IDLE_MINUTES: convIdle,
		USER_IDLE_MINUTES:         userIdle,
	}

	return envVariables, nil
}
