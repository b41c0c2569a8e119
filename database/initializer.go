package database

import (
	"log"
)

func (s *PostgreSQLStore) Initialize() error {
	// Init all tables
	log.Println("Initializing PostgresSQL Database.", "Initializing Tables")
	if err := s.InitTables(); err != nil {
		return err
	}
	log.Println("Initializing PostgresSQL Database.", "Initializing Indexes")
	return s.InitIndexes()
}

func (s *PostgreSQLStore) InitTables() error {
	//
	// Init all the tables
	//

	// users table
	users_table := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		email VARCHAR(512) UNIQUE NOT NULL,
		external_uid VARCHAR(128),
		display_name VARCHAR(255),
		password_hash TEXT,
		role VARCHAR(20) DEFAULT 'user',
		status VARCHAR(50) DEFAULT 'active',
		created_at TIMESTAMP DEFAULT NOW(),
		updated_at TIMESTAMP DEFAULT NOW(),
		last_active TIMESTAMP DEFAULT NOW(),
		is_active BOOLEAN DEFAULT TRUE,
		total_conversations INTEGER DEFAULT 0,
		total_messages INTEGER DEFAULT 0
	);
	`

	// conversations table
	conversations_table := `
	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		thread_id VARCHAR(255) UNIQUE NOT NULL,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title VARCHAR(255),
		description TEXT,
		status VARCHAR(50) DEFAULT 'idle',
		is_active BOOLEAN DEFAULT TRUE,
		created_at TIMESTAMP DEFAULT NOW(),
		updated_at TIMESTAMP DEFAULT NOW(),
		last_message_at TIMESTAMP,
		message_count INTEGER DEFAULT 0,
		process_stage VARCHAR(100),
		completion_percentage INTEGER DEFAULT 0
	);
	`

	// messages table
	messages_table := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		role VARCHAR(50) NOT NULL,
		created_at TIMESTAMP DEFAULT NOW(),
		message_order INTEGER NOT NULL,
		token_count INTEGER,
		model_used VARCHAR(100),
		processing_time INTEGER
	);
	`

	// summaries table
	summaries_table := `
	CREATE TABLE IF NOT EXISTS summaries (
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		conversation_id INTEGER UNIQUE NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title VARCHAR(255),
		summary TEXT NOT NULL,
		summary_type VARCHAR(50) DEFAULT 'conversation',
		created_at TIMESTAMP DEFAULT NOW(),
		message_count INTEGER NOT NULL,
		model_used VARCHAR(100),
		token_count INTEGER
	);
	`

	// analyses table
	analyses_table := `
	CREATE TABLE IF NOT EXISTS analyses (
		id INTEGER PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
		summary_id INTEGER UNIQUE NOT NULL REFERENCES summaries(id) ON DELETE CASCADE,
		analysis_data JSONB NOT NULL,
		analysis_type VARCHAR(50) DEFAULT 'comprehensive',
		created_at TIMESTAMP DEFAULT NOW(),
		model_used VARCHAR(100)
	);
	`

	tables := []string{
		users_table,
		conversations_table,
		messages_table,
		summaries_table,
		analyses_table,
	}

	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return err
		}
	}

	return nil
}

func (s *PostgreSQLStore) InitIndexes() error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_users_external_uid ON users(external_uid);`,
		`CREATE INDEX IF NOT EXISTS idx_users_status ON users(status);`,
		`CREATE INDEX IF NOT EXISTS idx_users_last_active ON users(last_active);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user_id ON messages(user_id);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_conversation_order ON messages(conversation_id, message_order);`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_user_id ON summaries(user_id);`,
	}

	for _, index := range indexes {
		if _, err := s.db.Exec(index); err != nil {
			return err
		}
	}

	return nil
}
