package database

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/kinnevo/fastinnovation-api/config"
)

// poolAcquireTimeout bounds how long a write waits for a pooled connection
// before reporting pool exhaustion.
const poolAcquireTimeout = 5 * time.Second

type PostgreSQLStore struct {
	db *sql.DB

	mu     sync.Mutex
	closed bool
}

// Start opens a database/sql pool against PostgreSQL using the configured
// connection strategy. The pool is deliberately small: one warm idle
// connection, capped well below typical server limits.
func Start(getEnv *config.EnviornmentVariable) (*PostgreSQLStore, error) {
	connectStr, err := BuildDSN(getEnv)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", connectStr)
	if err != nil {
		log.Println("Unable to Start PostgresSQL Database.")
		return nil, err
	}

	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)

	log.Println("Successfully connected to PostgresSQL Database.")
	return &PostgreSQLStore{
		db: db,
	}, nil
}

func (s *PostgreSQLStore) Init() error {
	log.Println("Initializing PostgresSQL Database.")
	return s.Initialize()
}

// Close releases the pool. Every operation after Close fails fast with
// ErrStoreClosed instead of queueing on a dead pool.
func (s *PostgreSQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	log.Println("Closing PostgresSQL Database.")
	return s.db.Close()
}

// HealthCheck verifies the database connection is alive
func (s *PostgreSQLStore) HealthCheck() error {
	if err := s.guard(); err != nil {
		return err
	}
	return s.db.Ping()
}

func (s *PostgreSQLStore) guard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// classifyAcquireError distinguishes a saturated pool from a caller that
// gave up: an acquire deadline hit while the caller's context is still live
// means every connection was busy for the whole wait.
func classifyAcquireError(callerCtx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && callerCtx.Err() == nil {
		return ErrPoolExhausted
	}
	return err
}

// acquireConn checks a connection out of the pool with a bounded wait. The
// returned connection stays usable after the acquire context expires; the
// caller must Close it back to the pool.
func (s *PostgreSQLStore) acquireConn(ctx context.Context) (*sql.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, poolAcquireTimeout)
	defer cancel()

	conn, err := s.db.Conn(acquireCtx)
	if err != nil {
		return nil, classifyAcquireError(ctx, err)
	}
	return conn, nil
}
