package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/kinnevo/fastinnovation-api/database"
	"github.com/kinnevo/fastinnovation-api/model"
)

// SpacesConfig holds credentials for the S3-compatible object store that
// receives report exports.
type SpacesConfig struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Endpoint  string
}

// ReportExporter renders admin reports as CSV and uploads them to Spaces.
type ReportExporter struct {
	s3Client *s3.S3
	bucket   string
	endpoint string
	store    database.Storage
}

func NewReportExporter(config SpacesConfig, store database.Storage) (*ReportExporter, error) {
	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"",
		),
		Endpoint:         aws.String(config.Endpoint),
		Region:           aws.String(config.Region),
		S3ForcePathStyle: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Spaces session: %w", err)
	}

	return &ReportExporter{
		s3Client: s3.New(sess),
		bucket:   config.Bucket,
		endpoint: config.Endpoint,
		store:    store,
	}, nil
}

// exportPageSize is how many rows each export query fetches.
const exportPageSize = 500

// collectConversations pages through the conversation listing until the
// reported total is covered.
func (e *ReportExporter) collectConversations(ctx context.Context) ([]model.Conversation, error) {
	var conversations []model.Conversation
	for page := 1; ; page++ {
		rows, total, err := e.store.ListConversations(ctx, page, exportPageSize)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, rows...)
		if len(rows) == 0 || int64(len(conversations)) >= total {
			return conversations, nil
		}
	}
}

func (e *ReportExporter) collectUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	for page := 1; ; page++ {
		rows, total, err := e.store.ListUsers(ctx, page, exportPageSize)
		if err != nil {
			return nil, err
		}
		users = append(users, rows...)
		if len(rows) == 0 || int64(len(users)) >= total {
			return users, nil
		}
	}
}

// ExportConversations uploads a CSV of every conversation and returns its URL.
func (e *ReportExporter) ExportConversations(ctx context.Context) (string, error) {
	conversations, err := e.collectConversations(ctx)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"thread_id", "user_id", "title", "status", "message_count", "created_at", "last_message_at"})
	for _, c := range conversations {
		lastMessageAt := ""
		if c.LastMessageAt != nil {
			lastMessageAt = c.LastMessageAt.Format(time.RFC3339)
		}
		w.Write([]string{
			c.ThreadID,
			strconv.FormatUint(uint64(c.UserID), 10),
			c.Title,
			string(c.Status),
			strconv.Itoa(c.MessageCount),
			c.CreatedAt.Format(time.RFC3339),
			lastMessageAt,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	key := fmt.Sprintf("reports/conversations-%s.csv", time.Now().Format("20060102-150405"))
	return e.upload(ctx, key, buf.Bytes())
}

// ExportUsers uploads a CSV of every user and returns its URL.
func (e *ReportExporter) ExportUsers(ctx context.Context) (string, error) {
	users, err := e.collectUsers(ctx)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"email", "display_name", "status", "total_conversations", "total_messages", "created_at", "last_active"})
	for _, u := range users {
		w.Write([]string{
			u.Email,
			u.DisplayName,
			string(u.Status),
			strconv.Itoa(u.TotalConversations),
			strconv.Itoa(u.TotalMessages),
			u.CreatedAt.Format(time.RFC3339),
			u.LastActive.Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	key := fmt.Sprintf("reports/users-%s.csv", time.Now().Format("20060102-150405"))
	return e.upload(ctx, key, buf.Bytes())
}

func (e *ReportExporter) upload(ctx context.Context, key string, data []byte) (string, error) {
	_, err := e.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ACL:         aws.String("private"),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}
	return fmt.Sprintf("https://%s.%s/%s", e.bucket, e.endpoint, key), nil
}
