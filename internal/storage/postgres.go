package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/DmitriyMgar/telegram-gpt-bot/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	_, err = s.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (s *PostgresStorage) GetDialogue(ctx context.Context, key string) (string, error) {
	var dialogueID string
	err := s.db.QueryRowContext(ctx,
		`SELECT dialogue_id FROM dialogues WHERE conversation_key = $1`, key,
	).Scan(&dialogueID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error querying dialogue: %v", err)
	}

	// Touch last_used_at opportunistically; a failure here is not worth
	// failing the read for.
	s.db.ExecContext(ctx,
		`UPDATE dialogues SET last_used_at = now() WHERE conversation_key = $1`, key)

	return dialogueID, nil
}

func (s *PostgresStorage) SaveDialogue(ctx context.Context, key, dialogueID string) error {
	query := `
		INSERT INTO dialogues (conversation_key, dialogue_id)
		VALUES ($1, $2)
		ON CONFLICT (conversation_key)
		DO UPDATE SET dialogue_id = EXCLUDED.dialogue_id, last_used_at = now()`

	if _, err := s.db.ExecContext(ctx, query, key, dialogueID); err != nil {
		return fmt.Errorf("error saving dialogue: %v", err)
	}
	return nil
}

func (s *PostgresStorage) DeleteDialogue(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM dialogues WHERE conversation_key = $1`, key); err != nil {
		return fmt.Errorf("error deleting dialogue: %v", err)
	}
	return nil
}

func (s *PostgresStorage) AddImage(ctx context.Context, key, fileID string) error {
	query := `
		INSERT INTO session_images (conversation_key, file_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, key, fileID); err != nil {
		return fmt.Errorf("error adding image: %v", err)
	}
	return nil
}

func (s *PostgresStorage) ListImages(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id FROM session_images WHERE conversation_key = $1 ORDER BY created_at`, key)
	if err != nil {
		return nil, fmt.Errorf("error querying images: %v", err)
	}
	defer rows.Close()

	var fileIDs []string
	for rows.Next() {
		var fileID string
		if err := rows.Scan(&fileID); err != nil {
			return nil, fmt.Errorf("error scanning image: %v", err)
		}
		fileIDs = append(fileIDs, fileID)
	}
	return fileIDs, rows.Err()
}

func (s *PostgresStorage) ClearImages(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_images WHERE conversation_key = $1`, key); err != nil {
		return fmt.Errorf("error clearing images: %v", err)
	}
	return nil
}

func (s *PostgresStorage) AddDocument(ctx context.Context, key string, doc models.DocumentRef) error {
	query := `
		INSERT INTO session_documents (conversation_key, file_id, filename)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, key, doc.FileID, doc.Filename); err != nil {
		return fmt.Errorf("error adding document: %v", err)
	}
	return nil
}

func (s *PostgresStorage) ListDocuments(ctx context.Context, key string) ([]models.DocumentRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id, filename FROM session_documents WHERE conversation_key = $1 ORDER BY created_at`, key)
	if err != nil {
		return nil, fmt.Errorf("error querying documents: %v", err)
	}
	defer rows.Close()

	var docs []models.DocumentRef
	for rows.Next() {
		var doc models.DocumentRef
		if err := rows.Scan(&doc.FileID, &doc.Filename); err != nil {
			return nil, fmt.Errorf("error scanning document: %v", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStorage) ClearDocuments(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_documents WHERE conversation_key = $1`, key); err != nil {
		return fmt.Errorf("error clearing documents: %v", err)
	}
	return nil
}

func (s *PostgresStorage) RecordUsage(ctx context.Context, rec models.UsageRecord) error {
	date := rec.Date
	if date.IsZero() {
		date = time.Now()
	}

	query := `
		INSERT INTO usage_records (user_id, username, request_date, tokens_used)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.db.ExecContext(ctx, query,
		rec.UserID, rec.Username, date.Format("2006-01-02"), rec.TokensUsed); err != nil {
		return fmt.Errorf("error recording usage: %v", err)
	}
	return nil
}

func (s *PostgresStorage) UsageByDate(ctx context.Context, date time.Time) ([]models.UserUsage, error) {
	query := `
		SELECT user_id, COALESCE(username, ''), SUM(tokens_used), COUNT(*)
		FROM usage_records
		WHERE request_date = $1
		GROUP BY user_id, username
		ORDER BY SUM(tokens_used) DESC`

	return s.queryUsage(ctx, query, date.Format("2006-01-02"))
}

func (s *PostgresStorage) UserTotals(ctx context.Context) ([]models.UserUsage, error) {
	query := `
		SELECT user_id, COALESCE(username, ''), SUM(tokens_used), COUNT(*)
		FROM usage_records
		GROUP BY user_id, username
		ORDER BY SUM(tokens_used) DESC`

	return s.queryUsage(ctx, query)
}

func (s *PostgresStorage) queryUsage(ctx context.Context, query string, args ...any) ([]models.UserUsage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying usage: %v", err)
	}
	defer rows.Close()

	var usages []models.UserUsage
	for rows.Next() {
		var u models.UserUsage
		if err := rows.Scan(&u.UserID, &u.Username, &u.TotalTokens, &u.Requests); err != nil {
			return nil, fmt.Errorf("error scanning usage: %v", err)
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
