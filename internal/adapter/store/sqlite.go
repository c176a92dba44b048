// Package store is the local transcript archive. It keeps the last-known
// transcript of every session in a SQLite file so the session cache can be
// warmed on startup, with message content encrypted at rest when a
// passphrase is configured.
package store

import (
	"database/sql"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"medichat/internal/domain"
	"medichat/internal/infra/config"
	"medichat/internal/security"
	"medichat/internal/usecase"
)

// SQLiteArchive implements usecase.TranscriptArchive on a local SQLite file.
type SQLiteArchive struct {
	db     *sql.DB
	enc    *security.TranscriptEncryptor // nil = plaintext
	logger *slog.Logger
}

var _ usecase.TranscriptArchive = (*SQLiteArchive)(nil)

// Open opens (or creates) the archive at cfg.Path and runs the schema
// migration. When cfg.Passphrase is set, content is encrypted with a key
// derived from it and a salt persisted in the database.
func Open(cfg config.ArchiveConfig, logger *slog.Logger) (*SQLiteArchive, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	// modernc.org/sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY under concurrent resolves.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive db: %w", err)
	}

	a := &SQLiteArchive{db: db, logger: logger}
	if cfg.Passphrase != "" {
		salt, err := loadOrCreateSalt(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		enc, err := security.NewTranscriptEncryptor(cfg.Passphrase, salt)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("derive archive key: %w", err)
		}
		a.enc = enc
	}
	return a, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			session_id TEXT    NOT NULL,
			seq        INTEGER NOT NULL,
			role       TEXT    NOT NULL,
			content    TEXT    NOT NULL,
			audio_url  TEXT    NOT NULL DEFAULT '',
			created_at TEXT    NOT NULL,
			PRIMARY KEY (session_id, seq)
		);
	`)
	return err
}

func loadOrCreateSalt(db *sql.DB) ([]byte, error) {
	var stored string
	err := db.QueryRow("SELECT value FROM meta WHERE key = 'salt'").Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		salt, err := security.NewSalt()
		if err != nil {
			return nil, err
		}
		if _, err := db.Exec("INSERT INTO meta (key, value) VALUES ('salt', ?)",
			base64.StdEncoding.EncodeToString(salt)); err != nil {
			return nil, fmt.Errorf("store salt: %w", err)
		}
		return salt, nil
	case err != nil:
		return nil, fmt.Errorf("load salt: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	return salt, nil
}

// Close closes the underlying database and zeroes the key.
func (a *SQLiteArchive) Close() error {
	if a.enc != nil {
		a.enc.Zeroize()
	}
	return a.db.Close()
}

// SaveTranscript implements usecase.TranscriptArchive. The stored transcript
// is replaced wholesale; the cache always hands over a full snapshot.
func (a *SQLiteArchive) SaveTranscript(sessionID string, msgs []domain.Message) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("clear transcript: %w", err)
	}
	for i, m := range msgs {
		content := m.Content
		if a.enc != nil {
			content, err = a.enc.Encrypt(m.Content)
			if err != nil {
				return fmt.Errorf("encrypt message: %w", err)
			}
		}
		if _, err := tx.Exec(
			"INSERT INTO messages (session_id, seq, role, content, audio_url, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			sessionID, i, m.Role, content, m.AudioURL, m.Timestamp.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	return tx.Commit()
}

// LoadTranscript implements usecase.TranscriptArchive.
func (a *SQLiteArchive) LoadTranscript(sessionID string) ([]domain.Message, error) {
	rows, err := a.db.Query(
		"SELECT role, content, audio_url, created_at FROM messages WHERE session_id = ? ORDER BY seq",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var createdAt string
		if err := rows.Scan(&m.Role, &m.Content, &m.AudioURL, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if a.enc != nil {
			m.Content, err = a.enc.Decrypt(m.Content)
			if err != nil {
				return nil, fmt.Errorf("decrypt message: %w", err)
			}
		}
		m.Raw = m.Content
		m.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, domain.NewDomainError("store.LoadTranscript", domain.ErrNotFound, sessionID)
	}
	return msgs, nil
}

// SessionIDs implements usecase.TranscriptArchive.
func (a *SQLiteArchive) SessionIDs() ([]string, error) {
	rows, err := a.db.Query("SELECT DISTINCT session_id FROM messages ORDER BY session_id")
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
