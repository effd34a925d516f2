package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"chatlogd/internal/parse"
	logx "chatlogd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// TimeLayout is the fixed local-time string format of messages.ts_local.
const TimeLayout = "2006-01-02T15:04:05"

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// SavedMessage is a message row that was actually inserted by SaveMessages.
type SavedMessage struct {
	Sender    string
	Timestamp time.Time
	Content   string
	Order     int
}

// Store persists chats and deduplicated messages in sqlite.
//
// Dedup model: every row carries a fingerprint over
// (chat, sender, ts, content, order) and the (chat_id, fingerprint) unique
// index is the arbiter — re-captures of already-seen text collide there and
// are dropped, while genuinely repeated identical lines get distinct order
// values and therefore distinct fingerprints.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetOrCreateChat maps a chat title to its stable numeric id, creating the
// chat row on first sight.
func (s *Store) GetOrCreateChat(ctx context.Context, title string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM chats WHERE title = ?`, title).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	// Two concurrent first sights race on the title unique constraint;
	// re-read on conflict.
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO chats(title) VALUES(?)`, title)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return res.LastInsertId()
	}
	err = s.db.QueryRowContext(ctx, `SELECT id FROM chats WHERE title = ?`, title).Scan(&id)
	return id, err
}

type orderKey struct {
	sender  string
	ts      string
	content string
}

// SaveMessages inserts the parsed batch inside one transaction and returns
// only the rows that were newly written.
//
// Order assignment is purely positional within the batch: the per-call
// cache starts at 0 for each distinct (sender, ts, content), so N identical
// lines receive orders 0..N-1 in every capture. A re-capture of already-seen
// text therefore reproduces the same orders and the same fingerprints, which
// collide on the (chat_id, fingerprint) unique index and are dropped. An
// identical real message whose older twin already scrolled out of the
// capture window collides too and is lost; that is an accepted duplicate.
func (s *Store) SaveMessages(ctx context.Context, chatID int64, msgs []parse.Message) ([]SavedMessage, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	insert, err := tx.PrepareContext(ctx, `
INSERT OR IGNORE INTO messages(chat_id, sender, ts_local, content, fingerprint, msg_order)
VALUES (?,?,?,?,?,?)`)
	if err != nil {
		return nil, err
	}
	defer insert.Close()

	cache := make(map[orderKey]int)
	var inserted []SavedMessage

	for _, m := range msgs {
		tsIso := m.Timestamp.Format(TimeLayout)
		key := orderKey{sender: m.Sender, ts: tsIso, content: m.Content}

		order := cache[key]
		cache[key] = order + 1

		fp := Fingerprint(chatID, m.Sender, tsIso, m.Content, order)

		res, err := insert.ExecContext(ctx, chatID, m.Sender, tsIso, m.Content, fp, order)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted = append(inserted, SavedMessage{
				Sender:    m.Sender,
				Timestamp: m.Timestamp,
				Content:   m.Content,
				Order:     order,
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return inserted, nil
}

// Fingerprint derives the storage uniqueness key of one message.
//
// The order value is part of the input on purpose: two textually identical
// messages must hash differently, while a re-capture of the same message
// (same order) must collide.
func Fingerprint(chatID int64, sender, tsLocal, content string, order int) string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(chatID, 10)))
	h.Write([]byte("\n"))
	h.Write([]byte(sender))
	h.Write([]byte("\n"))
	h.Write([]byte(tsLocal))
	h.Write([]byte("\n"))
	h.Write([]byte(content))
	h.Write([]byte("\n"))
	h.Write([]byte(strconv.Itoa(order)))
	return hex.EncodeToString(h.Sum(nil))
}
