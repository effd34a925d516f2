package store

import (
	"context"
	"database/sql"
	"errors"
)

// ErrChatNotFound is returned by read-model queries for unknown titles.
var ErrChatNotFound = errors.New("chat not found")

// ChatInfo is one tracked chat as exposed by the HTTP API.
type ChatInfo struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// MessageRecord is one persisted message as exposed by the HTTP API.
type MessageRecord struct {
	ChatRoom  string `json:"chatRoom"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"` // ts_local as stored
	Order     int64  `json:"order"`
	Content   string `json:"content"`
}

// Chats lists all chats that ever persisted a message, in title order.
func (s *Store) Chats(ctx context.Context) ([]ChatInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title FROM chats ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatInfo
	for rows.Next() {
		var c ChatInfo
		if err := rows.Scan(&c.ID, &c.Title); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MessagesByTitle returns the full persisted history of one chat in
// (ts_local, msg_order) order.
func (s *Store) MessagesByTitle(ctx context.Context, title string) ([]MessageRecord, error) {
	var chatID int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM chats WHERE title = ?`, title).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT sender, ts_local, content, msg_order FROM messages
WHERE chat_id = ?
ORDER BY ts_local, msg_order, id`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		r := MessageRecord{ChatRoom: title}
		if err := rows.Scan(&r.Sender, &r.Timestamp, &r.Content, &r.Order); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
