package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// DefaultTitle is used when a query yields no usable title words.
const DefaultTitle = "New Research"

// TitleFromQuery derives a short conversation title from the first four
// words of query, capped at 30 characters.
func TitleFromQuery(query string) string {
	words := strings.Fields(query)
	if len(words) > 4 {
		words = words[:4]
	}
	title := strings.Join(words, " ")
	if r := []rune(title); len(r) > 30 {
		title = string(r[:27]) + "..."
	}
	if title == "" {
		return DefaultTitle
	}
	return title
}

// CreateConversation inserts an empty conversation and returns it.
func (s *Store) CreateConversation(title, categoryFilter string) (Conversation, error) {
	now := s.now()
	c := Conversation{
		ID:             uuid.New().String(),
		Title:          title,
		Messages:       []Message{},
		Sources:        []Source{},
		CreatedAt:      now,
		UpdatedAt:      now,
		CategoryFilter: categoryFilter,
	}
	_, err := s.db.Exec(`
		INSERT INTO conversations (id, title, category_filter, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.CategoryFilter, formatTime(now), formatTime(now),
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("inserting conversation: %w", err)
	}
	return c, nil
}

// GetConversation loads a conversation with its messages and sources in
// insertion order.
func (s *Store) GetConversation(id string) (Conversation, error) {
	var c Conversation
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, title, category_filter, created_at, updated_at
		FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.Title, &c.CategoryFilter, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("selecting conversation %s: %w", id, err)
	}
	if c.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Conversation{}, err
	}
	if c.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Conversation{}, err
	}

	if c.Messages, err = s.messages(id); err != nil {
		return Conversation{}, err
	}
	if c.Sources, err = s.sources(id); err != nil {
		return Conversation{}, err
	}
	c.MessageCount = len(c.Messages)
	return c, nil
}

func (s *Store) messages(conversationID string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, role, content, created_at FROM messages
		WHERE conversation_id = ? ORDER BY seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("selecting messages: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		var ts string
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if m.Timestamp, err = parseTime("message created_at", ts); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) sources(conversationID string) ([]Source, error) {
	rows, err := s.db.Query(`
		SELECT id, title, url, community, upvotes, excerpt, created_at FROM sources
		WHERE conversation_id = ? ORDER BY seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("selecting sources: %w", err)
	}
	defer rows.Close()

	srcs := []Source{}
	for rows.Next() {
		var src Source
		var ts string
		if err := rows.Scan(&src.ID, &src.Title, &src.URL, &src.Community, &src.Upvotes, &src.Excerpt, &ts); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		if src.Timestamp, err = parseTime("source created_at", ts); err != nil {
			return nil, err
		}
		srcs = append(srcs, src)
	}
	return srcs, rows.Err()
}

// AppendMessage records a message at the end of the conversation and bumps
// its updated_at. Writes to the same conversation are serialised.
func (s *Store) AppendMessage(conversationID string, role Role, content string) (Message, error) {
	if !role.Valid() {
		return Message{}, fmt.Errorf("invalid message role %q", role)
	}
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return Message{}, fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	if err := touchConversation(tx, conversationID, now); err != nil {
		return Message{}, err
	}

	var seq int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?`, conversationID).Scan(&seq); err != nil {
		return Message{}, fmt.Errorf("computing message sequence: %w", err)
	}

	m := Message{ID: uuid.New().String(), Role: role, Content: content, Timestamp: now}
	if _, err := tx.Exec(`
		INSERT INTO messages (id, conversation_id, seq, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, conversationID, seq, string(m.Role), m.Content, formatTime(now),
	); err != nil {
		return Message{}, fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("committing message: %w", err)
	}
	return m, nil
}

// AppendSources attaches sources to a conversation in the given order.
// Missing IDs and timestamps are filled in.
func (s *Store) AppendSources(conversationID string, sources []Source) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	if err := touchConversation(tx, conversationID, now); err != nil {
		return err
	}

	var seq int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM sources WHERE conversation_id = ?`, conversationID).Scan(&seq); err != nil {
		return fmt.Errorf("computing source sequence: %w", err)
	}

	for _, src := range sources {
		seq++
		if src.ID == "" {
			src.ID = uuid.New().String()
		}
		if src.Timestamp.IsZero() {
			src.Timestamp = now
		}
		if _, err := tx.Exec(`
			INSERT INTO sources (id, conversation_id, seq, title, url, community, upvotes, excerpt, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			src.ID, conversationID, seq, src.Title, src.URL, src.Community, src.Upvotes, src.Excerpt, formatTime(src.Timestamp),
		); err != nil {
			return fmt.Errorf("inserting source %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing sources: %w", err)
	}
	return nil
}

// touchConversation bumps updated_at and reports ErrNotFound for unknown ids.
func touchConversation(tx *sql.Tx, id string, now time.Time) error {
	res, err := tx.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, formatTime(now), id)
	if err != nil {
		return fmt.Errorf("updating conversation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConversations returns conversation summaries, most recently updated
// first. Messages and sources are not loaded.
func (s *Store) ListConversations(opts ListOptions) ([]Conversation, error) {
	q := sq.Select(
		"c.id", "c.title", "c.category_filter", "c.created_at", "c.updated_at",
		"(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count",
	).
		From("conversations c").
		OrderBy("c.updated_at DESC", "c.rowid DESC")
	if opts.CategoryFilter != "" {
		q = q.Where(sq.Eq{"c.category_filter": opts.CategoryFilter})
	}
	if opts.Limit > 0 {
		q = q.Limit(uint64(opts.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	convs := []Conversation{}
	for rows.Next() {
		var c Conversation
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.Title, &c.CategoryFilter, &createdAt, &updatedAt, &c.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		if c.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		if c.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (s *Store) RenameConversation(id, title string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	res, err := s.db.Exec(`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("renaming conversation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RenameConversationIf sets the title only while it still equals expected,
// and leaves updated_at alone so background retitling does not reorder the
// list. It reports whether the title changed.
func (s *Store) RenameConversationIf(id, expected, title string) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	res, err := s.db.Exec(`UPDATE conversations SET title = ? WHERE id = ? AND title = ?`, title, id, expected)
	if err != nil {
		return false, fmt.Errorf("renaming conversation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var one int
	err = s.db.QueryRow(`SELECT 1 FROM conversations WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("checking conversation %s: %w", id, err)
	}
	return false, nil
}

// DeleteConversation removes a conversation and everything attached to it.
func (s *Store) DeleteConversation(id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM messages WHERE conversation_id = ?`,
		`DELETE FROM sources WHERE conversation_id = ?`,
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("deleting conversation %s children: %w", id, err)
		}
	}
	res, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
