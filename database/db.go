package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"courtside/logger"
	"courtside/models"
)

var DB *sql.DB

// ErrNotParticipant is returned when a user acts on a conversation they are not part of.
var ErrNotParticipant = errors.New("not a participant of this conversation")

// Initialize opens the sqlite database at path and creates tables
func Initialize(path string) error {
	var err error
	DB, err = sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := DB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// sqlite serialises writers anyway
	DB.SetMaxOpenConns(1)

	if err := createTables(); err != nil {
		return err
	}

	logger.Log.Info("database initialized", zap.String("path", path))
	return nil
}

// Close closes the database if it is open
func Close() error {
	if DB == nil {
		return nil
	}
	return DB.Close()
}

func createTables() error {
	tables := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		avatar TEXT DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_a INTEGER NOT NULL,
		user_b INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (user_a) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (user_b) REFERENCES users(id) ON DELETE CASCADE,
		UNIQUE(user_a, user_b)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL,
		sender_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		image_url TEXT,
		created_at DATETIME NOT NULL,
		read_at DATETIME,
		updated_at DATETIME,
		is_edited INTEGER NOT NULL DEFAULT 0,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
		FOREIGN KEY (sender_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	`

	_, err := DB.Exec(tables)
	return err
}

// User queries

// CreateUser inserts a new user; password must already be hashed
func CreateUser(username, password string) (*models.User, error) {
	result, err := DB.Exec(
		"INSERT INTO users (username, password, created_at) VALUES (?, ?, ?)",
		username, password, now(),
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return GetUserByID(id)
}

// GetUserByID retrieves a user by their ID
func GetUserByID(id int64) (*models.User, error) {
	return scanUser(DB.QueryRow(
		"SELECT id, username, password, avatar, created_at FROM users WHERE id = ?", id,
	))
}

// GetUserByUsername retrieves a user by username
func GetUserByUsername(username string) (*models.User, error) {
	return scanUser(DB.QueryRow(
		"SELECT id, username, password, avatar, created_at FROM users WHERE username = ?", username,
	))
}

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	if err := row.Scan(&user.ID, &user.Username, &user.Password, &user.Avatar, &user.CreatedAt); err != nil {
		return nil, err
	}
	return user, nil
}

// Session queries

// CreateSession stores a bearer token for a user
func CreateSession(sessionID string, userID int64, expiresAt time.Time) error {
	_, err := DB.Exec(
		"INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		sessionID, userID, now(), expiresAt.UTC(),
	)
	return err
}

// GetSession retrieves an unexpired session
func GetSession(sessionID string) (*models.Session, error) {
	session := &models.Session{}
	err := DB.QueryRow(
		"SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = ? AND expires_at > ?",
		sessionID, now(),
	).Scan(&session.ID, &session.UserID, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteSession removes a session
func DeleteSession(sessionID string) error {
	_, err := DB.Exec("DELETE FROM sessions WHERE id = ?", sessionID)
	return err
}

// Conversation queries

// GetOrCreateConversation returns the id of the conversation between two
// users, creating it on first contact
func GetOrCreateConversation(userID, otherUserID int64) (int64, error) {
	a, b := userID, otherUserID
	if a > b {
		a, b = b, a
	}
	if _, err := DB.Exec(
		"INSERT OR IGNORE INTO conversations (user_a, user_b, created_at) VALUES (?, ?, ?)",
		a, b, now(),
	); err != nil {
		return 0, err
	}

	var id int64
	err := DB.QueryRow("SELECT id FROM conversations WHERE user_a = ? AND user_b = ?", a, b).Scan(&id)
	return id, err
}

// ConversationPeer returns the other participant of a conversation
func ConversationPeer(conversationID, userID int64) (int64, error) {
	var a, b int64
	err := DB.QueryRow("SELECT user_a, user_b FROM conversations WHERE id = ?", conversationID).Scan(&a, &b)
	if err != nil {
		return 0, err
	}
	switch userID {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return 0, ErrNotParticipant
}

// GetConversation builds the summary of one conversation as userID sees it
func GetConversation(conversationID, userID int64) (models.Conversation, error) {
	peerID, err := ConversationPeer(conversationID, userID)
	if err != nil {
		return models.Conversation{}, err
	}
	peer, err := GetUserByID(peerID)
	if err != nil {
		return models.Conversation{}, err
	}

	conv := models.Conversation{ID: conversationID, OtherUser: peer.ToSummary()}

	last, err := scanMessage(DB.QueryRow(
		"SELECT "+messageColumns+" FROM messages WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT 1",
		conversationID,
	))
	switch {
	case err == nil:
		conv.LastMessage = last
		at := last.CreatedAt
		conv.LastMessageAt = &at
	case !errors.Is(err, sql.ErrNoRows):
		return models.Conversation{}, err
	}

	err = DB.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND sender_id != ? AND read_at IS NULL AND is_deleted = 0",
		conversationID, userID,
	).Scan(&conv.UnreadCount)
	if err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// GetConversations returns all conversations for a user
func GetConversations(userID int64) ([]models.Conversation, error) {
	rows, err := DB.Query("SELECT id FROM conversations WHERE user_a = ? OR user_b = ?", userID, userID)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	conversations := make([]models.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := GetConversation(id, userID)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

// Message queries

const messageColumns = "id, conversation_id, sender_id, content, image_url, created_at, read_at, updated_at, is_edited, is_deleted"

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*models.Message, error) {
	var (
		m         models.Message
		imageURL  sql.NullString
		readAt    sql.NullTime
		updatedAt sql.NullTime
	)
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &imageURL,
		&m.CreatedAt, &readAt, &updatedAt, &m.IsEdited, &m.IsDeleted)
	if err != nil {
		return nil, err
	}
	if imageURL.Valid {
		m.ImageURL = &imageURL.String
	}
	if readAt.Valid {
		m.IsRead = true
		m.ReadAt = &readAt.Time
	}
	if updatedAt.Valid {
		m.UpdatedAt = &updatedAt.Time
	}
	return &m, nil
}

// CreateMessage inserts a new message into a conversation
func CreateMessage(conversationID, senderID int64, content string, imageURL *string) (*models.Message, error) {
	result, err := DB.Exec(
		"INSERT INTO messages (conversation_id, sender_id, content, image_url, created_at) VALUES (?, ?, ?, ?, ?)",
		conversationID, senderID, content, imageURL, now(),
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return GetMessageByID(id)
}

// GetMessageByID retrieves a message by ID
func GetMessageByID(id int64) (*models.Message, error) {
	return scanMessage(DB.QueryRow("SELECT "+messageColumns+" FROM messages WHERE id = ?", id))
}

// GetMessages returns one page of a conversation, oldest first. offset counts
// back from the newest message.
func GetMessages(conversationID int64, limit, offset int) ([]models.Message, bool, error) {
	rows, err := DB.Query(
		"SELECT "+messageColumns+" FROM messages WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		conversationID, limit+1, offset,
	)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, false, err
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, hasMore, nil
}

// MarkMessageRead sets read_at once; it reports whether the message changed
func MarkMessageRead(id int64, at time.Time) (bool, error) {
	result, err := DB.Exec("UPDATE messages SET read_at = ? WHERE id = ? AND read_at IS NULL", at.UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// EditMessage replaces the content of a message that is not deleted
func EditMessage(id int64, content string, at time.Time) error {
	_, err := DB.Exec(
		"UPDATE messages SET content = ?, is_edited = 1, updated_at = ? WHERE id = ? AND is_deleted = 0",
		content, at.UTC(), id,
	)
	return err
}

// SoftDeleteMessage tombstones a message, keeping its row and position
func SoftDeleteMessage(id int64, at time.Time) error {
	_, err := DB.Exec(
		"UPDATE messages SET content = ?, image_url = NULL, is_deleted = 1, updated_at = ? WHERE id = ?",
		models.Tombstone, at.UTC(), id,
	)
	return err
}

func now() time.Time {
	return time.Now().UTC()
}
