package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/ponyo877/chatroom/server/domain"
	"github.com/ponyo877/chatroom/server/usecase"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE COLLATE NOCASE,
	status     TEXT NOT NULL,
	last_seen  TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS room_participants (
	room_id   TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	joined_at TIMESTAMP NOT NULL,
	PRIMARY KEY (room_id, user_id)
);
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	author_id  TEXT NOT NULL,
	content    TEXT NOT NULL,
	reply_to   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	edited_at  TIMESTAMP,
	deleted_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages (room_id, created_at);
`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Init creates the tables if they do not exist yet.
func (r *Repository) Init() error {
	if _, err := r.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (r *Repository) GetUser(id string) (domain.User, error) {
	query := "SELECT id, name, status, last_seen, created_at FROM users WHERE id = ?"
	return r.scanUser(r.db.QueryRow(query, id))
}

func (r *Repository) GetUserByName(name string) (domain.User, error) {
	query := "SELECT id, name, status, last_seen, created_at FROM users WHERE name = ? COLLATE NOCASE"
	return r.scanUser(r.db.QueryRow(query, name))
}

func (r *Repository) scanUser(row *sql.Row) (domain.User, error) {
	var user domain.User
	var status string
	if err := row.Scan(&user.ID, &user.Name, &status, &user.LastSeen, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, usecase.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("error querying user: %w", err)
	}
	user.Status = domain.UserStatus(status)
	return user, nil
}

func (r *Repository) CreateUser(user domain.User) error {
	query := "INSERT INTO users (id, name, status, last_seen, created_at) VALUES (?, ?, ?, ?, ?)"
	if _, err := r.db.Exec(query, user.ID, user.Name, string(user.Status), user.LastSeen, user.CreatedAt); err != nil {
		return constraintErr(err, fmt.Sprintf("failed to insert user '%s'", user.Name))
	}
	return nil
}

func (r *Repository) UpdateUserStatus(id string, status domain.UserStatus, lastSeen time.Time) error {
	query := "UPDATE users SET status = ?, last_seen = ? WHERE id = ?"
	res, err := r.db.Exec(query, string(status), lastSeen, id)
	if err != nil {
		return fmt.Errorf("failed to update status of user %s: %w", id, err)
	}
	return notFoundIfZero(res)
}

func (r *Repository) GetRoom(id string) (domain.Room, error) {
	query := "SELECT id, name, created_at FROM rooms WHERE id = ?"
	var room domain.Room
	if err := r.db.QueryRow(query, id).Scan(&room.ID, &room.Name, &room.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Room{}, usecase.ErrNotFound
		}
		return domain.Room{}, fmt.Errorf("error querying room: %w", err)
	}
	return room, nil
}

func (r *Repository) CreateRoom(room domain.Room) error {
	query := "INSERT INTO rooms (id, name, created_at) VALUES (?, ?, ?)"
	if _, err := r.db.Exec(query, room.ID, room.Name, room.CreatedAt); err != nil {
		return constraintErr(err, fmt.Sprintf("failed to insert room '%s'", room.Name))
	}
	return nil
}

func (r *Repository) DeleteRoom(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	res, err := tx.Exec("DELETE FROM rooms WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete room %s: %w", id, err)
	}
	if err := notFoundIfZero(res); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM room_participants WHERE room_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete participants of room %s: %w", id, err)
	}
	if _, err := tx.Exec("DELETE FROM messages WHERE room_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete messages of room %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) ListRooms() ([]domain.RoomInfo, error) {
	query := `
		SELECT r.id, r.name, r.created_at,
			(SELECT COUNT(*) FROM room_participants p JOIN users u ON u.id = p.user_id
				WHERE p.room_id = r.id AND u.status != 'offline'),
			(SELECT COUNT(*) FROM messages m WHERE m.room_id = r.id AND m.deleted_at IS NULL)
		FROM rooms r ORDER BY r.created_at
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer rows.Close()

	infos := []domain.RoomInfo{}
	for rows.Next() {
		var info domain.RoomInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.CreatedAt, &info.OnlineCount, &info.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan room info: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rooms: %w", err)
	}
	return infos, nil
}

func (r *Repository) AddParticipant(roomID, userID string) error {
	query := "INSERT INTO room_participants (room_id, user_id, joined_at) VALUES (?, ?, ?)"
	if _, err := r.db.Exec(query, roomID, userID, time.Now()); err != nil {
		return constraintErr(err, fmt.Sprintf("failed to add participant %s to room %s", userID, roomID))
	}
	return nil
}

func (r *Repository) RemoveParticipant(roomID, userID string) error {
	query := "DELETE FROM room_participants WHERE room_id = ? AND user_id = ?"
	res, err := r.db.Exec(query, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove participant %s from room %s: %w", userID, roomID, err)
	}
	return notFoundIfZero(res)
}

func (r *Repository) ListParticipants(roomID string) ([]domain.User, error) {
	query := `
		SELECT u.id, u.name, u.status, u.last_seen, u.created_at
		FROM room_participants p JOIN users u ON u.id = p.user_id
		WHERE p.room_id = ? ORDER BY p.joined_at
	`
	rows, err := r.db.Query(query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants of room %s: %w", roomID, err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		var user domain.User
		var status string
		if err := rows.Scan(&user.ID, &user.Name, &status, &user.LastSeen, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		user.Status = domain.UserStatus(status)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over participants of room %s: %w", roomID, err)
	}
	return users, nil
}

func (r *Repository) ListUserRooms(userID string) ([]string, error) {
	query := "SELECT room_id FROM room_participants WHERE user_id = ?"
	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms of user %s: %w", userID, err)
	}
	defer rows.Close()

	roomIDs := []string{}
	for rows.Next() {
		var roomID string
		if err := rows.Scan(&roomID); err != nil {
			return nil, fmt.Errorf("failed to scan room id: %w", err)
		}
		roomIDs = append(roomIDs, roomID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rooms of user %s: %w", userID, err)
	}
	return roomIDs, nil
}

func (r *Repository) CreateMessage(message domain.Message) error {
	query := "INSERT INTO messages (id, room_id, author_id, content, reply_to, created_at) VALUES (?, ?, ?, ?, ?, ?)"
	if _, err := r.db.Exec(query, message.ID, message.RoomID, message.AuthorID, message.Content, message.ReplyTo, message.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert message for room %s: %w", message.RoomID, err)
	}
	return nil
}

const messageColumns = `
	m.id, m.room_id, m.author_id, u.name, m.content, m.reply_to,
	m.created_at, m.edited_at, m.deleted_at
`

func (r *Repository) GetMessage(id string) (domain.Message, error) {
	query := "SELECT " + messageColumns + " FROM messages m JOIN users u ON u.id = m.author_id WHERE m.id = ?"
	msg, err := scanMessage(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Message{}, usecase.ErrNotFound
		}
		return domain.Message{}, fmt.Errorf("error querying message: %w", err)
	}
	return msg, nil
}

func (r *Repository) UpdateMessageContent(id, content string, editedAt time.Time) error {
	query := "UPDATE messages SET content = ?, edited_at = ? WHERE id = ? AND deleted_at IS NULL"
	res, err := r.db.Exec(query, content, editedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update message %s: %w", id, err)
	}
	return notFoundIfZero(res)
}

func (r *Repository) SoftDeleteMessage(id string, deletedAt time.Time) error {
	query := "UPDATE messages SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL"
	res, err := r.db.Exec(query, deletedAt, id)
	if err != nil {
		return fmt.Errorf("failed to delete message %s: %w", id, err)
	}
	return notFoundIfZero(res)
}

func (r *Repository) ListMessages(roomID string, limit int, before time.Time) ([]domain.Message, bool, error) {
	query := "SELECT " + messageColumns + ` FROM messages m JOIN users u ON u.id = m.author_id
		WHERE m.room_id = ? ORDER BY m.created_at DESC, m.id DESC LIMIT ?`
	args := []any{roomID, limit + 1}
	if !before.IsZero() {
		query = "SELECT " + messageColumns + ` FROM messages m JOIN users u ON u.id = m.author_id
			WHERE m.room_id = ? AND m.created_at < ? ORDER BY m.created_at DESC, m.id DESC LIMIT ?`
		args = []any{roomID, before, limit + 1}
	}
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query messages for room %s: %w", roomID, err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, false, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("error iterating over messages for room %s: %w", roomID, err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}
	// newest-first from the query, chronological toward the caller
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, hasMore, nil
}

// SearchMessages relies on the regexp function registered on the sqlite
// connection at startup.
func (r *Repository) SearchMessages(roomID, pattern string) ([]domain.Message, error) {
	query := "SELECT " + messageColumns + ` FROM messages m JOIN users u ON u.id = m.author_id
		WHERE m.room_id = ? AND m.deleted_at IS NULL AND m.content REGEXP ? ORDER BY m.created_at`
	rows, err := r.db.Query(query, roomID, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search in room %s for pattern '%s': %w", roomID, pattern, err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over search results for room %s: %w", roomID, err)
	}
	return messages, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (domain.Message, error) {
	var msg domain.Message
	var editedAt, deletedAt sql.NullTime
	if err := row.Scan(&msg.ID, &msg.RoomID, &msg.AuthorID, &msg.AuthorName, &msg.Content,
		&msg.ReplyTo, &msg.CreatedAt, &editedAt, &deletedAt); err != nil {
		return domain.Message{}, err
	}
	if editedAt.Valid {
		msg.EditedAt = editedAt.Time
	}
	msg.Deleted = deletedAt.Valid
	return msg, nil
}

func notFoundIfZero(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return usecase.ErrNotFound
	}
	return nil
}

func constraintErr(err error, context string) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		return usecase.ErrAlreadyExists
	}
	return fmt.Errorf("%s: %w", context, err)
}
