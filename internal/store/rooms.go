package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// InsertRoom creates an empty room. Returns ErrConflict if the code is taken.
func (p *Postgres) InsertRoom(ctx context.Context, code string, createdAt, expiresAt time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO rooms (code, created_at, expires_at)
		VALUES ($1, $2, $3)
	`, code, createdAt, expiresAt)
	if isPgErr(err, "23505") { // unique_violation
		return ErrConflict
	}
	return err
}

// FindRoomByCode returns a room with its full transcript in append order.
func (p *Postgres) FindRoomByCode(ctx context.Context, code string) (Room, error) {
	var rm Room
	err := p.pool.QueryRow(ctx, `
		SELECT code, created_at, expires_at FROM rooms WHERE code = $1
	`, code).Scan(&rm.Code, &rm.CreatedAt, &rm.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, sender, content, encrypted,
		       COALESCE(media_url, ''), COALESCE(media_type, ''),
		       reactions, replies, created_at
		FROM messages
		WHERE room_code = $1
		ORDER BY seq
	`, code)
	if err != nil {
		return Room{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var m Message
		var reactions, replies []byte
		if err := rows.Scan(&m.ID, &m.Sender, &m.Content, &m.Encrypted,
			&m.MediaURL, &m.MediaType, &reactions, &replies, &m.CreatedAt); err != nil {
			return Room{}, err
		}
		if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
			return Room{}, err
		}
		if err := json.Unmarshal(replies, &m.Replies); err != nil {
			return Room{}, err
		}
		rm.Messages = append(rm.Messages, m)
	}
	return rm, rows.Err()
}

// AppendMessage adds a message to a room's transcript.
// Returns ErrNotFound if the room does not exist.
func (p *Postgres) AppendMessage(ctx context.Context, code string, m Message) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO messages (id, room_code, sender, content, encrypted, media_url, media_type, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
	`, m.ID, code, m.Sender, m.Content, m.Encrypted, m.MediaURL, m.MediaType, m.CreatedAt)
	if isPgErr(err, "23503") { // foreign_key_violation, room gone
		return ErrNotFound
	}
	return err
}

// UpdateReaction upserts userID under emoji on a message. Idempotent per
// user per emoji. Returns ErrNotFound if the message is not in the room.
func (p *Postgres) UpdateReaction(ctx context.Context, code, messageID, emoji, userID string) error {
	return p.patchMessage(ctx, code, messageID, func(m *rowPatch) error {
		users := m.Reactions[emoji]
		for _, u := range users {
			if u == userID {
				return nil
			}
		}
		m.Reactions[emoji] = append(users, userID)
		return nil
	})
}

// AppendReply appends a reply record to a message.
// Returns ErrNotFound if the message is not in the room.
func (p *Postgres) AppendReply(ctx context.Context, code, messageID string, r Reply) error {
	return p.patchMessage(ctx, code, messageID, func(m *rowPatch) error {
		m.Replies = append(m.Replies, r)
		return nil
	})
}

type rowPatch struct {
	Reactions map[string][]string
	Replies   []Reply
}

// patchMessage applies fn to a message's reactions/replies inside a
// row-locked transaction so concurrent reacts don't clobber each other.
func (p *Postgres) patchMessage(ctx context.Context, code, messageID string, fn func(*rowPatch) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var reactions, replies []byte
	err = tx.QueryRow(ctx, `
		SELECT reactions, replies FROM messages
		WHERE room_code = $1 AND id = $2
		FOR UPDATE
	`, code, messageID).Scan(&reactions, &replies)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var patch rowPatch
	if err := json.Unmarshal(reactions, &patch.Reactions); err != nil {
		return err
	}
	if err := json.Unmarshal(replies, &patch.Replies); err != nil {
		return err
	}
	if patch.Reactions == nil {
		patch.Reactions = map[string][]string{}
	}
	if err := fn(&patch); err != nil {
		return err
	}

	nr, err := json.Marshal(patch.Reactions)
	if err != nil {
		return err
	}
	np, err := json.Marshal(patch.Replies)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE messages SET reactions = $3, replies = $4
		WHERE room_code = $1 AND id = $2
	`, code, messageID, nr, np); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteExpired removes every room whose expiry has passed and returns
// their codes. Messages go with them via ON DELETE CASCADE.
func (p *Postgres) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		DELETE FROM rooms WHERE expires_at <= $1 RETURNING code
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// ExtendRoom pushes a room's expiry out. Returns ErrNotFound for unknown codes.
func (p *Postgres) ExtendRoom(ctx context.Context, code string, newExpiresAt time.Time) error {
	ct, err := p.pool.Exec(ctx, `
		UPDATE rooms SET expires_at = $2 WHERE code = $1
	`, code, newExpiresAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRoom removes a room and its transcript.
func (p *Postgres) DeleteRoom(ctx context.Context, code string) error {
	ct, err := p.pool.Exec(ctx, `DELETE FROM rooms WHERE code = $1`, code)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isPgErr(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
