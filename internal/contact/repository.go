package contact

import (
	"context"
	"database/sql"
	"time"

	"go-messenger/internal/db"
	"go-messenger/internal/media"
)

const (
	contactNotFound = "chat not found"
	messageNotFound = "message not found"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const messageColumns = "id, chat_id, sender_id, content, is_edited, created_at"

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	m := &Message{}
	err := row.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.IsEdited, &m.CreatedAt)
	return m, err
}

func insertMessage(ctx context.Context, q db.Querier, m *Message) (*Message, error) {
	query := "INSERT INTO chat_contents (chat_id, sender_id, content) VALUES ($1, $2, $3) RETURNING " + messageColumns
	created, err := scanMessage(q.QueryRowContext(ctx, query, m.ChatID, m.SenderID, m.Content))
	if err != nil {
		return nil, db.Err("insert chat message", err, contactNotFound)
	}
	created.Attachments, err = media.Insert(ctx, q, media.OwnerChat, created.ID, m.Attachments)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Create stores a new contact and its opening message together.
func (r *Repository) Create(ctx context.Context, c *Contact, first *Message) (*Contact, *Message, error) {
	var created *Contact
	var msg *Message
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		created = &Contact{}
		query := `
			INSERT INTO contacts (first_person_id, second_person_id) VALUES ($1, $2)
			RETURNING id, first_person_id, second_person_id, created_at
		`
		err := tx.QueryRowContext(ctx, query, c.FirstPersonID, c.SecondPersonID).
			Scan(&created.ID, &created.FirstPersonID, &created.SecondPersonID, &created.CreatedAt)
		if err != nil {
			return db.Err("create contact", err, contactNotFound)
		}

		first.ChatID = created.ID
		msg, err = insertMessage(ctx, tx, first)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return created, msg, nil
}

func (r *Repository) Contact(ctx context.Context, id int64) (*Contact, error) {
	c := &Contact{}
	query := "SELECT id, first_person_id, second_person_id, created_at FROM contacts WHERE id = $1"
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.FirstPersonID, &c.SecondPersonID, &c.CreatedAt)
	if err != nil {
		return nil, db.Err("get contact", err, contactNotFound)
	}
	return c, nil
}

func (r *Repository) CreateMessage(ctx context.Context, m *Message) (*Message, error) {
	var created *Message
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		created, err = insertMessage(ctx, tx, m)
		return err
	})
	return created, err
}

func (r *Repository) Message(ctx context.Context, chatID, id int64) (*Message, error) {
	query := "SELECT " + messageColumns + " FROM chat_contents WHERE id = $1 AND chat_id = $2"
	m, err := scanMessage(r.db.QueryRowContext(ctx, query, id, chatID))
	if err != nil {
		return nil, db.Err("get chat message", err, messageNotFound)
	}
	atts, err := media.Load(ctx, r.db, media.OwnerChat, []int64{m.ID})
	if err != nil {
		return nil, err
	}
	m.Attachments = atts[m.ID]
	return m, nil
}

// UpdateMessage saves m's content and marks it edited. With replaceMedia it
// also swaps the attachments for m.Attachments and returns the old ones.
func (r *Repository) UpdateMessage(ctx context.Context, m *Message, replaceMedia bool) ([]media.Attachment, error) {
	var old []media.Attachment
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := "UPDATE chat_contents SET content = $2, is_edited = true WHERE id = $1 RETURNING " + messageColumns
		updated, err := scanMessage(tx.QueryRowContext(ctx, query, m.ID, m.Content))
		if err != nil {
			return db.Err("update chat message", err, messageNotFound)
		}
		attachments := m.Attachments
		*m = *updated

		if !replaceMedia {
			atts, err := media.Load(ctx, tx, media.OwnerChat, []int64{m.ID})
			m.Attachments = atts[m.ID]
			return err
		}
		if old, err = media.Delete(ctx, tx, media.OwnerChat, []int64{m.ID}); err != nil {
			return err
		}
		m.Attachments, err = media.Insert(ctx, tx, media.OwnerChat, m.ID, attachments)
		return err
	})
	return old, err
}

func (r *Repository) DeleteMessage(ctx context.Context, chatID, id int64) ([]media.Attachment, error) {
	var removed []media.Attachment
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM chat_contents WHERE id = $1 AND chat_id = $2", id, chatID)
		if err != nil {
			return db.Err("delete chat message", err, messageNotFound)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return db.Err("delete chat message", sql.ErrNoRows, messageNotFound)
		}
		removed, err = media.Delete(ctx, tx, media.OwnerChat, []int64{id})
		return err
	})
	return removed, err
}

// DeleteSenderMessages removes everything senderID wrote in the chat and
// reports how many messages remain from the other participant.
func (r *Repository) DeleteSenderMessages(ctx context.Context, chatID, senderID int64) ([]media.Attachment, int, error) {
	var removed []media.Attachment
	var remaining int
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		removed, err = media.DeleteWhere(ctx, tx, media.OwnerChat,
			"SELECT id FROM chat_contents WHERE chat_id = $2 AND sender_id = $3", chatID, senderID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM chat_contents WHERE chat_id = $1 AND sender_id = $2", chatID, senderID); err != nil {
			return db.Err("delete sender messages", err, contactNotFound)
		}
		err = tx.QueryRowContext(ctx, "SELECT count(*) FROM chat_contents WHERE chat_id = $1", chatID).Scan(&remaining)
		return db.Err("count chat messages", err, contactNotFound)
	})
	return removed, remaining, err
}

// Delete removes the contact and, through the foreign key, its messages.
func (r *Repository) Delete(ctx context.Context, chatID int64) ([]media.Attachment, error) {
	var removed []media.Attachment
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		removed, err = media.DeleteWhere(ctx, tx, media.OwnerChat, "SELECT id FROM chat_contents WHERE chat_id = $2", chatID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM contacts WHERE id = $1", chatID)
		if err != nil {
			return db.Err("delete contact", err, contactNotFound)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return db.Err("delete contact", sql.ErrNoRows, contactNotFound)
		}
		return nil
	})
	return removed, err
}

// Messages returns up to limit messages older than before, oldest first.
func (r *Repository) Messages(ctx context.Context, chatID int64, before time.Time, limit int) ([]Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM chat_contents
		WHERE chat_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	cursor := sql.NullTime{Time: before, Valid: !before.IsZero()}
	msgs, err := r.list(ctx, query, chatID, cursor, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Search returns messages containing q, newest first.
func (r *Repository) Search(ctx context.Context, chatID int64, q string, limit int) ([]Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM chat_contents
		WHERE chat_id = $1 AND content ILIKE $2 ESCAPE '\'
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	return r.list(ctx, query, chatID, db.Contains(q), limit)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.Err("list chat messages", err, contactNotFound)
	}
	defer rows.Close()

	msgs := []Message{}
	ids := []int64{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, db.Err("scan chat message", err, contactNotFound)
		}
		msgs = append(msgs, *m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Err("list chat messages", err, contactNotFound)
	}

	atts, err := media.Load(ctx, r.db, media.OwnerChat, ids)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].Attachments = atts[msgs[i].ID]
	}
	return msgs, nil
}
