package group

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go-messenger/internal/db"
	"go-messenger/internal/media"
)

const (
	groupNotFound   = "group not found"
	messageNotFound = "message not found"
	userNotFound    = "user not found"
	notMember       = "user is not a member of this group"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const (
	groupColumns   = "id, group_name, description, profile_url, admin_id, created_at"
	messageColumns = "id, group_id, sender_id, content, is_edited, created_at"
)

type scanner interface{ Scan(...any) error }

func scanGroup(row scanner) (*Group, error) {
	g := &Group{}
	err := row.Scan(&g.ID, &g.GroupName, &g.Description, &g.ProfileURL, &g.AdminID, &g.CreatedAt)
	return g, err
}

func scanMessage(row scanner) (*Message, error) {
	m := &Message{}
	var sender sql.NullInt64
	if err := row.Scan(&m.ID, &m.GroupID, &sender, &m.Content, &m.IsEdited, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.SenderID = sender.Int64
	return m, nil
}

// Create stores the group and makes its admin the first member.
func (r *Repository) Create(ctx context.Context, g *Group) (*Group, error) {
	var created *Group
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO chat_groups (group_name, description, profile_url, admin_id)
			VALUES ($1, $2, $3, $4)
			RETURNING ` + groupColumns
		var err error
		created, err = scanGroup(tx.QueryRowContext(ctx, query, g.GroupName, g.Description, g.ProfileURL, g.AdminID))
		if err != nil {
			return db.Err("create group", err, userNotFound)
		}
		_, err = tx.ExecContext(ctx, "INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)", created.ID, created.AdminID)
		return db.Err("add group admin", err, userNotFound)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *Repository) Group(ctx context.Context, id int64) (*Group, error) {
	g, err := scanGroup(r.db.QueryRowContext(ctx, "SELECT "+groupColumns+" FROM chat_groups WHERE id = $1", id))
	if err != nil {
		return nil, db.Err("get group", err, groupNotFound)
	}
	return g, nil
}

func (r *Repository) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var ok bool
	query := "SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)"
	if err := r.db.QueryRowContext(ctx, query, groupID, userID).Scan(&ok); err != nil {
		return false, db.Err("check group member", err, groupNotFound)
	}
	return ok, nil
}

func (r *Repository) Members(ctx context.Context, groupID int64) ([]Member, error) {
	query := `
		SELECT u.id, u.username, u.profile_url, gm.joined_at
		FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY gm.joined_at, u.id
	`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, db.Err("list group members", err, groupNotFound)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Username, &m.ProfileURL, &m.JoinedAt); err != nil {
			return nil, db.Err("scan group member", err, groupNotFound)
		}
		members = append(members, m)
	}
	return members, db.Err("list group members", rows.Err(), groupNotFound)
}

// AddMembers inserts the users that are not members yet and returns them.
func (r *Repository) AddMembers(ctx context.Context, groupID int64, userIDs []int64) ([]int64, error) {
	added := []int64{}
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
			RETURNING user_id
		`
		for _, id := range userIDs {
			var userID int64
			err := tx.QueryRowContext(ctx, query, groupID, id).Scan(&userID)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return db.Err("add group member", err, userNotFound)
			}
			added = append(added, userID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveMembers deletes the listed memberships and returns the users that
// actually were members.
func (r *Repository) RemoveMembers(ctx context.Context, groupID int64, userIDs []int64) ([]int64, error) {
	query := "DELETE FROM group_members WHERE group_id = $1 AND user_id = ANY($2) RETURNING user_id"
	rows, err := r.db.QueryContext(ctx, query, groupID, userIDs)
	if err != nil {
		return nil, db.Err("remove group members", err, groupNotFound)
	}
	defer rows.Close()

	removed := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, db.Err("scan removed member", err, groupNotFound)
		}
		removed = append(removed, id)
	}
	return removed, db.Err("remove group members", rows.Err(), groupNotFound)
}

// Leave drops the membership and detaches the user's messages from them.
// The messages stay in the group.
func (r *Repository) Leave(ctx context.Context, groupID, userID int64) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM group_members WHERE group_id = $1 AND user_id = $2", groupID, userID)
		if err != nil {
			return db.Err("leave group", err, notMember)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return db.Err("leave group", sql.ErrNoRows, notMember)
		}
		_, err = tx.ExecContext(ctx, "UPDATE group_messages SET sender_id = NULL WHERE group_id = $1 AND sender_id = $2", groupID, userID)
		return db.Err("detach group messages", err, groupNotFound)
	})
}

// Delete removes the group; members and messages go with it through the
// foreign keys.
func (r *Repository) Delete(ctx context.Context, groupID int64) ([]media.Attachment, error) {
	var removed []media.Attachment
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		removed, err = media.DeleteWhere(ctx, tx, media.OwnerGroup, "SELECT id FROM group_messages WHERE group_id = $2", groupID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM chat_groups WHERE id = $1", groupID)
		if err != nil {
			return db.Err("delete group", err, groupNotFound)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return db.Err("delete group", sql.ErrNoRows, groupNotFound)
		}
		return nil
	})
	return removed, err
}

func (r *Repository) CreateMessage(ctx context.Context, m *Message) (*Message, error) {
	var created *Message
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := "INSERT INTO group_messages (group_id, sender_id, content) VALUES ($1, $2, $3) RETURNING " + messageColumns
		var err error
		created, err = scanMessage(tx.QueryRowContext(ctx, query, m.GroupID, m.SenderID, m.Content))
		if err != nil {
			return db.Err("insert group message", err, groupNotFound)
		}
		created.Attachments, err = media.Insert(ctx, tx, media.OwnerGroup, created.ID, m.Attachments)
		return err
	})
	return created, err
}

func (r *Repository) Message(ctx context.Context, groupID, id int64) (*Message, error) {
	query := "SELECT " + messageColumns + " FROM group_messages WHERE id = $1 AND group_id = $2"
	m, err := scanMessage(r.db.QueryRowContext(ctx, query, id, groupID))
	if err != nil {
		return nil, db.Err("get group message", err, messageNotFound)
	}
	atts, err := media.Load(ctx, r.db, media.OwnerGroup, []int64{m.ID})
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
		query := "UPDATE group_messages SET content = $2, is_edited = true WHERE id = $1 RETURNING " + messageColumns
		updated, err := scanMessage(tx.QueryRowContext(ctx, query, m.ID, m.Content))
		if err != nil {
			return db.Err("update group message", err, messageNotFound)
		}
		attachments := m.Attachments
		*m = *updated

		if !replaceMedia {
			atts, err := media.Load(ctx, tx, media.OwnerGroup, []int64{m.ID})
			m.Attachments = atts[m.ID]
			return err
		}
		if old, err = media.Delete(ctx, tx, media.OwnerGroup, []int64{m.ID}); err != nil {
			return err
		}
		m.Attachments, err = media.Insert(ctx, tx, media.OwnerGroup, m.ID, attachments)
		return err
	})
	return old, err
}

// DeleteMessages removes the listed messages of the group and returns the
// ids that existed together with their attachments.
func (r *Repository) DeleteMessages(ctx context.Context, groupID int64, ids []int64) ([]int64, []media.Attachment, error) {
	deleted := []int64{}
	var removed []media.Attachment
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "DELETE FROM group_messages WHERE group_id = $1 AND id = ANY($2) RETURNING id", groupID, ids)
		if err != nil {
			return db.Err("delete group messages", err, messageNotFound)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return db.Err("scan deleted message", err, messageNotFound)
			}
			deleted = append(deleted, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return db.Err("delete group messages", err, messageNotFound)
		}
		removed, err = media.Delete(ctx, tx, media.OwnerGroup, deleted)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return deleted, removed, nil
}

// Messages returns up to limit messages older than before, oldest first.
func (r *Repository) Messages(ctx context.Context, groupID int64, before time.Time, limit int) ([]Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM group_messages
		WHERE group_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	cursor := sql.NullTime{Time: before, Valid: !before.IsZero()}
	msgs, err := r.list(ctx, query, groupID, cursor, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Search returns messages containing q, newest first.
func (r *Repository) Search(ctx context.Context, groupID int64, q string, limit int) ([]Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM group_messages
		WHERE group_id = $1 AND content ILIKE $2 ESCAPE '\'
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	return r.list(ctx, query, groupID, db.Contains(q), limit)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.Err("list group messages", err, groupNotFound)
	}
	defer rows.Close()

	msgs := []Message{}
	ids := []int64{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, db.Err("scan group message", err, groupNotFound)
		}
		msgs = append(msgs, *m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Err("list group messages", err, groupNotFound)
	}

	atts, err := media.Load(ctx, r.db, media.OwnerGroup, ids)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].Attachments = atts[msgs[i].ID]
	}
	return msgs, nil
}
