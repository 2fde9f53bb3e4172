package channel

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go-messenger/internal/db"
	"go-messenger/internal/media"
)

const (
	channelNotFound = "channel not found"
	contentNotFound = "content not found"
	userNotFound    = "user not found"
	notFollowing    = "you do not follow this channel"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const (
	channelColumns = "id, channel_name, description, profile_url, super_admin_id, created_at"
	contentColumns = "id, channel_id, sender_id, content, is_edited, created_at"
)

type scanner interface{ Scan(...any) error }

func scanChannel(row scanner) (*Channel, error) {
	c := &Channel{}
	err := row.Scan(&c.ID, &c.ChannelName, &c.Description, &c.ProfileURL, &c.SuperAdminID, &c.CreatedAt)
	return c, err
}

func scanContent(row scanner) (*Content, error) {
	c := &Content{}
	var sender sql.NullInt64
	if err := row.Scan(&c.ID, &c.ChannelID, &sender, &c.Content, &c.IsEdited, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.SenderID = sender.Int64
	return c, nil
}

func (r *Repository) Create(ctx context.Context, c *Channel) (*Channel, error) {
	query := `
		INSERT INTO channels (channel_name, description, profile_url, super_admin_id)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + channelColumns
	created, err := scanChannel(r.db.QueryRowContext(ctx, query, c.ChannelName, c.Description, c.ProfileURL, c.SuperAdminID))
	if err != nil {
		return nil, db.Err("create channel", err, userNotFound)
	}
	return created, nil
}

func (r *Repository) Channel(ctx context.Context, id int64) (*Channel, error) {
	c, err := scanChannel(r.db.QueryRowContext(ctx, "SELECT "+channelColumns+" FROM channels WHERE id = $1", id))
	if err != nil {
		return nil, db.Err("get channel", err, channelNotFound)
	}
	return c, nil
}

func (r *Repository) Update(ctx context.Context, c *Channel) (*Channel, error) {
	query := `
		UPDATE channels SET channel_name = $2, description = $3, profile_url = $4
		WHERE id = $1
		RETURNING ` + channelColumns
	updated, err := scanChannel(r.db.QueryRowContext(ctx, query, c.ID, c.ChannelName, c.Description, c.ProfileURL))
	if err != nil {
		return nil, db.Err("update channel", err, channelNotFound)
	}
	return updated, nil
}

// Delete removes the channel; admins, followers and contents go with it
// through the foreign keys.
func (r *Repository) Delete(ctx context.Context, id int64) ([]media.Attachment, error) {
	var removed []media.Attachment
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		removed, err = media.DeleteWhere(ctx, tx, media.OwnerChannel, "SELECT id FROM channel_contents WHERE channel_id = $2", id)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM channels WHERE id = $1", id)
		if err != nil {
			return db.Err("delete channel", err, channelNotFound)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return db.Err("delete channel", sql.ErrNoRows, channelNotFound)
		}
		return nil
	})
	return removed, err
}

// IsAdmin reports whether userID is the super admin or an admin.
func (r *Repository) IsAdmin(ctx context.Context, channelID, userID int64) (bool, error) {
	query := `
		SELECT EXISTS (SELECT 1 FROM channels WHERE id = $1 AND super_admin_id = $2)
			OR EXISTS (SELECT 1 FROM channel_admins WHERE channel_id = $1 AND user_id = $2)
	`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, channelID, userID).Scan(&ok); err != nil {
		return false, db.Err("check channel admin", err, channelNotFound)
	}
	return ok, nil
}

func (r *Repository) IsFollower(ctx context.Context, channelID, userID int64) (bool, error) {
	query := "SELECT EXISTS (SELECT 1 FROM channel_follows WHERE channel_id = $1 AND user_id = $2)"
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, channelID, userID).Scan(&ok); err != nil {
		return false, db.Err("check channel follower", err, channelNotFound)
	}
	return ok, nil
}

// AddAdmins grants admin rights to the users that do not have them yet and
// returns those users.
func (r *Repository) AddAdmins(ctx context.Context, channelID int64, userIDs []int64) ([]int64, error) {
	added := []int64{}
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO channel_admins (channel_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
			RETURNING user_id
		`
		for _, id := range userIDs {
			var userID int64
			err := tx.QueryRowContext(ctx, query, channelID, id).Scan(&userID)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return db.Err("add channel admin", err, userNotFound)
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

func (r *Repository) people(ctx context.Context, op, query string, channelID int64) ([]Person, error) {
	rows, err := r.db.QueryContext(ctx, query, channelID)
	if err != nil {
		return nil, db.Err(op, err, channelNotFound)
	}
	defer rows.Close()

	out := []Person{}
	for rows.Next() {
		var p Person
		if err := rows.Scan(&p.UserID, &p.Username, &p.ProfileURL); err != nil {
			return nil, db.Err(op, err, channelNotFound)
		}
		out = append(out, p)
	}
	return out, db.Err(op, rows.Err(), channelNotFound)
}

func (r *Repository) Admins(ctx context.Context, channelID int64) ([]Person, error) {
	return r.people(ctx, "list channel admins", `
		SELECT u.id, u.username, u.profile_url
		FROM channel_admins ca
		JOIN users u ON u.id = ca.user_id
		WHERE ca.channel_id = $1
		ORDER BY u.username
	`, channelID)
}

func (r *Repository) Followers(ctx context.Context, channelID int64) ([]Person, error) {
	return r.people(ctx, "list channel followers", `
		SELECT u.id, u.username, u.profile_url
		FROM channel_follows cf
		JOIN users u ON u.id = cf.user_id
		WHERE cf.channel_id = $1
		ORDER BY cf.followed_at, u.id
	`, channelID)
}

func (r *Repository) Follow(ctx context.Context, channelID, userID int64) error {
	_, err := r.db.ExecContext(ctx, "INSERT INTO channel_follows (channel_id, user_id) VALUES ($1, $2)", channelID, userID)
	return db.Err("follow channel", err, channelNotFound)
}

func (r *Repository) Unfollow(ctx context.Context, channelID, userID int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM channel_follows WHERE channel_id = $1 AND user_id = $2", channelID, userID)
	if err != nil {
		return db.Err("unfollow channel", err, notFollowing)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.Err("unfollow channel", sql.ErrNoRows, notFollowing)
	}
	return nil
}

// CreateContents stores one row per text in a single transaction. atts
// belong to the first row.
func (r *Repository) CreateContents(ctx context.Context, channelID, senderID int64, texts []string, atts []media.Attachment) ([]Content, error) {
	out := make([]Content, 0, len(texts))
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := "INSERT INTO channel_contents (channel_id, sender_id, content) VALUES ($1, $2, $3) RETURNING " + contentColumns
		for i, text := range texts {
			c, err := scanContent(tx.QueryRowContext(ctx, query, channelID, senderID, text))
			if err != nil {
				return db.Err("insert channel content", err, channelNotFound)
			}
			if i == 0 {
				if c.Attachments, err = media.Insert(ctx, tx, media.OwnerChannel, c.ID, atts); err != nil {
					return err
				}
			}
			out = append(out, *c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) Content(ctx context.Context, channelID, id int64) (*Content, error) {
	query := "SELECT " + contentColumns + " FROM channel_contents WHERE id = $1 AND channel_id = $2"
	c, err := scanContent(r.db.QueryRowContext(ctx, query, id, channelID))
	if err != nil {
		return nil, db.Err("get channel content", err, contentNotFound)
	}
	atts, err := media.Load(ctx, r.db, media.OwnerChannel, []int64{c.ID})
	if err != nil {
		return nil, err
	}
	c.Attachments = atts[c.ID]
	return c, nil
}

// UpdateContent saves c's text and marks it edited. With replaceMedia it
// also swaps the attachments for c.Attachments and returns the old ones.
func (r *Repository) UpdateContent(ctx context.Context, c *Content, replaceMedia bool) ([]media.Attachment, error) {
	var old []media.Attachment
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := "UPDATE channel_contents SET content = $2, is_edited = true WHERE id = $1 RETURNING " + contentColumns
		updated, err := scanContent(tx.QueryRowContext(ctx, query, c.ID, c.Content))
		if err != nil {
			return db.Err("update channel content", err, contentNotFound)
		}
		attachments := c.Attachments
		*c = *updated

		if !replaceMedia {
			atts, err := media.Load(ctx, tx, media.OwnerChannel, []int64{c.ID})
			c.Attachments = atts[c.ID]
			return err
		}
		if old, err = media.Delete(ctx, tx, media.OwnerChannel, []int64{c.ID}); err != nil {
			return err
		}
		c.Attachments, err = media.Insert(ctx, tx, media.OwnerChannel, c.ID, attachments)
		return err
	})
	return old, err
}

func (r *Repository) DeleteContent(ctx context.Context, channelID, id int64) ([]media.Attachment, error) {
	var removed []media.Attachment
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM channel_contents WHERE id = $1 AND channel_id = $2", id, channelID)
		if err != nil {
			return db.Err("delete channel content", err, contentNotFound)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return db.Err("delete channel content", sql.ErrNoRows, contentNotFound)
		}
		removed, err = media.Delete(ctx, tx, media.OwnerChannel, []int64{id})
		return err
	})
	return removed, err
}

// Contents returns up to limit posts older than before, oldest first.
func (r *Repository) Contents(ctx context.Context, channelID int64, before time.Time, limit int) ([]Content, error) {
	query := `
		SELECT ` + contentColumns + `
		FROM channel_contents
		WHERE channel_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	cursor := sql.NullTime{Time: before, Valid: !before.IsZero()}
	out, err := r.list(ctx, query, channelID, cursor, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Search returns posts containing q, newest first.
func (r *Repository) Search(ctx context.Context, channelID int64, q string, limit int) ([]Content, error) {
	query := `
		SELECT ` + contentColumns + `
		FROM channel_contents
		WHERE channel_id = $1 AND content ILIKE $2 ESCAPE '\'
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	return r.list(ctx, query, channelID, db.Contains(q), limit)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Content, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.Err("list channel contents", err, channelNotFound)
	}
	defer rows.Close()

	out := []Content{}
	ids := []int64{}
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, db.Err("scan channel content", err, channelNotFound)
		}
		out = append(out, *c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Err("list channel contents", err, channelNotFound)
	}

	atts, err := media.Load(ctx, r.db, media.OwnerChannel, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Attachments = atts[out[i].ID]
	}
	return out, nil
}
