package user

import (
	"context"
	"database/sql"

	"go-messenger/internal/db"
	"go-messenger/internal/media"
)

const notFound = "user not found"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = "id, username, email, password, profile_url, created_at"

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.ProfileURL, &u.CreatedAt)
	return u, err
}

func (r *Repository) Create(ctx context.Context, u *User) (*User, error) {
	query := "INSERT INTO users (username, email, password) VALUES ($1, $2, $3) RETURNING " + userColumns
	created, err := scanUser(r.db.QueryRowContext(ctx, query, u.Username, u.Email, u.Password))
	if err != nil {
		return nil, db.Err("create user", err, notFound)
	}
	return created, nil
}

func (r *Repository) ByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if err != nil {
		return nil, db.Err("get user", err, notFound)
	}
	return u, nil
}

// ByLogin finds a user by username, or by email when username is empty.
func (r *Repository) ByLogin(ctx context.Context, username, email string) (*User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE username = $1"
	arg := username
	if username == "" {
		query = "SELECT " + userColumns + " FROM users WHERE lower(email) = lower($1)"
		arg = email
	}
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, db.Err("get user", err, notFound)
	}
	return u, nil
}

func (r *Repository) Search(ctx context.Context, q string, limit int) ([]Public, error) {
	query := `SELECT id, username, profile_url FROM users WHERE username ILIKE $1 ESCAPE '\' ORDER BY username LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, db.Contains(q), limit)
	if err != nil {
		return nil, db.Err("search users", err, notFound)
	}
	defer rows.Close()

	users := []Public{}
	for rows.Next() {
		var u Public
		if err := rows.Scan(&u.ID, &u.Username, &u.ProfileURL); err != nil {
			return nil, db.Err("scan user", err, notFound)
		}
		users = append(users, u)
	}
	return users, db.Err("search users", rows.Err(), notFound)
}

func (r *Repository) Update(ctx context.Context, u *User) (*User, error) {
	query := `
		UPDATE users SET username = $2, email = $3, password = $4, profile_url = $5
		WHERE id = $1
		RETURNING ` + userColumns
	updated, err := scanUser(r.db.QueryRowContext(ctx, query, u.ID, u.Username, u.Email, u.Password, u.ProfileURL))
	if err != nil {
		return nil, db.Err("update user", err, notFound)
	}
	return updated, nil
}

func (r *Repository) UpdatePasswordByEmail(ctx context.Context, email, hash string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET password = $2 WHERE lower(email) = lower($1)", email, hash)
	if err != nil {
		return db.Err("reset password", err, notFound)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.Err("reset password", sql.ErrNoRows, notFound)
	}
	return nil
}

// Delete removes the user. Contacts, owned groups and owned channels go
// with it through foreign keys; their attachments are returned so the
// caller can remove the files.
func (r *Repository) Delete(ctx context.Context, id int64) ([]media.Attachment, error) {
	var removed []media.Attachment
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		sweeps := []struct {
			owner media.Owner
			ids   string
		}{
			{media.OwnerChat, `SELECT m.id FROM chat_contents m JOIN contacts c ON c.id = m.chat_id
				WHERE c.first_person_id = $2 OR c.second_person_id = $2`},
			{media.OwnerGroup, `SELECT m.id FROM group_messages m JOIN chat_groups g ON g.id = m.group_id
				WHERE g.admin_id = $2`},
			{media.OwnerChannel, `SELECT m.id FROM channel_contents m JOIN channels c ON c.id = m.channel_id
				WHERE c.super_admin_id = $2`},
		}
		for _, s := range sweeps {
			atts, err := media.DeleteWhere(ctx, tx, s.owner, s.ids, id)
			if err != nil {
				return err
			}
			removed = append(removed, atts...)
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
		if err != nil {
			return db.Err("delete user", err, notFound)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return db.Err("delete user", sql.ErrNoRows, notFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (r *Repository) Profile(ctx context.Context, id int64) (*Profile, error) {
	u, err := r.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p := &Profile{User: u}

	p.Contacts, err = r.contacts(ctx, id)
	if err != nil {
		return nil, err
	}

	lists := []struct {
		dst   *[]ConversationSummary
		query string
	}{
		{&p.CreatedGroups, `SELECT id, group_name, profile_url FROM chat_groups WHERE admin_id = $1 ORDER BY id`},
		{&p.MemberGroups, `SELECT g.id, g.group_name, g.profile_url FROM chat_groups g
			JOIN group_members m ON m.group_id = g.id
			WHERE m.user_id = $1 AND g.admin_id <> $1 ORDER BY g.id`},
		{&p.CreatedChannels, `SELECT id, channel_name, profile_url FROM channels WHERE super_admin_id = $1 ORDER BY id`},
		{&p.AdminChannels, `SELECT c.id, c.channel_name, c.profile_url FROM channels c
			JOIN channel_admins a ON a.channel_id = c.id
			WHERE a.user_id = $1 ORDER BY c.id`},
		{&p.FollowedChannels, `SELECT c.id, c.channel_name, c.profile_url FROM channels c
			JOIN channel_follows f ON f.channel_id = c.id
			WHERE f.user_id = $1 ORDER BY c.id`},
	}
	for _, l := range lists {
		if *l.dst, err = r.summaries(ctx, l.query, id); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (r *Repository) contacts(ctx context.Context, id int64) ([]ContactSummary, error) {
	query := `
		SELECT c.id, u.id, u.username, u.profile_url
		FROM contacts c
		JOIN users u ON u.id = CASE WHEN c.first_person_id = $1 THEN c.second_person_id ELSE c.first_person_id END
		WHERE c.first_person_id = $1 OR c.second_person_id = $1
		ORDER BY c.id
	`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, db.Err("list contacts", err, notFound)
	}
	defer rows.Close()

	out := []ContactSummary{}
	for rows.Next() {
		var c ContactSummary
		if err := rows.Scan(&c.ChatID, &c.UserID, &c.Username, &c.ProfileURL); err != nil {
			return nil, db.Err("scan contact", err, notFound)
		}
		out = append(out, c)
	}
	return out, db.Err("list contacts", rows.Err(), notFound)
}

func (r *Repository) summaries(ctx context.Context, query string, id int64) ([]ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, db.Err("list conversations", err, notFound)
	}
	defer rows.Close()

	out := []ConversationSummary{}
	for rows.Next() {
		var s ConversationSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.ProfileURL); err != nil {
			return nil, db.Err("scan conversation", err, notFound)
		}
		out = append(out, s)
	}
	return out, db.Err("list conversations", rows.Err(), notFound)
}
