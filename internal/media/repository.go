package media

import (
	"context"
	"database/sql"

	"go-messenger/internal/db"
)

// Insert stores atts for one message and fills in their ids.
func Insert(ctx context.Context, q db.Querier, owner Owner, ownerID int64, atts []Attachment) ([]Attachment, error) {
	query := "INSERT INTO media (owner_kind, owner_id, kind, url) VALUES ($1, $2, $3, $4) RETURNING id"
	out := make([]Attachment, 0, len(atts))
	for _, a := range atts {
		if err := q.QueryRowContext(ctx, query, owner, ownerID, a.Kind, a.URL).Scan(&a.ID); err != nil {
			return nil, db.Err("insert media", err, "")
		}
		out = append(out, a)
	}
	return out, nil
}

// Load returns the attachments of every listed message, keyed by message id.
func Load(ctx context.Context, q db.Querier, owner Owner, ownerIDs []int64) (map[int64][]Attachment, error) {
	out := make(map[int64][]Attachment, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return out, nil
	}
	query := `
		SELECT id, owner_id, kind, url
		FROM media
		WHERE owner_kind = $1 AND owner_id = ANY($2)
		ORDER BY id
	`
	rows, err := q.QueryContext(ctx, query, owner, ownerIDs)
	if err != nil {
		return nil, db.Err("load media", err, "")
	}
	defer rows.Close()

	for rows.Next() {
		var a Attachment
		var ownerID int64
		if err := rows.Scan(&a.ID, &ownerID, &a.Kind, &a.URL); err != nil {
			return nil, db.Err("scan media", err, "")
		}
		out[ownerID] = append(out[ownerID], a)
	}
	return out, db.Err("load media", rows.Err(), "")
}

// Delete removes the attachments of the listed messages and returns them so
// the caller can remove the files too.
func Delete(ctx context.Context, q db.Querier, owner Owner, ownerIDs []int64) ([]Attachment, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	query := "DELETE FROM media WHERE owner_kind = $1 AND owner_id = ANY($2) RETURNING id, kind, url"
	rows, err := q.QueryContext(ctx, query, owner, ownerIDs)
	if err != nil {
		return nil, db.Err("delete media", err, "")
	}
	return scanDeleted(rows)
}

// DeleteWhere removes the attachments of every message whose id is selected
// by idQuery, e.g. all messages of one group. Placeholders in idQuery start
// at $2.
func DeleteWhere(ctx context.Context, q db.Querier, owner Owner, idQuery string, args ...any) ([]Attachment, error) {
	query := "DELETE FROM media WHERE owner_kind = $1 AND owner_id IN (" + idQuery + ") RETURNING id, kind, url"
	rows, err := q.QueryContext(ctx, query, append([]any{owner}, args...)...)
	if err != nil {
		return nil, db.Err("delete media", err, "")
	}
	return scanDeleted(rows)
}

func scanDeleted(rows *sql.Rows) ([]Attachment, error) {
	defer rows.Close()

	var out []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.Kind, &a.URL); err != nil {
			return nil, db.Err("scan media", err, "")
		}
		out = append(out, a)
	}
	return out, db.Err("delete media", rows.Err(), "")
}

// UploadRepository keeps the uploads table: one row per stored file and
// the user who uploaded it.
type UploadRepository struct {
	db *sql.DB
}

func NewUploadRepository(db *sql.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

func (r *UploadRepository) Record(ctx context.Context, url string, ownerID int64, kind Kind) error {
	query := "INSERT INTO uploads (url, owner_id, kind) VALUES ($1, $2, $3)"
	if _, err := r.db.ExecContext(ctx, query, url, ownerID, kind); err != nil {
		return db.Err("record upload", err, "")
	}
	return nil
}

func (r *UploadRepository) Owners(ctx context.Context, urls []string) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT url, owner_id FROM uploads WHERE url = ANY($1)", urls)
	if err != nil {
		return nil, db.Err("load upload owners", err, "")
	}
	defer rows.Close()

	out := make(map[string]int64, len(urls))
	for rows.Next() {
		var url string
		var ownerID int64
		if err := rows.Scan(&url, &ownerID); err != nil {
			return nil, db.Err("scan upload owner", err, "")
		}
		out[url] = ownerID
	}
	return out, db.Err("load upload owners", rows.Err(), "")
}

func (r *UploadRepository) Unreferenced(ctx context.Context, urls []string) ([]string, error) {
	query := `
		SELECT t.url FROM unnest($1::text[]) AS t(url)
		WHERE NOT EXISTS (SELECT 1 FROM media m WHERE m.url = t.url)
		  AND NOT EXISTS (SELECT 1 FROM users u WHERE u.profile_url = t.url)
		  AND NOT EXISTS (SELECT 1 FROM chat_groups g WHERE g.profile_url = t.url)
		  AND NOT EXISTS (SELECT 1 FROM channels c WHERE c.profile_url = t.url)
	`
	rows, err := r.db.QueryContext(ctx, query, urls)
	if err != nil {
		return nil, db.Err("check upload references", err, "")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, db.Err("scan upload reference", err, "")
		}
		out = append(out, url)
	}
	return out, db.Err("check upload references", rows.Err(), "")
}

func (r *UploadRepository) Forget(ctx context.Context, urls []string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM uploads WHERE url = ANY($1)", urls); err != nil {
		return db.Err("forget uploads", err, "")
	}
	return nil
}
