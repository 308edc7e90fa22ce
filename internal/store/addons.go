package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/keyhub-labs/keyhub/internal/errcode"
	"github.com/keyhub-labs/keyhub/internal/manifest"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const addOnColumns = `id, name, type, version, description, display_name, icon_url,
	entry, package_dir, install_path, is_link, capabilities, size, pending, updated_at`

// Get returns the record for name, or an error wrapping ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (AddOn, error) {
	return getAddOn(ctx, s.db, name)
}

// List returns every record ordered by name.
func (s *Store) List(ctx context.Context) ([]AddOn, error) {
	return listAddOns(ctx, s.db, "")
}

// ListByType returns the records of one add-on type ordered by name.
func (s *Store) ListByType(ctx context.Context, t manifest.AddOnType) ([]AddOn, error) {
	return listAddOns(ctx, s.db, t)
}

// Upsert inserts rec or replaces the record with the same name. The id of an
// existing record is kept.
func (s *Store) Upsert(ctx context.Context, rec AddOn) (AddOn, error) {
	var out AddOn
	err := s.Batch(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.Upsert(ctx, rec)
		return err
	})
	return out, err
}

// Remove deletes the record for name together with its software. Removing a
// missing record is not an error.
func (s *Store) Remove(ctx context.Context, name string) error {
	return s.Batch(ctx, func(tx *Tx) error {
		return tx.Remove(ctx, name)
	})
}

func getAddOn(ctx context.Context, q queryer, name string) (AddOn, error) {
	row := q.QueryRowContext(ctx, `SELECT `+addOnColumns+` FROM addons WHERE name = ?`, name)
	rec, err := scanAddOn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AddOn{}, fmt.Errorf("add-on %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return AddOn{}, errcode.Wrap(errcode.DBLoadFailure, err, "querying add-on %s", name)
	}
	return rec, nil
}

func listAddOns(ctx context.Context, q queryer, t manifest.AddOnType) ([]AddOn, error) {
	query := `SELECT ` + addOnColumns + ` FROM addons`
	var args []any
	if t != "" {
		query += ` WHERE type = ?`
		args = append(args, string(t))
	}
	query += ` ORDER BY name`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errcode.Wrap(errcode.DBLoadFailure, err, "listing add-ons")
	}
	defer rows.Close()

	var out []AddOn
	for rows.Next() {
		rec, err := scanAddOn(rows)
		if err != nil {
			return nil, errcode.Wrap(errcode.DBLoadFailure, err, "scanning add-on")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errcode.Wrap(errcode.DBLoadFailure, err, "listing add-ons")
	}
	return out, nil
}

func upsertAddOn(ctx context.Context, q queryer, rec AddOn) error {
	if rec.Name == "" {
		return fmt.Errorf("add-on record has no name")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	caps, err := json.Marshal(nonNil(rec.Capabilities))
	if err != nil {
		return fmt.Errorf("encoding capabilities: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO addons (`+addOnColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			type = excluded.type,
			version = excluded.version,
			description = excluded.description,
			display_name = excluded.display_name,
			icon_url = excluded.icon_url,
			entry = excluded.entry,
			package_dir = excluded.package_dir,
			install_path = excluded.install_path,
			is_link = excluded.is_link,
			capabilities = excluded.capabilities,
			size = excluded.size,
			pending = excluded.pending,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Name, string(rec.Type), rec.Version, rec.Description, rec.DisplayName, rec.IconURL,
		rec.Entry, rec.PackageDir, rec.InstallPath, boolToInt(rec.IsLink), string(caps), rec.Size,
		string(rec.Pending), rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting add-on %s: %w", rec.Name, err)
	}
	return nil
}

func removeAddOn(ctx context.Context, q queryer, name string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM addons WHERE name = ?`, name); err != nil {
		return fmt.Errorf("removing add-on %s: %w", name, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAddOn(sc scanner) (AddOn, error) {
	var (
		rec       AddOn
		typ       string
		isLink    int
		caps      string
		pending   string
		updatedAt string
	)
	err := sc.Scan(&rec.ID, &rec.Name, &typ, &rec.Version, &rec.Description, &rec.DisplayName, &rec.IconURL,
		&rec.Entry, &rec.PackageDir, &rec.InstallPath, &isLink, &caps, &rec.Size, &pending, &updatedAt)
	if err != nil {
		return AddOn{}, err
	}
	rec.Type = manifest.AddOnType(typ)
	rec.IsLink = isLink != 0
	rec.Pending = Pending(pending)
	if err := json.Unmarshal([]byte(caps), &rec.Capabilities); err != nil {
		return AddOn{}, fmt.Errorf("decoding capabilities of %s: %w", rec.Name, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return AddOn{}, fmt.Errorf("decoding updated_at of %s: %w", rec.Name, err)
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
