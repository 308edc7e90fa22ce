package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/keyhub-labs/keyhub/internal/errcode"
)

// ListSoftware returns the software declared by owner, ordered by name, with
// executables populated. An empty owner lists all software.
func (s *Store) ListSoftware(ctx context.Context, owner string) ([]Software, error) {
	return listSoftware(ctx, s.db, owner)
}

// UpsertSoftware writes one software entry and replaces its executables
// atomically. The owning add-on must exist.
func (s *Store) UpsertSoftware(ctx context.Context, sw Software) (Software, error) {
	var out Software
	err := s.Batch(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.UpsertSoftware(ctx, sw)
		return err
	})
	return out, err
}

// RemoveSoftware deletes one software entry of owner and its executables.
func (s *Store) RemoveSoftware(ctx context.Context, owner, name string) error {
	return s.Batch(ctx, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(ctx, `DELETE FROM software WHERE owner_name = ? AND name = ?`, owner, name)
		if err != nil {
			return fmt.Errorf("removing software %s of %s: %w", name, owner, err)
		}
		return nil
	})
}

// JoinExecutables returns every executable provided by software called
// softwareName, across all owners.
func (s *Store) JoinExecutables(ctx context.Context, softwareName string) ([]ExecutableRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.name, e.path, e.arch, e.os, e.user_installed, e.software_id, s.name, s.owner_name
		FROM executables e
		JOIN software s ON s.id = e.software_id
		WHERE s.name = ?
		ORDER BY s.owner_name, e.name`, softwareName)
	if err != nil {
		return nil, errcode.Wrap(errcode.DBLoadFailure, err, "querying executables of %s", softwareName)
	}
	defer rows.Close()

	var out []ExecutableRow
	for rows.Next() {
		var (
			row           ExecutableRow
			userInstalled int
		)
		if err := rows.Scan(&row.ID, &row.Name, &row.Path, &row.Arch, &row.OS, &userInstalled,
			&row.SoftwareID, &row.SoftwareName, &row.OwnerName); err != nil {
			return nil, errcode.Wrap(errcode.DBLoadFailure, err, "scanning executable")
		}
		row.UserInstalled = userInstalled != 0
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errcode.Wrap(errcode.DBLoadFailure, err, "querying executables of %s", softwareName)
	}
	return out, nil
}

func listSoftware(ctx context.Context, q queryer, owner string) ([]Software, error) {
	query := `SELECT id, name, owner_name, url, homepage, download_type, installed FROM software`
	var args []any
	if owner != "" {
		query += ` WHERE owner_name = ?`
		args = append(args, owner)
	}
	query += ` ORDER BY owner_name, name`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errcode.Wrap(errcode.DBLoadFailure, err, "listing software")
	}

	var out []Software
	for rows.Next() {
		var (
			sw        Software
			installed int
		)
		if err := rows.Scan(&sw.ID, &sw.Name, &sw.OwnerName, &sw.URL, &sw.Homepage, &sw.DownloadType, &installed); err != nil {
			rows.Close()
			return nil, errcode.Wrap(errcode.DBLoadFailure, err, "scanning software")
		}
		sw.Installed = installed != 0
		out = append(out, sw)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errcode.Wrap(errcode.DBLoadFailure, err, "listing software")
	}

	for i := range out {
		exes, err := listExecutables(ctx, q, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Executables = exes
	}
	return out, nil
}

func listExecutables(ctx context.Context, q queryer, softwareID string) ([]Executable, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, path, arch, os, user_installed, software_id
		FROM executables WHERE software_id = ? ORDER BY name`, softwareID)
	if err != nil {
		return nil, errcode.Wrap(errcode.DBLoadFailure, err, "listing executables")
	}
	defer rows.Close()

	var out []Executable
	for rows.Next() {
		var (
			e             Executable
			userInstalled int
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Path, &e.Arch, &e.OS, &userInstalled, &e.SoftwareID); err != nil {
			return nil, errcode.Wrap(errcode.DBLoadFailure, err, "scanning executable")
		}
		e.UserInstalled = userInstalled != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func upsertSoftware(ctx context.Context, q queryer, sw Software) (Software, error) {
	if sw.Name == "" || sw.OwnerName == "" {
		return Software{}, fmt.Errorf("software record needs a name and an owner")
	}
	if sw.DownloadType == "" {
		sw.DownloadType = "none"
	}

	var existingID string
	err := q.QueryRowContext(ctx, `SELECT id FROM software WHERE name = ? AND owner_name = ?`, sw.Name, sw.OwnerName).Scan(&existingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if sw.ID == "" {
			sw.ID = uuid.NewString()
		}
	case err != nil:
		return Software{}, fmt.Errorf("looking up software %s: %w", sw.Name, err)
	default:
		sw.ID = existingID
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO software (id, name, owner_name, url, homepage, download_type, installed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			homepage = excluded.homepage,
			download_type = excluded.download_type,
			installed = excluded.installed`,
		sw.ID, sw.Name, sw.OwnerName, sw.URL, sw.Homepage, sw.DownloadType, boolToInt(sw.Installed))
	if err != nil {
		return Software{}, fmt.Errorf("upserting software %s of %s: %w", sw.Name, sw.OwnerName, err)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM executables WHERE software_id = ?`, sw.ID); err != nil {
		return Software{}, fmt.Errorf("clearing executables of %s: %w", sw.Name, err)
	}
	for i := range sw.Executables {
		e := &sw.Executables[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.SoftwareID = sw.ID
		_, err := q.ExecContext(ctx, `
			INSERT INTO executables (id, name, path, arch, os, user_installed, software_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Name, e.Path, e.Arch, e.OS, boolToInt(e.UserInstalled), e.SoftwareID)
		if err != nil {
			return Software{}, fmt.Errorf("inserting executable %s of %s: %w", e.Name, sw.Name, err)
		}
	}
	return sw, nil
}

// replaceSoftware upserts every entry of decl and deletes the owner's
// software that decl no longer mentions.
func replaceSoftware(ctx context.Context, q queryer, owner string, decl []Software) error {
	keep := make(map[string]bool, len(decl))
	for _, sw := range decl {
		sw.OwnerName = owner
		if _, err := upsertSoftware(ctx, q, sw); err != nil {
			return err
		}
		keep[sw.Name] = true
	}

	existing, err := listSoftware(ctx, q, owner)
	if err != nil {
		return err
	}
	for _, sw := range existing {
		if keep[sw.Name] {
			continue
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM software WHERE id = ?`, sw.ID); err != nil {
			return fmt.Errorf("removing software %s of %s: %w", sw.Name, owner, err)
		}
	}
	return nil
}
