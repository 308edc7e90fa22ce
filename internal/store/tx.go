package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/keyhub-labs/keyhub/internal/errcode"
	"github.com/keyhub-labs/keyhub/internal/manifest"
)

// Tx is a write transaction opened by Batch. It must not be used after the
// Batch callback returns.
type Tx struct {
	tx *sql.Tx
}

// Batch runs fn inside one transaction while holding the store's write lock.
// The transaction commits when fn returns nil and rolls back otherwise.
// Batch must not be called from inside fn.
func (s *Store) Batch(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errcode.Wrap(errcode.DBLoadFailure, err, "beginning transaction")
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Get returns the record for name, or an error wrapping ErrNotFound.
func (t *Tx) Get(ctx context.Context, name string) (AddOn, error) {
	return getAddOn(ctx, t.tx, name)
}

// List returns every record ordered by name.
func (t *Tx) List(ctx context.Context) ([]AddOn, error) {
	return listAddOns(ctx, t.tx, "")
}

// ListByType returns the records of one type ordered by name.
func (t *Tx) ListByType(ctx context.Context, typ manifest.AddOnType) ([]AddOn, error) {
	return listAddOns(ctx, t.tx, typ)
}

// Upsert writes rec and returns the stored record.
func (t *Tx) Upsert(ctx context.Context, rec AddOn) (AddOn, error) {
	if err := upsertAddOn(ctx, t.tx, rec); err != nil {
		return AddOn{}, err
	}
	return getAddOn(ctx, t.tx, rec.Name)
}

// Remove deletes the record for name; software and executables cascade.
func (t *Tx) Remove(ctx context.Context, name string) error {
	return removeAddOn(ctx, t.tx, name)
}

// ListSoftware returns the software declared by owner.
func (t *Tx) ListSoftware(ctx context.Context, owner string) ([]Software, error) {
	return listSoftware(ctx, t.tx, owner)
}

// ReplaceSoftware makes decl the complete software list of owner.
func (t *Tx) ReplaceSoftware(ctx context.Context, owner string, decl []Software) error {
	return replaceSoftware(ctx, t.tx, owner, decl)
}

// UpsertSoftware writes one software entry and replaces its executables.
func (t *Tx) UpsertSoftware(ctx context.Context, sw Software) (Software, error) {
	return upsertSoftware(ctx, t.tx, sw)
}
