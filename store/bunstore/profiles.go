// Package bunstore implements authsync.ProfileStore on Bun.
package bunstore

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/crediq/authsync"
)

// Profiles is the user_profiles repository. It embeds the generic Bun
// repository for the standard CRUD surface and adds the keyed operations the
// Synchronizer consumes.
type Profiles struct {
	repository.Repository[*authsync.Profile]
	db bun.IDB
}

var _ authsync.ProfileStore = (*Profiles)(nil)

// New creates the profile store on an existing bun handle.
func New(db *bun.DB) *Profiles {
	repo := repository.NewRepository[*authsync.Profile](db, repository.ModelHandlers[*authsync.Profile]{
		NewRecord: func() *authsync.Profile { return &authsync.Profile{} },
		GetID: func(p *authsync.Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *authsync.Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
	})

	return &Profiles{
		Repository: repo,
		db:         db,
	}
}

// GetByID returns the profile for a subject id. A missing row maps to the
// orphaned-identity error, never to a transport failure.
func (r *Profiles) GetByID(ctx context.Context, id uuid.UUID) (*authsync.Profile, error) {
	record := &authsync.Profile{}

	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, authsync.ErrProfileNotFound.
				WithMetadata(map[string]any{"subject": id.String()})
		}
		return nil, err
	}

	record.EnsureRole()
	return record, nil
}

// Update applies partial changes and returns the stored record.
func (r *Profiles) Update(ctx context.Context, id uuid.UUID, changes authsync.ProfileChanges) (*authsync.Profile, error) {
	if changes.Empty() {
		return r.GetByID(ctx, id)
	}

	q := r.db.NewUpdate().
		Model((*authsync.Profile)(nil)).
		Where("?TableAlias.id = ?", id).
		Set("updated_at = ?", time.Now())

	if changes.FullName != nil {
		q = q.Set("full_name = ?", *changes.FullName)
	}
	if changes.Role != nil {
		q = q.Set("role = ?", *changes.Role)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, authsync.ErrProfileNotFound.
			WithMetadata(map[string]any{"subject": id.String()})
	}

	return r.GetByID(ctx, id)
}

// Seed inserts a minimal profile row for orphaned-identity repair. Inserting
// a row that raced into existence is not an error: the existing row wins.
func (r *Profiles) Seed(ctx context.Context, profile *authsync.Profile) (*authsync.Profile, error) {
	if profile == nil {
		return nil, authsync.ErrProfileNotFound
	}

	record := profile.Clone()
	record.EnsureRole()

	_, err := r.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, record.ID)
}
