package store

import (
	"context"
	"database/sql"

	"github.com/carljohntruya-art/taskflow-auth/app/models"
)

// Storage bundles the persistent collections. Absence is reported as
// sql.ErrNoRows so callers can tell "not found" apart from storage failure.
type Storage struct {
	Users interface {
		GetByID(ctx context.Context, id int64) (*models.User, error)
		GetByEmail(ctx context.Context, email string) (*models.User, error)
		Count(ctx context.Context) (int64, error)
		Create(ctx context.Context, user *models.User) error
		Update(ctx context.Context, user *models.User) error
	}
}

func NewStorage(db *sql.DB) Storage {
	return Storage{
		Users: &UsersStore{db: db},
	}
}
