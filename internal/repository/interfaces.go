package repository

import (
	"context"
	"errors"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/query"
)

var (
	// ErrNotFound is returned when a code-targeted operation matches nothing.
	ErrNotFound = errors.New("patient not found")
)

// DuplicateKeyError is returned when an insert or update collides with a
// unique index.
type DuplicateKeyError struct {
	Field string
	Err   error
}

func (e *DuplicateKeyError) Error() string {
	return e.Field + " already exists"
}

func (e *DuplicateKeyError) Unwrap() error {
	return e.Err
}

// PatientRepository is implemented by the MongoDB store and by the
// in-memory demo store.
type PatientRepository interface {
	// Create inserts p and sets its ID.
	Create(ctx context.Context, p *model.Patient) error
	GetByCode(ctx context.Context, code string) (*model.Patient, error)
	// UpdateByCode applies patch and returns the updated record.
	UpdateByCode(ctx context.Context, code string, patch *model.PatientPatch) (*model.Patient, error)
	// UpdateMany applies patch to every record matching c. Records already
	// holding the patched values count as matched but not modified.
	UpdateMany(ctx context.Context, c query.Criteria, patch *model.PatientPatch) (*model.BulkUpdateResult, error)
	// DeleteByCode removes the record and returns it.
	DeleteByCode(ctx context.Context, code string) (*model.Patient, error)

	List(ctx context.Context, params query.ListParams) ([]*model.Patient, int64, error)
	Search(ctx context.Context, s query.Search) ([]*model.Patient, error)

	// LastPatientCode returns the numerically highest code, "" when empty.
	LastPatientCode(ctx context.Context) (string, error)

	Count(ctx context.Context) (int64, error)
	GroupCount(ctx context.Context, g query.Grouping) ([]model.GroupCount, error)

	// InsertMany is used by seeding.
	InsertMany(ctx context.Context, patients []*model.Patient) error

	Ping(ctx context.Context) error
}
