// Package memory is the non-durable demo store. Records live in a map keyed
// by patient code and are lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/query"
	"github.com/jwalitptl/patient-records/internal/repository"
)

type patientRepository struct {
	mu       sync.RWMutex
	patients map[string]*model.Patient
	now      func() time.Time
}

// NewPatientRepository returns an empty in-memory store.
func NewPatientRepository() repository.PatientRepository {
	return NewPatientRepositoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewPatientRepositoryWithClock is NewPatientRepository with a fixed clock
// for updatedAt stamping.
func NewPatientRepositoryWithClock(now func() time.Time) repository.PatientRepository {
	return &patientRepository{
		patients: make(map[string]*model.Patient),
		now:      now,
	}
}

// clone returns a deep copy so callers never alias stored records.
func clone(p *model.Patient) *model.Patient {
	c := *p
	c.MedicalConditions = append([]string{}, p.MedicalConditions...)
	c.Medications = append([]string{}, p.Medications...)
	c.Allergies = append([]string{}, p.Allergies...)
	return &c
}

// conflict reports which unique field of p is already held by another
// record than except.
func (r *patientRepository) conflict(p *model.Patient, except string) string {
	if other, ok := r.patients[p.PatientCode]; ok && other.PatientCode != except {
		return "patientCode"
	}
	for code, other := range r.patients {
		if code != except && other.Email == p.Email {
			return "email"
		}
	}
	return ""
}

func (r *patientRepository) Create(_ context.Context, p *model.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.insert(p)
}

func (r *patientRepository) insert(p *model.Patient) error {
	if field := r.conflict(p, ""); field != "" {
		return &repository.DuplicateKeyError{Field: field}
	}
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	r.patients[p.PatientCode] = clone(p)
	return nil
}

func (r *patientRepository) InsertMany(_ context.Context, patients []*model.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Ordered insert: stop at the first failure, keep what went in before.
	for _, p := range patients {
		if err := r.insert(p); err != nil {
			return err
		}
	}
	return nil
}

func (r *patientRepository) GetByCode(_ context.Context, code string) (*model.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(p), nil
}

func (r *patientRepository) UpdateByCode(_ context.Context, code string, patch *model.PatientPatch) (*model.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.patients[code]
	if !ok {
		return nil, repository.ErrNotFound
	}

	updated := clone(current)
	patch.ApplyTo(updated)
	updated.UpdatedAt = r.now()

	if field := r.conflict(updated, code); field != "" {
		return nil, &repository.DuplicateKeyError{Field: field}
	}

	delete(r.patients, code)
	r.patients[updated.PatientCode] = updated
	return clone(updated), nil
}

func (r *patientRepository) UpdateMany(_ context.Context, c query.Criteria, patch *model.PatientPatch) (*model.BulkUpdateResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*model.Patient
	for _, p := range r.patients {
		if c.Matches(p) {
			matched = append(matched, p)
		}
	}

	result := &model.BulkUpdateResult{MatchedCount: int64(len(matched))}
	now := r.now()

	// Build every change first so a unique key collision leaves the store
	// untouched.
	changes := make(map[string]*model.Patient)
	for _, p := range matched {
		if patch.HeldBy(p) {
			continue
		}
		updated := clone(p)
		patch.ApplyTo(updated)
		updated.UpdatedAt = now
		changes[p.PatientCode] = updated
	}

	staged := make(map[string]*model.Patient, len(r.patients))
	for code, p := range r.patients {
		if _, changing := changes[code]; !changing {
			staged[code] = p
		}
	}
	for _, updated := range changes {
		if field := conflictIn(staged, updated); field != "" {
			return nil, &repository.DuplicateKeyError{Field: field}
		}
		staged[updated.PatientCode] = updated
	}

	r.patients = staged
	result.ModifiedCount = int64(len(changes))
	return result, nil
}

func conflictIn(set map[string]*model.Patient, p *model.Patient) string {
	if _, ok := set[p.PatientCode]; ok {
		return "patientCode"
	}
	for _, other := range set {
		if other.Email == p.Email {
			return "email"
		}
	}
	return ""
}

func (r *patientRepository) DeleteByCode(_ context.Context, code string) (*model.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.patients[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(r.patients, code)
	return p, nil
}

// snapshot returns copies of every record sorted by s.
func (r *patientRepository) snapshot(s query.Sort, keep func(*model.Patient) bool) []*model.Patient {
	out := make([]*model.Patient, 0, len(r.patients))
	for _, p := range r.patients {
		if keep == nil || keep(p) {
			out = append(out, clone(p))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return s.Less(out[i], out[j]) })
	return out
}

func (r *patientRepository) List(_ context.Context, params query.ListParams) ([]*model.Patient, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.snapshot(params.Sort, nil)
	total := int64(len(all))

	start := params.Skip()
	if start >= total {
		return []*model.Patient{}, total, nil
	}
	end := total
	if remaining := total - start; int64(params.Limit) < remaining {
		end = start + int64(params.Limit)
	}
	return all[start:end], total, nil
}

func (r *patientRepository) Search(_ context.Context, s query.Search) ([]*model.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshot(s.Sort, s.Criteria.Matches), nil
}

func (r *patientRepository) LastPatientCode(_ context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	last, lastN := "", -1
	for code := range r.patients {
		n, err := model.ParsePatientCode(code)
		if err != nil {
			continue
		}
		if n > lastN {
			last, lastN = code, n
		}
	}
	return last, nil
}

func (r *patientRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return int64(len(r.patients)), nil
}

func (r *patientRepository) GroupCount(_ context.Context, g query.Grouping) ([]model.GroupCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*model.Patient, 0, len(r.patients))
	for _, p := range r.patients {
		all = append(all, p)
	}
	return g.Count(all), nil
}

func (r *patientRepository) Ping(context.Context) error {
	return nil
}
