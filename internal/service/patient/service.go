package patient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/query"
	"github.com/jwalitptl/patient-records/internal/repository"
	"github.com/jwalitptl/patient-records/internal/service/event"
	apperrors "github.com/jwalitptl/patient-records/pkg/errors"
	"github.com/jwalitptl/patient-records/pkg/metrics"
	"github.com/jwalitptl/patient-records/pkg/validator"
)

const statsCacheKey = "patient_stats"

type PatientService interface {
	CreatePatient(ctx context.Context, p *model.Patient) (*model.Patient, error)
	GetPatient(ctx context.Context, code string) (*model.Patient, error)
	UpdatePatient(ctx context.Context, code string, patch *model.PatientPatch) (*model.Patient, error)
	UpdatePatientsByFirstName(ctx context.Context, name string, patch *model.PatientPatch) (*model.BulkUpdateResult, error)
	DeletePatient(ctx context.Context, code string) (*model.Patient, error)
	ListPatients(ctx context.Context, params query.ListParams) (*model.PatientPage, error)
	SearchByField(ctx context.Context, field query.Field, term string) ([]*model.Patient, error)
	SearchPatients(ctx context.Context, term, field string) ([]*model.Patient, error)
	GetStats(ctx context.Context) (*model.PatientStats, error)
}

type Service struct {
	repo      repository.PatientRepository
	events    *event.EventService
	stats     *cache.Cache
	validator *validator.Validator
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time

	// statsGen counts invalidations; a snapshot computed across one is not
	// cached.
	statsMu  sync.Mutex
	statsGen uint64
}

type Option func(*Service)

// WithStatsCache caches statistics for ttl. Without it every call hits the
// store.
func WithStatsCache(ttl, cleanup time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.stats = cache.New(ttl, cleanup)
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces the time source for timestamps, default visit dates
// and the not-in-future check.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.validator = validator.New(now)
	}
}

func NewService(repo repository.PatientRepository, events *event.EventService, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		events:    events,
		validator: validator.Default(),
		logger:    zerolog.Nop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreatePatient(ctx context.Context, p *model.Patient) (*model.Patient, error) {
	now := s.now()
	p.Normalize(now)

	if p.PatientCode == "" {
		code, err := s.nextCode(ctx)
		if err != nil {
			return nil, err
		}
		p.PatientCode = code
	}

	if err := p.Validate(s.validator); err != nil {
		return nil, validationError(err)
	}

	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, s.storeError(err, "failed to create patient")
	}

	s.invalidateStats()
	s.emit(ctx, event.PatientCreated, p)
	s.logger.Info().Str("patient_code", p.PatientCode).Msg("patient created")
	return p, nil
}

// nextCode allocates the code after the numerically highest one in the
// store. Two concurrent creates can pick the same code; the unique index
// rejects the loser.
func (s *Service) nextCode(ctx context.Context) (string, error) {
	last, err := s.repo.LastPatientCode(ctx)
	if err != nil {
		return "", s.storeError(err, "failed to allocate patient code")
	}
	code, err := model.NextPatientCode(last)
	if err != nil {
		return "", apperrors.Internal(fmt.Errorf("failed to allocate patient code: %w", err))
	}
	return code, nil
}

func (s *Service) GetPatient(ctx context.Context, code string) (*model.Patient, error) {
	p, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, s.storeError(err, "failed to get patient")
	}
	return p, nil
}

func (s *Service) UpdatePatient(ctx context.Context, code string, patch *model.PatientPatch) (*model.Patient, error) {
	if err := s.checkPatch(patch); err != nil {
		return nil, err
	}

	p, err := s.repo.UpdateByCode(ctx, code, patch)
	if err != nil {
		return nil, s.storeError(err, "failed to update patient")
	}

	s.invalidateStats()
	s.emit(ctx, event.PatientUpdated, p)
	return p, nil
}

// UpdatePatientsByFirstName applies patch to every patient whose first name
// contains name, ignoring case. It is not found only when nothing matches.
func (s *Service) UpdatePatientsByFirstName(ctx context.Context, name string, patch *model.PatientPatch) (*model.BulkUpdateResult, error) {
	if err := s.checkPatch(patch); err != nil {
		return nil, err
	}

	criteria, err := query.NewCriteria(name, query.FieldFirstName)
	if err != nil {
		return nil, validationError(err)
	}

	result, err := s.repo.UpdateMany(ctx, criteria, patch)
	if err != nil {
		return nil, s.storeError(err, "failed to update patients")
	}
	if result.MatchedCount == 0 {
		return nil, apperrors.NotFoundf("No patients found with that first name")
	}

	if result.ModifiedCount > 0 {
		s.invalidateStats()
		s.emit(ctx, event.PatientBulkUpdated, map[string]interface{}{
			"firstName":     name,
			"matchedCount":  result.MatchedCount,
			"modifiedCount": result.ModifiedCount,
		})
	}
	return result, nil
}

func (s *Service) checkPatch(patch *model.PatientPatch) error {
	if patch == nil || patch.Empty() {
		return apperrors.Validation("No fields to update", nil)
	}
	patch.Normalize()
	if err := patch.Validate(s.validator); err != nil {
		return validationError(err)
	}
	return nil
}

func (s *Service) DeletePatient(ctx context.Context, code string) (*model.Patient, error) {
	p, err := s.repo.DeleteByCode(ctx, code)
	if err != nil {
		return nil, s.storeError(err, "failed to delete patient")
	}

	s.invalidateStats()
	s.emit(ctx, event.PatientDeleted, p)
	s.logger.Info().Str("patient_code", code).Msg("patient deleted")
	return p, nil
}

func (s *Service) ListPatients(ctx context.Context, params query.ListParams) (*model.PatientPage, error) {
	patients, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, s.storeError(err, "failed to list patients")
	}
	return &model.PatientPage{
		Patients:    patients,
		TotalPages:  params.TotalPages(total),
		CurrentPage: params.Page,
		Total:       total,
	}, nil
}

// SearchByField matches term as a case-insensitive substring of a single
// attribute.
func (s *Service) SearchByField(ctx context.Context, field query.Field, term string) ([]*model.Patient, error) {
	criteria, err := query.NewCriteria(term, field)
	if err != nil {
		return nil, validationError(err)
	}
	return s.search(ctx, criteria)
}

// SearchPatients is the free-text search. field names one searchable
// attribute or "all" (the default).
func (s *Service) SearchPatients(ctx context.Context, term, field string) ([]*model.Patient, error) {
	fields, err := query.ParseFields(field)
	if err != nil {
		return nil, validationError(err)
	}
	criteria, err := query.NewCriteria(term, fields...)
	if err != nil {
		return nil, validationError(err)
	}
	return s.search(ctx, criteria)
}

func (s *Service) search(ctx context.Context, c query.Criteria) ([]*model.Patient, error) {
	patients, err := s.repo.Search(ctx, query.Search{Criteria: c, Sort: query.DefaultSort})
	if err != nil {
		return nil, s.storeError(err, "failed to search patients")
	}
	return patients, nil
}

func (s *Service) GetStats(ctx context.Context) (*model.PatientStats, error) {
	if s.stats != nil {
		if cached, ok := s.stats.Get(statsCacheKey); ok {
			s.countStats(true)
			return cached.(*model.PatientStats), nil
		}
	}
	s.countStats(false)
	gen := s.statsGeneration()

	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, s.storeError(err, "failed to count patients")
	}

	stats := &model.PatientStats{Total: total}
	groupings := []struct {
		grouping query.Grouping
		into     *[]model.GroupCount
	}{
		{query.StatusGrouping, &stats.StatusDistribution},
		{query.CityGrouping, &stats.TopCities},
		{query.DoctorGrouping, &stats.TopDoctors},
	}
	for _, g := range groupings {
		buckets, err := s.repo.GroupCount(ctx, g.grouping)
		if err != nil {
			return nil, s.storeError(err, "failed to compute statistics")
		}
		*g.into = buckets
	}

	s.storeStats(gen, stats)
	return stats, nil
}

func (s *Service) statsGeneration() uint64 {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.statsGen
}

// storeStats caches stats unless a mutation invalidated the cache after gen
// was read.
func (s *Service) storeStats(gen uint64, stats *model.PatientStats) {
	if s.stats == nil {
		return
	}
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.statsGen == gen {
		s.stats.SetDefault(statsCacheKey, stats)
	}
}

func (s *Service) countStats(hit bool) {
	if s.metrics == nil || s.stats == nil {
		return
	}
	if hit {
		s.metrics.StatsCacheHits.Inc()
	} else {
		s.metrics.StatsCacheMisses.Inc()
	}
}

func (s *Service) invalidateStats() {
	if s.stats == nil {
		return
	}
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.statsGen++
	s.stats.Delete(statsCacheKey)
}

func (s *Service) emit(ctx context.Context, t event.EventType, payload interface{}) {
	if s.events != nil {
		s.events.Emit(ctx, t, payload)
	}
}

// storeError classifies a repository error for the HTTP edge.
func (s *Service) storeError(err error, msg string) error {
	var dup *repository.DuplicateKeyError
	switch {
	case errors.As(err, &dup):
		return apperrors.Conflict(dup.Field, err)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("Patient")
	default:
		return apperrors.Internal(fmt.Errorf("%s: %w", msg, err))
	}
}

// validationError wraps field violations. The message names every
// offending field.
func validationError(err error) error {
	var fe validator.FieldErrors
	if errors.As(err, &fe) {
		return apperrors.Validation(fe.Error(), fe)
	}
	return apperrors.Validation(err.Error(), nil)
}
