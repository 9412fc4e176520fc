package memory

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/query"
	"github.com/jwalitptl/patient-records/internal/repository"
)

var base = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func newPatient(n int, first, city string, status model.PatientStatus) *model.Patient {
	created := base.Add(time.Duration(n) * time.Minute)
	return &model.Patient{
		PatientCode:    model.FormatPatientCode(n),
		FirstName:      first,
		LastName:       "Test",
		Email:          fmt.Sprintf("patient%d@example.com", n),
		NearestCity:    city,
		AssignedDoctor: "Dr. Who",
		GuardianName:   "Guardian",
		Status:         status,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func seeded(t *testing.T) repository.PatientRepository {
	t.Helper()
	repo := NewPatientRepositoryWithClock(func() time.Time { return base.Add(time.Hour) })
	err := repo.InsertMany(context.Background(), []*model.Patient{
		newPatient(1, "Harry", "Kandy", model.PatientStatusAlive),
		newPatient(2, "Maria", "Colombo", model.PatientStatusStable),
		newPatient(3, "John", "Galle", model.PatientStatusAlive),
		newPatient(4, "Mariam", "Kandy", model.PatientStatusCritical),
		newPatient(5, "David", "Negombo", model.PatientStatusRecovering),
	})
	require.NoError(t, err)
	return repo
}

func TestCreateRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := seeded(t)

	dupCode := newPatient(1, "Other", "Kandy", model.PatientStatusAlive)
	dupCode.Email = "fresh@example.com"
	err := repo.Create(ctx, dupCode)
	var dup *repository.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "patientCode", dup.Field)

	dupEmail := newPatient(9, "Other", "Kandy", model.PatientStatusAlive)
	dupEmail.Email = "patient2@example.com"
	require.ErrorAs(t, repo.Create(ctx, dupEmail), &dup)
	assert.Equal(t, "email", dup.Field)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestCreateAssignsID(t *testing.T) {
	repo := NewPatientRepository()
	p := newPatient(1, "Harry", "Kandy", model.PatientStatusAlive)
	require.NoError(t, repo.Create(context.Background(), p))
	assert.False(t, p.ID.IsZero())
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := seeded(t)

	p, err := repo.GetByCode(ctx, "P001")
	require.NoError(t, err)
	p.FirstName = "Changed"

	again, err := repo.GetByCode(ctx, "P001")
	require.NoError(t, err)
	assert.Equal(t, "Harry", again.FirstName)

	_, err = repo.GetByCode(ctx, "P404")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListPaging(t *testing.T) {
	ctx := context.Background()
	repo := seeded(t)

	params := query.ListParams{Page: 2, Limit: 2, Sort: query.DefaultSort}
	patients, total, err := repo.List(ctx, params)
	require.NoError(t, err)

	assert.Equal(t, int64(5), total)
	require.Len(t, patients, 2)
	assert.Equal(t, "P003", patients[0].PatientCode)
	assert.Equal(t, "P002", patients[1].PatientCode)

	params.Page = 9
	patients, total, err = repo.List(ctx, params)
	require.NoError(t, err)
	assert.Empty(t, patients)
	assert.NotNil(t, patients)
	assert.Equal(t, int64(5), total)

	params.Page = math.MaxInt64
	patients, _, err = repo.List(ctx, params)
	require.NoError(t, err)
	assert.Empty(t, patients)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	repo := seeded(t)

	c, err := query.NewCriteria("mari", query.FieldFirstName)
	require.NoError(t, err)
	found, err := repo.Search(ctx, query.Search{Criteria: c, Sort: query.DefaultSort})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "P004", found[0].PatientCode)
	assert.Equal(t, "P002", found[1].PatientCode)

	c, err = query.NewCriteria("kandy")
	require.NoError(t, err)
	found, err = repo.Search(ctx, query.Search{Criteria: c, Sort: query.DefaultSort})
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestUpdateByCode(t *testing.T) {
	ctx := context.Background()
	repo := seeded(t)

	city := "Matara"
	p, err := repo.UpdateByCode(ctx, "P001", &model.PatientPatch{NearestCity: &city})
	require.NoError(t, err)
	assert.Equal(t, "Matara", p.NearestCity)
	assert.Equal(t, base.Add(time.Hour), p.UpdatedAt)

	email := "patient2@example.com"
	_, err = repo.UpdateByCode(ctx, "P001", &model.PatientPatch{Email: &email})
	var dup *repository.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "email", dup.Field)

	_, err = repo.UpdateByCode(ctx, "P404", &model.PatientPatch{NearestCity: &city})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdateByCodeRenamesKey(t *testing.T) {
	ctx := context.Background()
	repo := seeded(t)

	code := "P100"
	_, err := repo.UpdateByCode(ctx, "P001", &model.PatientPatch{PatientCode: &code})
	require.NoError(t, err)

	_, err = repo.GetByCode(ctx, "P001")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetByCode(ctx, "P100")
	assert.NoError(t, err)
}

func TestUpdateMany(t *testing.T) {
	ctx := context.Background()
	repo := seeded(t)

	c, err := query.NewCriteria("maria", query.FieldFirstName)
	require.NoError(t, err)
	stable := model.PatientStatusStable

	result, err := repo.UpdateMany(ctx, c, &model.PatientPatch{Status: &stable})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.MatchedCount)
	assert.Equal(t, int64(1), result.ModifiedCount)

	p, err := repo.GetByCode(ctx, "P004")
	require.NoError(t, err)
	assert.Equal(t, model.PatientStatusStable, p.Status)

	c, err = query.NewCriteria("nobody", query.FieldFirstName)
	require.NoError(t, err)
	result, err = repo.UpdateMany(ctx, c, &model.PatientPatch{Status: &stable})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.MatchedCount)
}

func TestUpdateManyIsAtomicOnConflict(t *testing.T) {
	ctx := context.Background()
	repo := seeded(t)

	c, err := query.NewCriteria("maria", query.FieldFirstName)
	require.NoError(t, err)
	email := "shared@example.com"

	_, err = repo.UpdateMany(ctx, c, &model.PatientPatch{Email: &email})
	var dup *repository.DuplicateKeyError
	require.ErrorAs(t, err, &dup)

	p, err := repo.GetByCode(ctx, "P002")
	require.NoError(t, err)
	assert.Equal(t, "patient2@example.com", p.Email)
}

func TestDeleteByCode(t *testing.T) {
	ctx := context.Background()
	repo := seeded(t)

	p, err := repo.DeleteByCode(ctx, "P003")
	require.NoError(t, err)
	assert.Equal(t, "John", p.FirstName)

	_, err = repo.DeleteByCode(ctx, "P003")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestLastPatientCodeIsNumeric(t *testing.T) {
	ctx := context.Background()
	repo := NewPatientRepository()

	last, err := repo.LastPatientCode(ctx)
	require.NoError(t, err)
	assert.Empty(t, last)

	require.NoError(t, repo.InsertMany(ctx, []*model.Patient{
		newPatient(999, "A", "X", model.PatientStatusAlive),
		newPatient(1000, "B", "X", model.PatientStatusAlive),
		newPatient(7, "C", "X", model.PatientStatusAlive),
	}))

	last, err = repo.LastPatientCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "P1000", last)
}

func TestGroupCount(t *testing.T) {
	repo := seeded(t)

	cities, err := repo.GroupCount(context.Background(), query.CityGrouping)
	require.NoError(t, err)
	require.NotEmpty(t, cities)
	assert.Equal(t, model.GroupCount{Key: "Kandy", Count: 2}, cities[0])
	assert.Len(t, cities, 4)
}
