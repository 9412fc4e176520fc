// Package seed holds the sample patients loaded by the seed command and by
// demo mode.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/query"
	"github.com/jwalitptl/patient-records/internal/repository"
)

type sample struct {
	code, first, last, email, city, doctor, guardian string
	conditions, medications, allergies               []string
	status                                           model.PatientStatus
	lastVisit                                        string
}

var samples = []sample{
	{"P001", "Harry", "Silva", "harry.silva@gmail.com", "Kandy", "Dr. James Cameron", "John Silva",
		[]string{"Hypertension", "Stage 2"}, []string{"Losartan", "Furosemide"}, []string{"Penicillin"},
		model.PatientStatusAlive, "2025-05-10"},
	{"P002", "Emma", "Watson", "emma.watson@email.com", "Colombo", "Dr. Sarah Johnson", "Michael Watson",
		[]string{"Diabetes Type 2"}, []string{"Metformin", "Insulin"}, []string{"Aspirin"},
		model.PatientStatusStable, "2025-06-08"},
	{"P003", "John", "Smith", "john.smith@hospital.lk", "Galle", "Dr. James Cameron", "Mary Smith",
		[]string{"Asthma", "Mild"}, []string{"Albuterol", "Fluticasone"}, []string{},
		model.PatientStatusAlive, "2025-06-05"},
	{"P004", "Maria", "Garcia", "maria.garcia@email.com", "Kandy", "Dr. Robert Brown", "Carlos Garcia",
		[]string{"Heart Disease"}, []string{"Atorvastatin", "Lisinopril"}, []string{"Iodine"},
		model.PatientStatusCritical, "2025-06-09"},
	{"P005", "David", "Johnson", "david.johnson@email.com", "Negombo", "Dr. Sarah Johnson", "Linda Johnson",
		[]string{"Depression", "Anxiety"}, []string{"Sertraline", "Lorazepam"}, []string{"Latex"},
		model.PatientStatusRecovering, "2025-06-07"},
	{"P006", "Sarah", "Wilson", "sarah.wilson@email.com", "Colombo", "Dr. Michael Davis", "Thomas Wilson",
		[]string{"Migraine"}, []string{"Sumatriptan", "Propranolol"}, []string{"Codeine"},
		model.PatientStatusStable, "2025-06-06"},
	{"P007", "Michael", "Brown", "michael.brown@email.com", "Matara", "Dr. James Cameron", "Patricia Brown",
		[]string{"Arthritis", "Osteoarthritis"}, []string{"Ibuprofen", "Glucosamine"}, []string{"Shellfish"},
		model.PatientStatusAlive, "2025-06-04"},
	{"P008", "Lisa", "Anderson", "lisa.anderson@email.com", "Kandy", "Dr. Sarah Johnson", "Robert Anderson",
		[]string{"Thyroid Disorder"}, []string{"Levothyroxine"}, []string{"Nuts"},
		model.PatientStatusStable, "2025-06-03"},
	{"P009", "James", "Martinez", "james.martinez@email.com", "Galle", "Dr. Robert Brown", "Anna Martinez",
		[]string{"Chronic Pain"}, []string{"Tramadol", "Acetaminophen"}, []string{"Morphine"},
		model.PatientStatusAlive, "2025-06-02"},
	{"P010", "Jennifer", "Taylor", "jennifer.taylor@email.com", "Colombo", "Dr. Michael Davis", "William Taylor",
		[]string{"COPD"}, []string{"Spiriva", "Prednisone"}, []string{"Sulfa drugs"},
		model.PatientStatusCritical, "2025-06-09"},
}

// Patients returns fresh copies of the sample records. Creation times are a
// second apart ending at now, in code order.
func Patients(now time.Time) []*model.Patient {
	out := make([]*model.Patient, 0, len(samples))
	for i, s := range samples {
		visit, _ := model.ParseVisitDate(s.lastVisit)
		created := now.Add(-time.Duration(len(samples)-1-i) * time.Second)
		out = append(out, &model.Patient{
			PatientCode:       s.code,
			FirstName:         s.first,
			LastName:          s.last,
			Email:             s.email,
			NearestCity:       s.city,
			AssignedDoctor:    s.doctor,
			GuardianName:      s.guardian,
			MedicalConditions: append([]string{}, s.conditions...),
			Medications:       append([]string{}, s.medications...),
			Allergies:         append([]string{}, s.allergies...),
			Status:            s.status,
			LastVisitDate:     visit,
			CreatedAt:         created,
			UpdatedAt:         created,
		})
	}
	return out
}

// Run inserts the samples into an empty store. A store that already holds
// patients is left alone and Run returns 0.
func Run(ctx context.Context, repo repository.PatientRepository, now time.Time, logger zerolog.Logger) (int, error) {
	existing, err := repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count patients: %w", err)
	}
	if existing > 0 {
		logger.Info().Int64("existing", existing).Msg("patients already present, skipping seed")
		return 0, nil
	}

	patients := Patients(now)
	if err := repo.InsertMany(ctx, patients); err != nil {
		return 0, fmt.Errorf("failed to insert sample patients: %w", err)
	}
	for _, p := range patients {
		logger.Info().
			Str("patient_code", p.PatientCode).
			Str("name", p.FullName()).
			Str("status", string(p.Status)).
			Msg("seeded patient")
	}

	logDistribution(ctx, repo, query.StatusGrouping, "status distribution", logger)
	logDistribution(ctx, repo, query.Grouping{Field: query.CityGrouping.Field}, "patients by city", logger)
	return len(patients), nil
}

func logDistribution(ctx context.Context, repo repository.PatientRepository, g query.Grouping, title string, logger zerolog.Logger) {
	buckets, err := repo.GroupCount(ctx, g)
	if err != nil {
		logger.Warn().Err(err).Str("field", g.Field).Msg("failed to compute distribution")
		return
	}
	dict := zerolog.Dict()
	for _, b := range buckets {
		dict = dict.Int64(b.Key, b.Count)
	}
	logger.Info().Dict("counts", dict).Msg(title)
}
