package query

import (
	"strings"
	"time"

	"github.com/jwalitptl/patient-records/internal/model"
)

// compare orders a and b on field: -1, 0 or 1.
func compare(field string, a, b *model.Patient) int {
	switch field {
	case "patientCode":
		return compareCodes(a.PatientCode, b.PatientCode)
	case "firstName":
		return strings.Compare(a.FirstName, b.FirstName)
	case "lastName":
		return strings.Compare(a.LastName, b.LastName)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "nearestCity":
		return strings.Compare(a.NearestCity, b.NearestCity)
	case "assignedDoctor":
		return strings.Compare(a.AssignedDoctor, b.AssignedDoctor)
	case "guardianName":
		return strings.Compare(a.GuardianName, b.GuardianName)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "lastVisitDate":
		return compareTimes(a.LastVisitDate, b.LastVisitDate)
	case "updatedAt":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	default:
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
}

// compareCodes orders codes numerically so P1000 follows P999; malformed
// codes fall back to text order.
func compareCodes(a, b string) int {
	na, errA := model.ParsePatientCode(a)
	nb, errB := model.ParsePatientCode(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	switch {
	case na < nb:
		return -1
	case na > nb:
		return 1
	default:
		return 0
	}
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts before b. Equal keys are not ordered further.
func (s Sort) Less(a, b *model.Patient) bool {
	c := compare(s.Field, a, b)
	if s.Order == OrderAsc {
		return c < 0
	}
	return c > 0
}
