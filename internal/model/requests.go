package model

import (
	"strings"
	"time"

	"github.com/jwalitptl/patient-records/pkg/validator"
)

// dateLayouts are the accepted lastVisitDate encodings. The browser form
// posts plain dates; API clients usually send RFC 3339.
var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

// ParseVisitDate parses a lastVisitDate value in any accepted layout.
func ParseVisitDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

type CreatePatientRequest struct {
	PatientCode       string   `json:"patientCode"`
	FirstName         string   `json:"firstName"`
	LastName          string   `json:"lastName"`
	Email             string   `json:"email"`
	NearestCity       string   `json:"nearestCity"`
	AssignedDoctor    string   `json:"assignedDoctor"`
	GuardianName      string   `json:"guardianName"`
	MedicalConditions []string `json:"medicalConditions"`
	Medications       []string `json:"medications"`
	Allergies         []string `json:"allergies"`
	Status            string   `json:"status"`
	LastVisitDate     string   `json:"lastVisitDate"`
}

// ToPatient converts the request. Only the date can fail here; the rest is
// checked by Patient.Validate.
func (r *CreatePatientRequest) ToPatient() (*Patient, error) {
	p := &Patient{
		PatientCode:       r.PatientCode,
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		Email:             r.Email,
		NearestCity:       r.NearestCity,
		AssignedDoctor:    r.AssignedDoctor,
		GuardianName:      r.GuardianName,
		MedicalConditions: r.MedicalConditions,
		Medications:       r.Medications,
		Allergies:         r.Allergies,
		Status:            PatientStatus(strings.TrimSpace(r.Status)),
	}

	if strings.TrimSpace(r.LastVisitDate) != "" {
		t, ok := ParseVisitDate(r.LastVisitDate)
		if !ok {
			return nil, invalidDate()
		}
		p.LastVisitDate = t
	}
	return p, nil
}

type UpdatePatientRequest struct {
	PatientCode       *string   `json:"patientCode"`
	FirstName         *string   `json:"firstName"`
	LastName          *string   `json:"lastName"`
	Email             *string   `json:"email"`
	NearestCity       *string   `json:"nearestCity"`
	AssignedDoctor    *string   `json:"assignedDoctor"`
	GuardianName      *string   `json:"guardianName"`
	MedicalConditions *[]string `json:"medicalConditions"`
	Medications       *[]string `json:"medications"`
	Allergies         *[]string `json:"allergies"`
	Status            *string   `json:"status"`
	LastVisitDate     *string   `json:"lastVisitDate"`
}

func (r *UpdatePatientRequest) ToPatch() (*PatientPatch, error) {
	p := &PatientPatch{
		PatientCode:       r.PatientCode,
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		Email:             r.Email,
		NearestCity:       r.NearestCity,
		AssignedDoctor:    r.AssignedDoctor,
		GuardianName:      r.GuardianName,
		MedicalConditions: r.MedicalConditions,
		Medications:       r.Medications,
		Allergies:         r.Allergies,
	}

	if r.Status != nil {
		s := PatientStatus(strings.TrimSpace(*r.Status))
		p.Status = &s
	}
	if r.LastVisitDate != nil {
		t, ok := ParseVisitDate(*r.LastVisitDate)
		if !ok {
			return nil, invalidDate()
		}
		p.LastVisitDate = &t
	}
	return p, nil
}

func invalidDate() validator.FieldErrors {
	return validator.FieldErrors{{
		Field:   "lastVisitDate",
		Message: "lastVisitDate must be a date (YYYY-MM-DD or RFC 3339)",
	}}
}
