package model

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jwalitptl/patient-records/pkg/validator"
)

type PatientStatus string

const (
	PatientStatusAlive      PatientStatus = "Alive"
	PatientStatusDeceased   PatientStatus = "Deceased"
	PatientStatusCritical   PatientStatus = "Critical"
	PatientStatusStable     PatientStatus = "Stable"
	PatientStatusRecovering PatientStatus = "Recovering"
)

// PatientStatuses lists the closed status enum in display order.
var PatientStatuses = []PatientStatus{
	PatientStatusAlive,
	PatientStatusDeceased,
	PatientStatusCritical,
	PatientStatusStable,
	PatientStatusRecovering,
}

// statusTag is the validate tag of Patient.Status, reused for patches.
var statusTag = func() string {
	f, _ := reflect.TypeOf(Patient{}).FieldByName("Status")
	return f.Tag.Get("validate")
}()

func (s PatientStatus) Valid() bool {
	for _, known := range PatientStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Patient is the stored patient document
type Patient struct {
	ID                primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	PatientCode       string             `json:"patientCode" bson:"patientCode" validate:"required,patientcode"`
	FirstName         string             `json:"firstName" bson:"firstName" validate:"notblank"`
	LastName          string             `json:"lastName" bson:"lastName" validate:"notblank"`
	Email             string             `json:"email" bson:"email" validate:"notblank,patientemail"`
	NearestCity       string             `json:"nearestCity" bson:"nearestCity" validate:"notblank"`
	AssignedDoctor    string             `json:"assignedDoctor" bson:"assignedDoctor" validate:"notblank"`
	GuardianName      string             `json:"guardianName" bson:"guardianName" validate:"notblank"`
	MedicalConditions []string           `json:"medicalConditions" bson:"medicalConditions"`
	Medications       []string           `json:"medications" bson:"medications"`
	Allergies         []string           `json:"allergies" bson:"allergies"`
	Status            PatientStatus      `json:"status" bson:"status" validate:"oneof=Alive Deceased Critical Stable Recovering"`
	LastVisitDate     time.Time          `json:"lastVisitDate" bson:"lastVisitDate" validate:"notfuture"`
	CreatedAt         time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt" bson:"updatedAt"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

func (p *Patient) ConditionsString() string {
	return strings.Join(p.MedicalConditions, ", ")
}

func (p *Patient) MedicationsString() string {
	return strings.Join(p.Medications, ", ")
}

func (p *Patient) AllergiesString() string {
	return strings.Join(p.Allergies, ", ")
}

// MarshalJSON adds the derived fullName and keeps list fields non-null.
func (p Patient) MarshalJSON() ([]byte, error) {
	type alias Patient
	out := struct {
		alias
		FullName string `json:"fullName"`
	}{
		alias:    alias(p),
		FullName: p.FullName(),
	}
	out.MedicalConditions = nonNil(p.MedicalConditions)
	out.Medications = nonNil(p.Medications)
	out.Allergies = nonNil(p.Allergies)
	return json.Marshal(out)
}

// Normalize trims strings, lowercases the email and fills defaults.
// now is used for a missing lastVisitDate.
func (p *Patient) Normalize(now time.Time) {
	p.PatientCode = strings.TrimSpace(p.PatientCode)
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.NearestCity = strings.TrimSpace(p.NearestCity)
	p.AssignedDoctor = strings.TrimSpace(p.AssignedDoctor)
	p.GuardianName = strings.TrimSpace(p.GuardianName)
	p.MedicalConditions = nonNil(p.MedicalConditions)
	p.Medications = nonNil(p.Medications)
	p.Allergies = nonNil(p.Allergies)
	if p.Status == "" {
		p.Status = PatientStatusAlive
	}
	if p.LastVisitDate.IsZero() {
		p.LastVisitDate = now
	}
}

// Validate checks every schema constraint and returns validator.FieldErrors
// listing all violations, or nil.
func (p *Patient) Validate(v *validator.Validator) error {
	return v.Struct(p)
}

// PatientPatch carries the fields of a partial update. Nil means untouched.
type PatientPatch struct {
	PatientCode       *string
	FirstName         *string
	LastName          *string
	Email             *string
	NearestCity       *string
	AssignedDoctor    *string
	GuardianName      *string
	MedicalConditions *[]string
	Medications       *[]string
	Allergies         *[]string
	Status            *PatientStatus
	LastVisitDate     *time.Time
}

// Empty reports whether the patch touches no field.
func (p *PatientPatch) Empty() bool {
	return p.PatientCode == nil && p.FirstName == nil && p.LastName == nil &&
		p.Email == nil && p.NearestCity == nil && p.AssignedDoctor == nil &&
		p.GuardianName == nil && p.MedicalConditions == nil && p.Medications == nil &&
		p.Allergies == nil && p.Status == nil && p.LastVisitDate == nil
}

// Normalize applies the same trimming/casing rules as Patient.Normalize.
func (p *PatientPatch) Normalize() {
	for _, s := range []*string{p.PatientCode, p.FirstName, p.LastName, p.NearestCity, p.AssignedDoctor, p.GuardianName} {
		if s != nil {
			*s = strings.TrimSpace(*s)
		}
	}
	if p.Email != nil {
		*p.Email = strings.ToLower(strings.TrimSpace(*p.Email))
	}
	for _, l := range []*[]string{p.MedicalConditions, p.Medications, p.Allergies} {
		if l != nil && *l == nil {
			*l = []string{}
		}
	}
}

// Validate checks only the supplied fields.
func (p *PatientPatch) Validate(v *validator.Validator) error {
	var errs validator.FieldErrors
	check := func(field string, value interface{}, tag string) {
		if fe := v.Var(field, value, tag); fe != nil {
			errs = append(errs, *fe)
		}
	}

	if p.PatientCode != nil {
		check("patientCode", *p.PatientCode, "required,patientcode")
	}
	if p.FirstName != nil {
		check("firstName", *p.FirstName, "notblank")
	}
	if p.LastName != nil {
		check("lastName", *p.LastName, "notblank")
	}
	if p.Email != nil {
		check("email", *p.Email, "notblank,patientemail")
	}
	if p.NearestCity != nil {
		check("nearestCity", *p.NearestCity, "notblank")
	}
	if p.AssignedDoctor != nil {
		check("assignedDoctor", *p.AssignedDoctor, "notblank")
	}
	if p.GuardianName != nil {
		check("guardianName", *p.GuardianName, "notblank")
	}
	if p.Status != nil {
		check("status", string(*p.Status), statusTag)
	}
	if p.LastVisitDate != nil {
		check("lastVisitDate", *p.LastVisitDate, "notfuture")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ApplyTo copies the supplied fields onto pt. UpdatedAt is left to the caller.
func (p *PatientPatch) ApplyTo(pt *Patient) {
	if p.PatientCode != nil {
		pt.PatientCode = *p.PatientCode
	}
	if p.FirstName != nil {
		pt.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		pt.LastName = *p.LastName
	}
	if p.Email != nil {
		pt.Email = *p.Email
	}
	if p.NearestCity != nil {
		pt.NearestCity = *p.NearestCity
	}
	if p.AssignedDoctor != nil {
		pt.AssignedDoctor = *p.AssignedDoctor
	}
	if p.GuardianName != nil {
		pt.GuardianName = *p.GuardianName
	}
	if p.MedicalConditions != nil {
		pt.MedicalConditions = append([]string{}, (*p.MedicalConditions)...)
	}
	if p.Medications != nil {
		pt.Medications = append([]string{}, (*p.Medications)...)
	}
	if p.Allergies != nil {
		pt.Allergies = append([]string{}, (*p.Allergies)...)
	}
	if p.Status != nil {
		pt.Status = *p.Status
	}
	if p.LastVisitDate != nil {
		pt.LastVisitDate = *p.LastVisitDate
	}
}

// HeldBy reports whether pt already holds every value in the patch, i.e.
// applying it would not modify the record.
func (p *PatientPatch) HeldBy(pt *Patient) bool {
	if p.PatientCode != nil && pt.PatientCode != *p.PatientCode {
		return false
	}
	if p.FirstName != nil && pt.FirstName != *p.FirstName {
		return false
	}
	if p.LastName != nil && pt.LastName != *p.LastName {
		return false
	}
	if p.Email != nil && pt.Email != *p.Email {
		return false
	}
	if p.NearestCity != nil && pt.NearestCity != *p.NearestCity {
		return false
	}
	if p.AssignedDoctor != nil && pt.AssignedDoctor != *p.AssignedDoctor {
		return false
	}
	if p.GuardianName != nil && pt.GuardianName != *p.GuardianName {
		return false
	}
	if p.MedicalConditions != nil && !equalStrings(pt.MedicalConditions, *p.MedicalConditions) {
		return false
	}
	if p.Medications != nil && !equalStrings(pt.Medications, *p.Medications) {
		return false
	}
	if p.Allergies != nil && !equalStrings(pt.Allergies, *p.Allergies) {
		return false
	}
	if p.Status != nil && pt.Status != *p.Status {
		return false
	}
	if p.LastVisitDate != nil && !pt.LastVisitDate.Equal(*p.LastVisitDate) {
		return false
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
