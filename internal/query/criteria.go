package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/pkg/validator"
)

// Field is one of the searchable string attributes
type Field string

const (
	FieldFirstName      Field = "firstName"
	FieldLastName       Field = "lastName"
	FieldEmail          Field = "email"
	FieldNearestCity    Field = "nearestCity"
	FieldAssignedDoctor Field = "assignedDoctor"
	FieldGuardianName   Field = "guardianName"
	FieldPatientCode    Field = "patientCode"

	// FieldAll is the sentinel for "every searchable attribute".
	FieldAll = "all"
)

// SearchableFields in the order an all-fields search checks them.
var SearchableFields = []Field{
	FieldFirstName,
	FieldLastName,
	FieldEmail,
	FieldNearestCity,
	FieldAssignedDoctor,
	FieldGuardianName,
	FieldPatientCode,
}

// ParseFields resolves a search field parameter. Empty means all. Names
// outside the searchable set are rejected rather than matched against a
// non-existent attribute.
func ParseFields(name string) ([]Field, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == FieldAll {
		return append([]Field(nil), SearchableFields...), nil
	}
	for _, f := range SearchableFields {
		if string(f) == name {
			return []Field{f}, nil
		}
	}
	return nil, validator.FieldErrors{{
		Field:   "field",
		Message: fmt.Sprintf("cannot search by %q", name),
	}}
}

// Value reads f from p through a static switch.
func (f Field) Value(p *model.Patient) string {
	switch f {
	case FieldFirstName:
		return p.FirstName
	case FieldLastName:
		return p.LastName
	case FieldEmail:
		return p.Email
	case FieldNearestCity:
		return p.NearestCity
	case FieldAssignedDoctor:
		return p.AssignedDoctor
	case FieldGuardianName:
		return p.GuardianName
	case FieldPatientCode:
		return p.PatientCode
	default:
		return ""
	}
}

// Criteria is a case-insensitive substring match of Term against any of
// Fields.
type Criteria struct {
	Term   string
	Fields []Field
}

// NewCriteria validates the term. An empty or blank term is rejected before
// any query runs.
func NewCriteria(term string, fields ...Field) (Criteria, error) {
	if strings.TrimSpace(term) == "" {
		return Criteria{}, validator.FieldErrors{{Field: "query", Message: "Search query is required"}}
	}
	if len(fields) == 0 {
		fields = SearchableFields
	}
	return Criteria{Term: term, Fields: fields}, nil
}

// Pattern is the literal term, regex-escaped, for stores that match with
// case-insensitive regular expressions.
func (c Criteria) Pattern() string {
	return regexp.QuoteMeta(c.Term)
}

// Matches evaluates the criteria against p in process.
func (c Criteria) Matches(p *model.Patient) bool {
	needle := strings.ToLower(c.Term)
	for _, f := range c.Fields {
		if strings.Contains(strings.ToLower(f.Value(p)), needle) {
			return true
		}
	}
	return false
}

// Search is a criteria plus ordering
type Search struct {
	Criteria Criteria
	Sort     Sort
}
