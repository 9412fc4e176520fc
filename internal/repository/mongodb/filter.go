package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/query"
)

// numericCollation orders "P1000" after "P999".
var numericCollation = &options.Collation{Locale: "en", NumericOrdering: true}

func codeFilter(code string) bson.D {
	return bson.D{{Key: "patientCode", Value: code}}
}

func regexMatch(field query.Field, pattern string) bson.E {
	return bson.E{Key: string(field), Value: bson.D{
		{Key: "$regex", Value: pattern},
		{Key: "$options", Value: "i"},
	}}
}

// criteriaFilter renders a single-field criteria as a plain regex filter and
// a multi-field one as an $or of regex filters.
func criteriaFilter(c query.Criteria) bson.D {
	pattern := c.Pattern()
	if len(c.Fields) == 1 {
		return bson.D{regexMatch(c.Fields[0], pattern)}
	}

	or := make(bson.A, 0, len(c.Fields))
	for _, f := range c.Fields {
		or = append(or, bson.D{regexMatch(f, pattern)})
	}
	return bson.D{{Key: "$or", Value: or}}
}

func sortDoc(s query.Sort) bson.D {
	return bson.D{{Key: s.Field, Value: s.Order.Direction()}}
}

func collationFor(s query.Sort) *options.Collation {
	if s.Field == string(query.FieldPatientCode) {
		return numericCollation
	}
	return nil
}

func findOptions(s query.Sort) *options.FindOptions {
	opts := options.Find().SetSort(sortDoc(s))
	if c := collationFor(s); c != nil {
		opts.SetCollation(c)
	}
	return opts
}

// patchFields lists the supplied patch values in schema order.
func patchFields(p *model.PatientPatch) bson.D {
	var d bson.D
	add := func(key string, value interface{}) {
		d = append(d, bson.E{Key: key, Value: value})
	}

	if p.PatientCode != nil {
		add("patientCode", *p.PatientCode)
	}
	if p.FirstName != nil {
		add("firstName", *p.FirstName)
	}
	if p.LastName != nil {
		add("lastName", *p.LastName)
	}
	if p.Email != nil {
		add("email", *p.Email)
	}
	if p.NearestCity != nil {
		add("nearestCity", *p.NearestCity)
	}
	if p.AssignedDoctor != nil {
		add("assignedDoctor", *p.AssignedDoctor)
	}
	if p.GuardianName != nil {
		add("guardianName", *p.GuardianName)
	}
	if p.MedicalConditions != nil {
		add("medicalConditions", *p.MedicalConditions)
	}
	if p.Medications != nil {
		add("medications", *p.Medications)
	}
	if p.Allergies != nil {
		add("allergies", *p.Allergies)
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.LastVisitDate != nil {
		add("lastVisitDate", *p.LastVisitDate)
	}
	return d
}

func setDoc(p *model.PatientPatch, now time.Time) bson.D {
	fields := patchFields(p)
	fields = append(fields, bson.E{Key: "updatedAt", Value: now})
	return bson.D{{Key: "$set", Value: fields}}
}

// notHeldFilter narrows f to records that differ from the patch in at least
// one field, so updatedAt is only touched on records that really change.
func notHeldFilter(f bson.D, p *model.PatientPatch) bson.D {
	return bson.D{{Key: "$and", Value: bson.A{
		f,
		bson.D{{Key: "$nor", Value: bson.A{patchFields(p)}}},
	}}}
}

func groupPipeline(g query.Grouping) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + g.Field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	if g.Limit > 0 {
		pipeline = append(pipeline,
			bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
			bson.D{{Key: "$limit", Value: g.Limit}},
		)
	}
	return pipeline
}
