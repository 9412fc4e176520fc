package query

import (
	"sort"

	"github.com/jwalitptl/patient-records/internal/model"
)

// Grouping is a count-by-attribute aggregation over the whole collection.
type Grouping struct {
	Field string
	// Limit > 0 sorts buckets by count descending and keeps the first Limit.
	Limit int
}

var (
	StatusGrouping = Grouping{Field: "status"}
	CityGrouping   = Grouping{Field: "nearestCity", Limit: TopN}
	DoctorGrouping = Grouping{Field: "assignedDoctor", Limit: TopN}
)

// Key reads the grouping attribute from p.
func (g Grouping) Key(p *model.Patient) string {
	switch g.Field {
	case "status":
		return string(p.Status)
	case "nearestCity":
		return p.NearestCity
	case "assignedDoctor":
		return p.AssignedDoctor
	default:
		return ""
	}
}

// Ranked orders buckets by count descending with key ascending as the tie
// break, then truncates to Limit. Without a Limit buckets are only sorted by
// key so output is stable.
func (g Grouping) Ranked(buckets []model.GroupCount) []model.GroupCount {
	out := append([]model.GroupCount{}, buckets...)
	if g.Limit <= 0 {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > g.Limit {
		out = out[:g.Limit]
	}
	return out
}

// Count groups patients in process.
func (g Grouping) Count(patients []*model.Patient) []model.GroupCount {
	counts := make(map[string]int64)
	for _, p := range patients {
		counts[g.Key(p)]++
	}
	buckets := make([]model.GroupCount, 0, len(counts))
	for k, n := range counts {
		buckets = append(buckets, model.GroupCount{Key: k, Count: n})
	}
	return g.Ranked(buckets)
}
