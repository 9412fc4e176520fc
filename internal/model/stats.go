package model

// GroupCount is one bucket of a grouped count. The key is emitted as _id so
// the browser client can read aggregation output unchanged.
type GroupCount struct {
	Key   string `json:"_id" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

type PatientStats struct {
	Total              int64        `json:"total"`
	StatusDistribution []GroupCount `json:"statusDistribution"`
	TopCities          []GroupCount `json:"topCities"`
	TopDoctors         []GroupCount `json:"topDoctors"`
}

// PatientPage is one page of a listing
type PatientPage struct {
	Patients    []*Patient `json:"patients"`
	TotalPages  int        `json:"totalPages"`
	CurrentPage int        `json:"currentPage"`
	Total       int64      `json:"total"`
}

type BulkUpdateResult struct {
	MatchedCount  int64 `json:"matchedCount"`
	ModifiedCount int64 `json:"modifiedCount"`
}
