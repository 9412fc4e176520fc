package query

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/patient-records/pkg/validator"
)

func TestParseListParamsDefaults(t *testing.T) {
	p, err := ParseListParams(RawListParams{})
	require.NoError(t, err)

	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 10, p.Limit)
	assert.Equal(t, Sort{Field: "createdAt", Order: OrderDesc}, p.Sort)
	assert.Equal(t, int64(0), p.Skip())
}

func TestParseListParams(t *testing.T) {
	p, err := ParseListParams(RawListParams{Page: "3", Limit: "2", SortBy: "lastName", Order: "asc"})
	require.NoError(t, err)

	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 2, p.Limit)
	assert.Equal(t, Sort{Field: "lastName", Order: OrderAsc}, p.Sort)
	assert.Equal(t, int64(4), p.Skip())
}

func TestSkipSaturates(t *testing.T) {
	p, err := ParseListParams(RawListParams{Page: "9223372036854775807", Limit: "2"})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), p.Skip())

	assert.Equal(t, int64(0), ListParams{Page: 1, Limit: 100}.Skip())
	assert.Equal(t, int64(math.MaxInt64), ListParams{Page: math.MaxInt64 / 50, Limit: 100}.Skip())
}

func TestParseListParamsCapsLimit(t *testing.T) {
	p, err := ParseListParams(RawListParams{Limit: "5000"})
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, p.Limit)
}

func TestParseListParamsRejects(t *testing.T) {
	tests := []struct {
		name  string
		raw   RawListParams
		field string
	}{
		{"zero page", RawListParams{Page: "0"}, "page"},
		{"text page", RawListParams{Page: "two"}, "page"},
		{"negative limit", RawListParams{Limit: "-1"}, "limit"},
		{"unknown sort", RawListParams{SortBy: "password"}, "sortBy"},
		{"bad order", RawListParams{Order: "sideways"}, "order"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseListParams(tt.raw)

			var fe validator.FieldErrors
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, []string{tt.field}, fe.Fields())
		})
	}
}

func TestParseListParamsReportsAll(t *testing.T) {
	_, err := ParseListParams(RawListParams{Page: "0", Limit: "x", Order: "up"})

	var fe validator.FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, []string{"page", "limit", "order"}, fe.Fields())
}

func TestTotalPages(t *testing.T) {
	p := ListParams{Page: 1, Limit: 2}
	assert.Equal(t, 0, p.TotalPages(0))
	assert.Equal(t, 1, p.TotalPages(2))
	assert.Equal(t, 3, p.TotalPages(5))
	assert.Equal(t, 3, p.TotalPages(6))

	assert.Equal(t, 1, ListParams{Page: 1, Limit: 10}.TotalPages(5))
}
