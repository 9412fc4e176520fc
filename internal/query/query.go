// Package query turns request parameters into store-neutral listing,
// search and statistics queries. Stores render them (BSON for MongoDB) or
// evaluate them directly (the in-memory demo store).
package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jwalitptl/patient-records/pkg/validator"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	DefaultSortBy = "createdAt"

	// TopN bounds the city and doctor groupings in statistics.
	TopN = 10
)

type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Direction is the store sort direction: 1 ascending, -1 descending.
func (o Order) Direction() int {
	if o == OrderAsc {
		return 1
	}
	return -1
}

// sortable is the closed set of attributes a listing can be ordered by.
var sortable = map[string]bool{
	"patientCode":    true,
	"firstName":      true,
	"lastName":       true,
	"email":          true,
	"nearestCity":    true,
	"assignedDoctor": true,
	"guardianName":   true,
	"status":         true,
	"lastVisitDate":  true,
	"createdAt":      true,
	"updatedAt":      true,
}

// Sortable reports whether name is a valid sortBy value.
func Sortable(name string) bool {
	return sortable[name]
}

// Sort is a single-key ordering
type Sort struct {
	Field string
	Order Order
}

// DefaultSort is used by searches, which take no sort parameters.
var DefaultSort = Sort{Field: DefaultSortBy, Order: OrderDesc}

// ListParams are the listing parameters after parsing
type ListParams struct {
	Page  int
	Limit int
	Sort  Sort
}

// RawListParams holds the unparsed query string values; empty means absent.
type RawListParams struct {
	Page   string `form:"page"`
	Limit  string `form:"limit"`
	SortBy string `form:"sortBy"`
	Order  string `form:"order"`
}

// ParseListParams validates raw parameters, applying defaults for absent
// ones. Every violation is reported, not just the first.
func ParseListParams(raw RawListParams) (ListParams, error) {
	p := ListParams{
		Page:  DefaultPage,
		Limit: DefaultLimit,
		Sort:  DefaultSort,
	}
	var errs validator.FieldErrors

	if raw.Page != "" {
		n, err := strconv.Atoi(strings.TrimSpace(raw.Page))
		if err != nil || n < 1 {
			errs = append(errs, validator.FieldError{Field: "page", Message: "page must be a positive integer"})
		} else {
			p.Page = n
		}
	}

	if raw.Limit != "" {
		n, err := strconv.Atoi(strings.TrimSpace(raw.Limit))
		if err != nil || n < 1 {
			errs = append(errs, validator.FieldError{Field: "limit", Message: "limit must be a positive integer"})
		} else {
			if n > MaxLimit {
				n = MaxLimit
			}
			p.Limit = n
		}
	}

	if raw.SortBy != "" {
		if !Sortable(raw.SortBy) {
			errs = append(errs, validator.FieldError{Field: "sortBy", Message: fmt.Sprintf("cannot sort by %q", raw.SortBy)})
		} else {
			p.Sort.Field = raw.SortBy
		}
	}

	switch Order(raw.Order) {
	case "":
	case OrderAsc, OrderDesc:
		p.Sort.Order = Order(raw.Order)
	default:
		errs = append(errs, validator.FieldError{Field: "order", Message: "order must be asc or desc"})
	}

	if len(errs) > 0 {
		return ListParams{}, errs
	}
	return p, nil
}

// Skip is the number of records before the requested page. It saturates at
// math.MaxInt64 instead of overflowing for absurd page numbers.
func (p ListParams) Skip() int64 {
	pages, limit := int64(p.Page-1), int64(p.Limit)
	if pages <= 0 || limit <= 0 {
		return 0
	}
	if pages > math.MaxInt64/limit {
		return math.MaxInt64
	}
	return pages * limit
}

// TotalPages is ceil(total / limit).
func (p ListParams) TotalPages(total int64) int {
	if total <= 0 {
		return 0
	}
	limit := int64(p.Limit)
	return int((total + limit - 1) / limit)
}
