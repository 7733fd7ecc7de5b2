package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/aerosuite/platform/pkg/storage"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 200
)

type pagination struct {
	Page  int
	Limit int
}

// parseQuery extracts pagination, sort and filter parameters. Filters
// arrive as repeated filter=field:value pairs; sort accepts an optional
// "-" prefix for descending order.
func parseQuery(r *http.Request) (storage.Query, pagination) {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	var filter storage.Filter
	for _, raw := range q["filter"] {
		field, value, ok := strings.Cut(raw, ":")
		if !ok || field == "" {
			continue
		}
		if filter == nil {
			filter = storage.Filter{}
		}
		filter[field] = value
	}
	// Common filters also accepted as plain parameters
	for _, field := range []string{"status", "category"} {
		if v := q.Get(field); v != "" {
			if filter == nil {
				filter = storage.Filter{}
			}
			filter[field] = v
		}
	}

	query := storage.Query{
		Filter: filter,
		Skip:   (page - 1) * limit,
		Limit:  limit,
		Sort:   q.Get("sort"),
	}
	return query, pagination{Page: page, Limit: limit}
}
