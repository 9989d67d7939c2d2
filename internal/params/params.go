package params

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Pagination holds the page requested by ?page=&limit= and, once the total is
// known, the metadata sent back with the list.
type Pagination struct {
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	Page       int  `json:"page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// ParsePagination reads ?limit= and ?page=. Bad values fall back to defaults.
func ParsePagination(q url.Values) Pagination {
	p := Pagination{Limit: DefaultLimit, Page: 1}

	if limit, err := strconv.Atoi(strings.TrimSpace(q.Get("limit"))); err == nil {
		switch {
		case limit <= 0:
		case limit > MaxLimit:
			p.Limit = MaxLimit
		default:
			p.Limit = limit
		}
	}
	if page, err := strconv.Atoi(strings.TrimSpace(q.Get("page"))); err == nil && page > 0 {
		p.Page = page
	}

	p.Offset = (p.Page - 1) * p.Limit
	return p
}

// ComputeMeta fills in the totals after the query ran.
func (p *Pagination) ComputeMeta(total int) {
	p.Total = total
	if p.Limit > 0 {
		p.TotalPages = int(math.Ceil(float64(total) / float64(p.Limit)))
	}
	p.HasPrev = p.Page > 1
	p.HasNext = (p.Page * p.Limit) < total
}

// ParseSince reads ?since= as an RFC 3339 timestamp or a YYYY-MM-DD date.
// A missing value returns nil.
func ParseSince(q url.Values) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get("since"))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid since %q: want RFC 3339 or YYYY-MM-DD", raw)
}
