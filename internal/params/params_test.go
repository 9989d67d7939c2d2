package params

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParsePagination(t *testing.T) {
	var tests = []struct {
		query  string
		limit  int
		page   int
		offset int
	}{
		{query: "", limit: DefaultLimit, page: 1, offset: 0},
		{query: "limit=30&page=2", limit: 30, page: 2, offset: 30},
		{query: "limit=500", limit: MaxLimit, page: 1, offset: 0},
		{query: "limit=-1&page=0", limit: DefaultLimit, page: 1, offset: 0},
		{query: "limit=abc&page=x", limit: DefaultLimit, page: 1, offset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			p := ParsePagination(q)
			require.Equal(t, tt.limit, p.Limit)
			require.Equal(t, tt.page, p.Page)
			require.Equal(t, tt.offset, p.Offset)
		})
	}
}

func TestComputeMeta(t *testing.T) {
	p := Pagination{Limit: 10, Page: 2}
	p.ComputeMeta(25)
	require.Equal(t, 3, p.TotalPages)
	require.True(t, p.HasPrev)
	require.True(t, p.HasNext)

	p = Pagination{Limit: 10, Page: 3}
	p.ComputeMeta(25)
	require.False(t, p.HasNext)
}

func TestParseSince(t *testing.T) {
	since, err := ParseSince(url.Values{})
	require.NoError(t, err)
	require.Nil(t, since)

	since, err = ParseSince(url.Values{"since": {"2026-10-01"}})
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), *since)

	since, err = ParseSince(url.Values{"since": {"2026-10-01T08:00:00Z"}})
	require.NoError(t, err)
	require.Equal(t, 8, since.Hour())

	_, err = ParseSince(url.Values{"since": {"yesterday"}})
	require.Error(t, err)
}
