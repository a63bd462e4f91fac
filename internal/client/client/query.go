package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/healthkeeper/internal/common"
)

// Query builds one request against a table or view of the REST gateway.
// Builder methods mutate and return q; use Clone to branch.
type Query struct {
	c      *Client
	table  string
	params url.Values
}

// From starts a query on table.
func (c *Client) From(table string) *Query {
	return &Query{c: c, table: table, params: url.Values{}}
}

func (q *Query) Clone() *Query {
	params := make(url.Values, len(q.params))
	for k, v := range q.params {
		params[k] = append([]string(nil), v...)
	}
	return &Query{c: q.c, table: q.table, params: params}
}

func (q *Query) Select(columns string) *Query {
	q.params.Set("select", columns)
	return q
}

// Eq adds column = value.
func (q *Query) Eq(column, value string) *Query {
	q.params.Add(column, "eq."+value)
	return q
}

// IsNull adds column IS NULL.
func (q *Query) IsNull(column string) *Query {
	q.params.Add(column, "is.null")
	return q
}

// ILikeAny adds a case-insensitive substring match of term against any of
// columns, OR-combined. An empty term (after sanitizing) adds nothing.
func (q *Query) ILikeAny(term string, columns ...string) *Query {
	term = SanitizeTerm(term)
	if term == "" || len(columns) == 0 {
		return q
	}
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		parts = append(parts, col+".ilike.*"+term+"*")
	}
	q.params.Add("or", "("+strings.Join(parts, ",")+")")
	return q
}

// Order appends an ordering term; earlier terms take precedence.
func (q *Query) Order(column string, ascending bool) *Query {
	term := column + ".asc"
	if !ascending {
		term = column + ".desc"
	}
	if prev := q.params.Get("order"); prev != "" {
		term = prev + "," + term
	}
	q.params.Set("order", term)
	return q
}

func (q *Query) Limit(n int) *Query {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

func (q *Query) Offset(n int) *Query {
	q.params.Set("offset", strconv.Itoa(n))
	return q
}

// Params returns a copy of the encoded query parameters.
func (q *Query) Params() url.Values {
	return q.Clone().params
}

func (q *Query) path() string {
	return q.c.restPath + "/" + url.PathEscape(q.table)
}

// Execute runs a GET and decodes the row array into out.
func (q *Query) Execute(ctx context.Context, out any) error {
	_, err := q.c.do(ctx, request{method: http.MethodGet, path: q.path(), query: q.params}, out)
	return err
}

// Single runs a GET expecting at most one row; no row is common.ErrNotFound.
func Single[T any](ctx context.Context, q *Query) (T, error) {
	var rows []T
	var zero T
	if err := q.Clone().Limit(1).Execute(ctx, &rows); err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, fmt.Errorf("%s: %w", q.table, common.ErrNotFound)
	}
	return rows[0], nil
}

// Count returns the number of rows matching the query filters. limit,
// offset and order are ignored.
func (q *Query) Count(ctx context.Context) (int, error) {
	params := q.Params()
	params.Del("limit")
	params.Del("offset")
	params.Del("order")

	resp, err := q.c.do(ctx, request{
		method: http.MethodHead,
		path:   q.path(),
		query:  params,
		prefer: []string{"count=exact"},
	}, nil)
	if err != nil {
		return 0, err
	}
	return ParseContentRangeTotal(resp.header.Get(common.ContentRangeHeaderName))
}

// Insert posts row and decodes the created representation into out.
func (q *Query) Insert(ctx context.Context, row any, out any) error {
	_, err := q.c.do(ctx, request{
		method: http.MethodPost,
		path:   q.path(),
		query:  q.params,
		body:   row,
		prefer: []string{"return=representation"},
	}, out)
	return err
}

// Update patches the rows matching the filters and decodes the updated
// representation into out.
func (q *Query) Update(ctx context.Context, patch any, out any) error {
	_, err := q.c.do(ctx, request{
		method: http.MethodPatch,
		path:   q.path(),
		query:  q.params,
		body:   patch,
		prefer: []string{"return=representation"},
	}, out)
	return err
}

// ParseContentRangeTotal extracts the total from "0-9/15" or "*/15".
func ParseContentRangeTotal(h string) (int, error) {
	_, total, ok := strings.Cut(strings.TrimSpace(h), "/")
	if !ok || total == "" || total == "*" {
		return 0, fmt.Errorf("content-range %q has no total", h)
	}
	n, err := strconv.Atoi(total)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("content-range %q has invalid total", h)
	}
	return n, nil
}

// SanitizeTerm strips characters reserved by the gateway's filter grammar
// and LIKE wildcards from a user search term.
func SanitizeTerm(term string) string {
	term = strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')', '*', '%', '"', '\\':
			return -1
		}
		return r
	}, term)
	return strings.TrimSpace(term)
}
