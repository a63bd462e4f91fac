package backendtest

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

var reserved = map[string]bool{"select": true, "order": true, "limit": true, "offset": true, "or": true}

// CreateTable registers an empty table. unique lists columns that reject
// duplicate values.
func (s *Server) CreateTable(name string, unique ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = &table{unique: unique}
}

// Insert stores row in table, assigning id and timestamps when missing, and
// returns the stored copy.
func (s *Server) Insert(tableName string, row Row) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(tableName, row)
}

func (s *Server) insertLocked(tableName string, row Row) (Row, error) {
	t, ok := s.tables[tableName]
	if !ok {
		return nil, missingTable(tableName)
	}
	row = row.clone()
	if row.String("id") == "" {
		row["id"] = uuid.NewString()
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = now
	}
	if _, ok := row["updated_at"]; !ok {
		row["updated_at"] = now
	}
	if _, ok := row["deleted_at"]; !ok {
		row["deleted_at"] = nil
	}
	if err := t.checkUnique(tableName, row, -1); err != nil {
		return nil, err
	}
	t.rows = append(t.rows, row)
	return row.clone(), nil
}

// Patch merges patch into the row with the given id.
func (s *Server) Patch(tableName, id string, patch Row) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableName]
	if !ok {
		return nil, missingTable(tableName)
	}
	for i, row := range t.rows {
		if row.String("id") == id {
			updated, err := t.patchAt(tableName, i, patch)
			if err != nil {
				return nil, err
			}
			return updated.clone(), nil
		}
	}
	return nil, &Error{Status: http.StatusNotFound, Code: "P0002", Message: "row not found"}
}

// Rows returns a copy of every row in table, soft-deleted ones included.
func (s *Server) Rows(tableName string) []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableName]
	if !ok {
		return nil
	}
	out := make([]Row, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, r.clone())
	}
	return out
}

// Row returns a copy of the row with the given id.
func (s *Server) Row(tableName, id string) (Row, bool) {
	for _, r := range s.Rows(tableName) {
		if r.String("id") == id {
			return r, true
		}
	}
	return nil, false
}

func (t *table) patchAt(tableName string, i int, patch Row) (Row, error) {
	next := t.rows[i].clone()
	for k, v := range patch {
		next[k] = v
	}
	if err := t.checkUnique(tableName, next, i); err != nil {
		return nil, err
	}
	t.rows[i] = next
	return next, nil
}

func (t *table) checkUnique(tableName string, row Row, skip int) error {
	for _, col := range t.unique {
		v, ok := row[col]
		if !ok || v == nil {
			continue
		}
		for i, other := range t.rows {
			if i == skip {
				continue
			}
			if ov, ok := other[col]; ok && ov != nil && fmt.Sprint(ov) == fmt.Sprint(v) {
				return &Error{
					Status:  http.StatusConflict,
					Code:    "23505",
					Message: fmt.Sprintf("duplicate key value violates unique constraint \"%s_%s_key\"", tableName, col),
					Details: fmt.Sprintf("Key (%s)=(%v) already exists.", col, v),
				}
			}
		}
	}
	return nil
}

func missingTable(name string) *Error {
	return &Error{Status: http.StatusNotFound, Code: "42P01", Message: fmt.Sprintf("relation \"public.%s\" does not exist", name)}
}

type predicate func(Row) bool

func parseFilters(q url.Values) ([]predicate, error) {
	var preds []predicate
	for key, values := range q {
		if key == "or" {
			for _, v := range values {
				p, err := parseOr(v)
				if err != nil {
					return nil, err
				}
				preds = append(preds, p)
			}
			continue
		}
		if reserved[key] {
			continue
		}
		for _, v := range values {
			p, err := parseCondition(key, v)
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		}
	}
	return preds, nil
}

func parseCondition(col, expr string) (predicate, error) {
	op, arg, ok := strings.Cut(expr, ".")
	if !ok {
		return nil, fmt.Errorf("malformed filter %s=%s", col, expr)
	}
	switch op {
	case "eq":
		return func(r Row) bool {
			v, ok := r[col]
			return ok && v != nil && formatValue(v) == arg
		}, nil
	case "neq":
		return func(r Row) bool {
			v, ok := r[col]
			return ok && v != nil && formatValue(v) != arg
		}, nil
	case "is":
		switch arg {
		case "null":
			return func(r Row) bool { return r[col] == nil }, nil
		case "not.null":
			return func(r Row) bool { return r[col] != nil }, nil
		}
	case "ilike":
		return ilike(col, arg), nil
	}
	return nil, fmt.Errorf("unsupported operator %q on %s", op, col)
}

func parseOr(expr string) (predicate, error) {
	if !strings.HasPrefix(expr, "(") || !strings.HasSuffix(expr, ")") {
		return nil, fmt.Errorf("malformed or=%s", expr)
	}
	var alts []predicate
	for _, part := range strings.Split(expr[1:len(expr)-1], ",") {
		col, cond, ok := strings.Cut(part, ".")
		if !ok {
			return nil, fmt.Errorf("malformed or term %q", part)
		}
		p, err := parseCondition(col, cond)
		if err != nil {
			return nil, err
		}
		alts = append(alts, p)
	}
	return func(r Row) bool {
		for _, p := range alts {
			if p(r) {
				return true
			}
		}
		return false
	}, nil
}

func ilike(col, pattern string) predicate {
	prefix := strings.HasPrefix(pattern, "*")
	suffix := strings.HasSuffix(pattern, "*")
	needle := strings.ToLower(strings.Trim(pattern, "*"))
	return func(r Row) bool {
		s, ok := r[col].(string)
		if !ok {
			return false
		}
		s = strings.ToLower(s)
		switch {
		case prefix && suffix:
			return strings.Contains(s, needle)
		case prefix:
			return strings.HasSuffix(s, needle)
		case suffix:
			return strings.HasPrefix(s, needle)
		}
		return s == needle
	}
}

func formatValue(v any) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func sortRows(rows []Row, order string) error {
	if order == "" {
		return nil
	}
	type key struct {
		col  string
		desc bool
	}
	var keys []key
	for _, term := range strings.Split(order, ",") {
		col, dir, _ := strings.Cut(term, ".")
		switch dir {
		case "", "asc":
			keys = append(keys, key{col: col})
		case "desc":
			keys = append(keys, key{col: col, desc: true})
		default:
			return fmt.Errorf("malformed order term %q", term)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			c := compareValues(rows[i][k.col], rows[j][k.col])
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return nil
}

// compareValues orders nulls last.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func (s *Server) match(tableName string, q url.Values) ([]Row, error) {
	t, ok := s.tables[tableName]
	if !ok {
		return nil, missingTable(tableName)
	}
	preds, err := parseFilters(q)
	if err != nil {
		return nil, &Error{Status: http.StatusBadRequest, Code: "PGRST100", Message: err.Error()}
	}
	var out []Row
	for _, r := range t.rows {
		ok := true
		for _, p := range preds {
			if !p(r) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r.clone())
		}
	}
	return out, nil
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	q := r.URL.Query()
	s.mu.Lock()
	rows, err := s.match(chi.URLParam(r, "table"), q)
	s.mu.Unlock()
	if err != nil {
		writeBackendError(w, err)
		return
	}
	if err := sortRows(rows, q.Get("order")); err != nil {
		writeError(w, &Error{Status: http.StatusBadRequest, Code: "PGRST100", Message: err.Error()})
		return
	}
	total := len(rows)
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset > len(rows) {
		offset = len(rows)
	}
	rows = rows[offset:]
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n < len(rows) {
			rows = rows[:n]
		}
	}

	totalPart := "*"
	if strings.Contains(r.Header.Get("Prefer"), "count=exact") {
		totalPart = strconv.Itoa(total)
	}
	rangePart := "*"
	if len(rows) > 0 {
		rangePart = fmt.Sprintf("%d-%d", offset, offset+len(rows)-1)
	}
	w.Header().Set("Content-Range", rangePart+"/"+totalPart)
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	if rows == nil {
		rows = []Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	var row Row
	if err := decodeBody(r, &row); err != nil || row == nil {
		writeError(w, &Error{Status: http.StatusBadRequest, Code: "PGRST102", Message: "invalid body"})
		return
	}
	stored, err := s.Insert(chi.URLParam(r, "table"), row)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, []Row{stored})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	var patch Row
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, &Error{Status: http.StatusBadRequest, Code: "PGRST102", Message: "invalid body"})
		return
	}
	name := chi.URLParam(r, "table")
	s.mu.Lock()
	defer s.mu.Unlock()
	matched, err := s.match(name, r.URL.Query())
	if err != nil {
		writeBackendError(w, err)
		return
	}
	t := s.tables[name]
	out := []Row{}
	for _, m := range matched {
		for i, row := range t.rows {
			if row.String("id") != m.String("id") {
				continue
			}
			updated, err := t.patchAt(name, i, patch)
			if err != nil {
				writeBackendError(w, err)
				return
			}
			out = append(out, updated.clone())
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleProcedure registers p under name, replacing any previous one.
func (s *Server) HandleProcedure(name string, p Procedure) {
	s.mu.Lock()
	s.procs[name] = p
	s.mu.Unlock()
}

// RemoveProcedure makes calls to name answer "function not found".
func (s *Server) RemoveProcedure(name string) {
	s.mu.Lock()
	delete(s.procs, name)
	s.mu.Unlock()
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	name := chi.URLParam(r, "name")
	s.mu.Lock()
	p, ok := s.procs[name]
	s.mu.Unlock()
	if !ok {
		writeError(w, &Error{
			Status:  http.StatusNotFound,
			Code:    "PGRST202",
			Message: fmt.Sprintf("Could not find the function public.%s in the schema cache", name),
		})
		return
	}
	params := map[string]any{}
	if err := decodeBody(r, &params); err != nil {
		writeError(w, &Error{Status: http.StatusBadRequest, Code: "PGRST102", Message: "invalid body"})
		return
	}
	out, err := p(s, params)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeBackendError(w http.ResponseWriter, err error) {
	var be *Error
	if errors.As(err, &be) {
		writeError(w, be)
		return
	}
	writeError(w, &Error{Status: http.StatusInternalServerError, Code: "XX000", Message: err.Error()})
}

// CreateProcedure returns a procedure that inserts its p_-prefixed params
// into table after applying derive, answering {success, message, id}.
func CreateProcedure(tableName string, derive func(Row)) Procedure {
	return func(s *Server, params map[string]any) (any, error) {
		row := stripPrefix(params)
		delete(row, "id")
		if derive != nil {
			derive(row)
		}
		stored, err := s.Insert(tableName, row)
		if err != nil {
			return nil, err
		}
		return Row{"success": true, "message": "created", "id": stored["id"]}, nil
	}
}

// UpdateProcedure returns a procedure that patches the row named by p_id
// with the remaining p_-prefixed params.
func UpdateProcedure(tableName string, derive func(Row)) Procedure {
	return func(s *Server, params map[string]any) (any, error) {
		row := stripPrefix(params)
		id := row.String("id")
		delete(row, "id")
		if derive != nil {
			derive(row)
		}
		row["updated_at"] = s.now().UTC().Format(time.RFC3339Nano)
		if _, err := s.Patch(tableName, id, row); err != nil {
			return nil, err
		}
		return Row{"success": true, "message": "updated", "id": id}, nil
	}
}

// SoftDeleteProcedure returns a procedure that marks p_id deleted and
// records p_reason in the audit trail.
func SoftDeleteProcedure(tableName string) Procedure {
	return func(s *Server, params map[string]any) (any, error) {
		row := stripPrefix(params)
		id := row.String("id")
		now := s.now().UTC().Format(time.RFC3339Nano)
		if _, err := s.Patch(tableName, id, Row{"deleted_at": now, "updated_at": now}); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.audit = append(s.audit, AuditEntry{Table: tableName, ID: id, Reason: row.String("reason")})
		s.mu.Unlock()
		return Row{"success": true, "message": "deleted", "id": id}, nil
	}
}

// Audit returns the soft-delete audit trail.
func (s *Server) Audit() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEntry(nil), s.audit...)
}

func stripPrefix(params map[string]any) Row {
	row := make(Row, len(params))
	for k, v := range params {
		row[strings.TrimPrefix(k, "p_")] = v
	}
	return row
}
