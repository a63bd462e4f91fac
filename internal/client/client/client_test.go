package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/healthkeeper/internal/client/client/backendtest"
	"github.com/dmitrijs2005/healthkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *backendtest.Server, opts ...Option) *Client {
	t.Helper()
	c, err := New(srv.URL, srv.APIKey, opts...)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	_, err := New("localhost/rest", "k")
	require.Error(t, err)
}

func TestWithTimeout_LeavesSharedClientAlone(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}

	c, err := New("http://backend.test", "k", WithHTTPClient(shared), WithTimeout(3*time.Second))
	require.NoError(t, err)

	assert.Equal(t, time.Minute, shared.Timeout)
	assert.Equal(t, 3*time.Second, c.http.Timeout)
	assert.NotSame(t, shared, c.http)
}

func TestDo_SetsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	token := ""
	c, err := New(srv.URL, "anon", WithTokenSource(TokenFunc(func() string { return token })))
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, c.From("diseases").Execute(context.Background(), &rows))
	assert.Equal(t, "anon", got.Get("apikey"))
	assert.Equal(t, "Bearer anon", got.Get("Authorization"))

	token = "user-token"
	require.NoError(t, c.From("diseases").Execute(context.Background(), &rows))
	assert.Equal(t, "anon", got.Get("apikey"))
	assert.Equal(t, "Bearer user-token", got.Get("Authorization"))
}

func TestQuery_Params(t *testing.T) {
	c, err := New("http://example.test", "k")
	require.NoError(t, err)

	q := c.From("vehicles").
		Select("*").
		IsNull("deleted_at").
		ILikeAny("ab,c*", "plate", "model").
		Order("plate", true).
		Order("id", false).
		Limit(10).
		Offset(20)

	p := q.Params()
	assert.Equal(t, "*", p.Get("select"))
	assert.Equal(t, "is.null", p.Get("deleted_at"))
	assert.Equal(t, "(plate.ilike.*abc*,model.ilike.*abc*)", p.Get("or"))
	assert.Equal(t, "plate.asc,id.desc", p.Get("order"))
	assert.Equal(t, "10", p.Get("limit"))
	assert.Equal(t, "20", p.Get("offset"))

	// Params is a copy; Clone branches
	p.Set("limit", "1")
	branch := q.Clone().Eq("id", "x")
	assert.Equal(t, "10", q.Params().Get("limit"))
	assert.Empty(t, q.Params().Get("id"))
	assert.Equal(t, "eq.x", branch.Params().Get("id"))
}

func TestQuery_ILikeAnyIgnoresEmptyTerm(t *testing.T) {
	c, err := New("http://example.test", "k")
	require.NoError(t, err)
	q := c.From("t").ILikeAny("  (*) ", "a")
	assert.Empty(t, q.Params().Get("or"))
}

func TestSanitizeTerm(t *testing.T) {
	tests := map[string]string{
		"plain":        "plain",
		"  spaced  ":   "spaced",
		"a,b(c)d*e":    "abcde",
		`50% "off"\`:   "50 off",
		"":             "",
		"Mercosul ABC": "Mercosul ABC",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeTerm(in), in)
	}
}

func TestParseContentRangeTotal(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0-9/15", 15, false},
		{"*/0", 0, false},
		{"10-14/15", 15, false},
		{"0-9/*", 0, true},
		{"", 0, true},
		{"0-9", 0, true},
		{"0-9/x", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseContentRangeTotal(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRest_InsertSelectCountUpdate(t *testing.T) {
	srv := backendtest.New(t)
	srv.CreateTable("diseases")
	c := newTestClient(t, srv)
	ctx := context.Background()

	type disease struct {
		ID        string     `json:"id"`
		Name      string     `json:"name"`
		DeletedAt *time.Time `json:"deleted_at"`
	}

	for _, name := range []string{"Dengue", "Malaria", "Zika"} {
		var out []disease
		require.NoError(t, c.From("diseases").Insert(ctx, map[string]any{"name": name}, &out))
		require.Len(t, out, 1)
		assert.NotEmpty(t, out[0].ID)
	}

	n, err := c.From("diseases").IsNull("deleted_at").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = c.From("diseases").ILikeAny("ZI", "name").Limit(1).Offset(5).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "count ignores limit and offset")

	var page []disease
	require.NoError(t, c.From("diseases").Order("name", false).Limit(2).Execute(ctx, &page))
	require.Len(t, page, 2)
	assert.Equal(t, "Zika", page[0].Name)
	assert.Equal(t, "Malaria", page[1].Name)

	var updated []disease
	require.NoError(t, c.From("diseases").Eq("id", page[0].ID).
		Update(ctx, map[string]any{"deleted_at": time.Now().UTC()}, &updated))
	require.Len(t, updated, 1)
	assert.NotNil(t, updated[0].DeletedAt)

	n, err = c.From("diseases").IsNull("deleted_at").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := Single[disease](ctx, c.From("diseases").Eq("id", page[0].ID))
	require.NoError(t, err)
	assert.Equal(t, "Zika", got.Name)

	_, err = Single[disease](ctx, c.From("diseases").Eq("id", "missing"))
	assert.ErrorIs(t, err, common.ErrNotFound)

	heads := srv.RequestsTo(http.MethodHead, "/rest/v1/diseases")
	require.NotEmpty(t, heads)
	assert.Equal(t, "count=exact", heads[0].Header.Get("Prefer"))
}

func TestRest_UniqueViolation(t *testing.T) {
	srv := backendtest.New(t)
	srv.CreateTable("vehicles", "plate")
	c := newTestClient(t, srv)
	ctx := context.Background()

	require.NoError(t, c.From("vehicles").Insert(ctx, map[string]any{"plate": "ABC1D23"}, nil))
	err := c.From("vehicles").Insert(ctx, map[string]any{"plate": "ABC1D23"}, nil)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Equal(t, http.StatusConflict, StatusOf(err))
}

func TestRPC(t *testing.T) {
	srv := backendtest.New(t)
	srv.HandleProcedure("echo", func(_ *backendtest.Server, params map[string]any) (any, error) {
		return map[string]any{"success": true, "id": params["p_id"]}, nil
	})
	c := newTestClient(t, srv)
	ctx := context.Background()

	var out struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
	require.NoError(t, c.RPC(ctx, "echo", map[string]any{"p_id": "42"}, &out))
	assert.True(t, out.Success)
	assert.Equal(t, "42", out.ID)

	err := c.RPC(ctx, "missing_function", nil, nil)
	require.Error(t, err)
	assert.True(t, IsFunctionNotFound(err))
	assert.False(t, IsUniqueViolation(err))
}

func TestAPIError_Decoding(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{"rest gateway", 400, `{"code":"PGRST100","message":"bad filter","details":"d","hint":"h"}`, "PGRST100", "bad filter"},
		{"auth v2", 422, `{"code":422,"error_code":"user_already_exists","msg":"User already registered"}`, "user_already_exists", "User already registered"},
		{"oauth", 400, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`, "invalid_grant", "Invalid login credentials"},
		{"plain text", 502, "bad gateway", "", "bad gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newAPIError("POST", "/x", tt.status, []byte(tt.body))
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.wantMsg, e.Message)
			assert.Equal(t, tt.wantMsg, MessageOf(e))
		})
	}
}

func TestAPIError_Is(t *testing.T) {
	assert.ErrorIs(t, &APIError{Status: 401}, common.ErrUnauthorized)
	assert.ErrorIs(t, &APIError{Status: 403}, common.ErrUnauthorized)
	assert.ErrorIs(t, &APIError{Status: 404}, common.ErrNotFound)
	assert.ErrorIs(t, &APIError{Status: 503}, common.ErrUnavailable)
	assert.ErrorIs(t, &APIError{Status: 400, Code: "23505"}, common.ErrConflict)
	assert.NotErrorIs(t, &APIError{Status: 400}, common.ErrConflict)

	assert.True(t, IsFunctionNotFound(&APIError{Status: 400, Code: "42883"}))
	assert.True(t, IsFunctionNotFound(&APIError{Status: 404, Path: "/rest/v1/rpc/f"}))
	assert.False(t, IsFunctionNotFound(&APIError{Status: 404, Path: "/rest/v1/t"}))
	assert.False(t, IsFunctionNotFound(&APIError{Status: 404, Code: "P0002", Path: "/rest/v1/rpc/f"}))
	assert.False(t, IsFunctionNotFound(errors.New("x")))
	assert.Equal(t, 0, StatusOf(errors.New("x")))
}

func TestDo_ConnectionFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, "k", WithTimeout(time.Second))
	require.NoError(t, err)
	err = c.From("t").Execute(context.Background(), nil)
	assert.ErrorIs(t, err, common.ErrUnavailable)
}

func TestDo_CanceledContext(t *testing.T) {
	srv := backendtest.New(t)
	srv.CreateTable("t")
	c := newTestClient(t, srv)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.From("t").Execute(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_RateLimit(t *testing.T) {
	srv := backendtest.New(t)
	srv.CreateTable("t")
	c := newTestClient(t, srv, WithRateLimit(5))
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 7; i++ {
		require.NoError(t, c.From("t").Execute(ctx, nil))
	}
	// burst of 5 then two more at 5/s
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestAuth_Flow(t *testing.T) {
	srv := backendtest.New(t)
	first := true
	srv.AddUser("ana@example.com", "Secret123", backendtest.UserOptions{Role: "admin", DisplayName: "Ana", FirstAccess: &first})
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.SignInWithPassword(ctx, "ana@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))

	resp, err := c.SignInWithPassword(ctx, "ana@example.com", "Secret123")
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotNil(t, resp.User)
	assert.Equal(t, "admin", resp.User.AppMetadata.Role)
	assert.Equal(t, "Ana", resp.User.UserMetadata.DisplayName)
	require.NotNil(t, resp.User.UserMetadata.FirstAccess)
	assert.True(t, *resp.User.UserMetadata.FirstAccess)

	u, err := c.GetUser(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, u.ID)

	u, err = c.UpdateUser(ctx, resp.AccessToken, UserUpdate{
		Password: "NewSecret1",
		Data:     map[string]any{"first_access": false},
	})
	require.NoError(t, err)
	require.NotNil(t, u.UserMetadata.FirstAccess)
	assert.False(t, *u.UserMetadata.FirstAccess)
	assert.Equal(t, "NewSecret1", srv.Password("ana@example.com"))

	require.NoError(t, c.Logout(ctx, resp.AccessToken))
	assert.True(t, srv.Revoked(resp.AccessToken))

	_, err = c.GetUser(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestAuth_SignUp(t *testing.T) {
	srv := backendtest.New(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	resp, err := c.SignUp(ctx, "bo@example.com", "Secret123", map[string]any{"display_name": "Bo"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	require.NotNil(t, resp.User)
	assert.Equal(t, "Bo", resp.User.UserMetadata.DisplayName)

	_, err = c.SignUp(ctx, "bo@example.com", "Secret123", nil)
	require.Error(t, err)
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "user_already_exists", ae.Code)

	srv.SetAutoConfirm(false)
	resp, err = c.SignUp(ctx, "cy@example.com", "Secret123", nil)
	require.NoError(t, err)
	assert.Empty(t, resp.AccessToken)
	require.NotNil(t, resp.User)
	assert.Equal(t, "cy@example.com", resp.User.Email)
}
