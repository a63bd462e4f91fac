package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/healthkeeper/internal/client/client/backendtest"
	"github.com/dmitrijs2005/healthkeeper/internal/client/config"
	"github.com/dmitrijs2005/healthkeeper/internal/client/models"
	"github.com/dmitrijs2005/healthkeeper/internal/client/services"
	"github.com/dmitrijs2005/healthkeeper/internal/common"
	"github.com/dmitrijs2005/healthkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	srv *backendtest.Server
	svc *services.Services
	out *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := backendtest.New(t)
	for _, tbl := range []string{"diseases", "vehicles", "expenses", "administrators"} {
		srv.CreateTable(tbl)
	}
	srv.AddUser("ana@example.com", "Secret123", backendtest.UserOptions{Role: "staff", DisplayName: "Ana"})

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.BackendURL = srv.URL
	cfg.APIKey = srv.APIKey
	cfg.SessionDBPath = filepath.Join(t.TempDir(), "session.db")
	cfg.RequestsPerSecond = 0
	cfg.PageSize = 2
	cfg.RedirectURL = "https://app.example/login"

	svc, err := services.New(context.Background(), cfg, services.Options{Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return &harness{srv: srv, svc: svc, out: &bytes.Buffer{}}
}

func (h *harness) app(input string) *App {
	return newApp(h.svc, strings.NewReader(input), h.out)
}

// stubPasswords answers password prompts in order.
func stubPasswords(t *testing.T, pws ...string) {
	t.Helper()
	orig := getPassword
	t.Cleanup(func() { getPassword = orig })
	getPassword = func(string, io.Writer) ([]byte, error) {
		if len(pws) == 0 {
			return nil, io.EOF
		}
		pw := pws[0]
		pws = pws[1:]
		return []byte(pw), nil
	}
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stubPasswords(t, "wrong", "Secret123")
	a := h.app("ana@example.com\nana@example.com\n")

	err := a.Login(ctx)
	require.ErrorIs(t, err, common.ErrInvalidCredentials)
	assert.False(t, a.isLoggedIn())

	require.NoError(t, a.Login(ctx))
	assert.Contains(t, h.out.String(), "Signed in as Ana (staff)")
	assert.Equal(t, "(ana@example.com staff)", a.getStatus())

	require.NoError(t, a.Logout(ctx))
	assert.False(t, a.isLoggedIn())
	assert.Equal(t, "", a.getStatus())
}

func TestRegister(t *testing.T) {
	h := newHarness(t)
	stubPasswords(t, "Secret123", "Secret123")
	ctx := context.Background()

	a := h.app("joao@example.com\nJoão\nana@example.com\nAna again\n")
	require.NoError(t, a.Register(ctx))
	assert.Contains(t, h.out.String(), "Welcome, João! You are signed in as citizen.")

	assert.ErrorIs(t, a.Register(ctx), common.ErrAccountExists)
}

func TestCommandsRequireLogin(t *testing.T) {
	h := newHarness(t)
	a := h.app("")
	ctx := context.Background()

	assert.ErrorIs(t, a.List(ctx, "vehicles", 1), errNotSignedIn)
	assert.ErrorIs(t, a.Search(ctx, "vehicles", "x"), errNotSignedIn)
	assert.ErrorIs(t, a.AddExpense(ctx), errNotSignedIn)
	assert.ErrorIs(t, a.Delete(ctx, "vehicles", "id"), errNotSignedIn)
	assert.Empty(t, h.srv.Requests())

	require.NoError(t, a.WhoAmI(ctx))
	assert.Contains(t, h.out.String(), "Not signed in")
}

func TestExpenseCommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.Sessions.SignIn(ctx, "ana@example.com", "Secret123")
	require.NoError(t, err)
	v, err := h.svc.Repos.Vehicles.Create(ctx, models.VehicleInput{Plate: "ABC1D23", Model: "Uno", Brand: "Fiat", Year: 2020})
	require.NoError(t, err)

	input := strings.Join([]string{
		// addexpense
		v.ID, "2026-03-01", "diesel", "Posto Central", "3", "12,50", "card",
		// addexpense with a bad quantity
		v.ID, "", "oil", "", "many",
		// delete
		"duplicate",
	}, "\n") + "\n"
	a := h.app(input)

	require.NoError(t, a.AddExpense(ctx))
	assert.Contains(t, h.out.String(), "total 37.50")
	assert.ErrorContains(t, a.AddExpense(ctx), `"many" is not a number`)

	p, err := h.svc.Repos.Expenses.List(ctx, 1, 10, "")
	require.NoError(t, err)
	require.Len(t, p.Items, 1)
	e := p.Items[0]
	assert.Equal(t, models.PaymentCard, e.PaymentMethod)

	h.out.Reset()
	require.NoError(t, a.List(ctx, "expenses", 1))
	out := h.out.String()
	assert.Contains(t, out, "diesel")
	assert.Contains(t, out, "37.50")
	assert.Contains(t, out, "page 1 of 1 (1 records)")

	require.NoError(t, a.Delete(ctx, "expense", e.ID))
	h.out.Reset()
	require.NoError(t, a.List(ctx, "expenses", 1))
	assert.Contains(t, h.out.String(), "No records found")

	assert.ErrorIs(t, a.List(ctx, "patients", 1), errUnknownEntity)
}

func TestSearch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.Sessions.SignIn(ctx, "ana@example.com", "Secret123")
	require.NoError(t, err)
	for _, d := range []models.DiseaseInput{
		{Name: "Dengue", CIDCode: "A90"},
		{Name: "Febre amarela", CIDCode: "A95"},
		{Name: "Zika", CIDCode: "A92.8"},
	} {
		_, err := h.svc.Repos.Diseases.Create(ctx, d)
		require.NoError(t, err)
	}
	a := h.app("")

	require.NoError(t, a.Search(ctx, "diseases", "febre"))
	out := h.out.String()
	assert.Contains(t, out, "Febre amarela")
	assert.NotContains(t, out, "Dengue")
	assert.Contains(t, out, "page 1 of 1 (1 records)")

	h.out.Reset()
	require.NoError(t, a.Search(ctx, "diseases", ""))
	assert.Contains(t, h.out.String(), "page 1 of 2 (3 records)")
}

func TestLink_FirstAccess(t *testing.T) {
	h := newHarness(t)
	yes := true
	h.srv.AddUser("novo@example.com", "Temp0rary", backendtest.UserOptions{FirstAccess: &yes})
	access, refresh, err := h.srv.IssueLink("novo@example.com")
	require.NoError(t, err)
	ctx := context.Background()

	stubPasswords(t, "weak", "weak", "N3wPassword", "N3wPassword")
	a := h.app("")
	require.NoError(t, a.Link(ctx, "https://app.example/cb#access_token="+access+"&refresh_token="+refresh))

	out := h.out.String()
	assert.Contains(t, out, "must have at least 8 characters")
	assert.Contains(t, out, "Password set. Sign in again with your new password.")
	assert.Contains(t, out, "Sign-in page: https://app.example/login")
	assert.False(t, a.isLoggedIn())
	assert.Equal(t, "N3wPassword", h.srv.Password("novo@example.com"))
}

func TestLink_Returning(t *testing.T) {
	h := newHarness(t)
	access, refresh, err := h.srv.IssueLink("ana@example.com")
	require.NoError(t, err)
	a := h.app("")
	ctx := context.Background()

	require.NoError(t, a.Link(ctx, "https://app.example/cb?access_token="+access+"&refresh_token="+refresh))
	assert.Contains(t, h.out.String(), "Signed in as Ana (staff)")
	assert.True(t, a.isLoggedIn())

	err = a.Link(ctx, "https://app.example/cb#error_description=Email+link+is+invalid+or+has+expired")
	assert.ErrorIs(t, err, common.ErrInvalidOrExpiredLink)
}

func TestREPL_Session(t *testing.T) {
	h := newHarness(t)
	stubPasswords(t, "Secret123")

	a := h.app("login\nana@example.com\nwhoami\nlist vehicles\nlogout\nwhoami\nexit\n")
	runREPL(context.Background(), a, a.getStatus, a.reader, a.out)

	out := h.out.String()
	assert.Contains(t, out, "Ana <ana@example.com>")
	assert.Contains(t, out, "No records found")
	assert.Contains(t, out, "Signed out")
	assert.Contains(t, out, "hk (ana@example.com staff)> ")
	assert.Contains(t, out, "Bye!")
	assert.Nil(t, h.svc.Sessions.CurrentUser())
}
