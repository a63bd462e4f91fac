package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/healthkeeper/internal/client/config"
	"github.com/dmitrijs2005/healthkeeper/internal/client/services"
	"github.com/dmitrijs2005/healthkeeper/internal/client/session"
)

// App is the interactive client. It reads commands from its input and
// writes everything it shows to its output.
type App struct {
	svc    *services.Services
	reader *bufio.Reader
	out    io.Writer
	tables map[string]table
}

// NewApp builds the services from c and binds the App to the terminal.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	svc, err := services.New(ctx, c, services.Options{})
	if err != nil {
		return nil, err
	}
	return newApp(svc, os.Stdin, os.Stdout), nil
}

func newApp(svc *services.Services, in io.Reader, out io.Writer) *App {
	return &App{
		svc:    svc,
		reader: bufio.NewReader(in),
		out:    out,
		tables: newTables(svc.Repos),
	}
}

// Run starts the REPL and blocks until the user exits.
func (a *App) Run(ctx context.Context) {
	defer func() {
		if err := a.svc.Close(); err != nil {
			a.svc.Log.Error(ctx, "close services", "error", err)
		}
	}()
	fmt.Fprintln(a.out, "Welcome to HealthKeeper CLI (type 'help' for commands)")
	if u := a.svc.Sessions.CurrentUser(); u != nil {
		fmt.Fprintf(a.out, "Session restored for %s\n", u.Email)
	}
	runREPL(ctx, a, a.getStatus, a.reader, a.out)
}

func (a *App) isLoggedIn() bool {
	return a.svc.Sessions.CurrentUser() != nil
}

func (a *App) getStatus() string {
	u := a.svc.Sessions.CurrentUser()
	if u == nil {
		return ""
	}
	return fmt.Sprintf("(%s %s)", u.Email, u.Role)
}

func (a *App) requireLogin() error {
	if !a.isLoggedIn() {
		return errNotSignedIn
	}
	return nil
}

// WhoAmI prints the signed-in user.
func (a *App) WhoAmI(ctx context.Context) error {
	u := a.svc.Sessions.CurrentUser()
	if u == nil {
		fmt.Fprintln(a.out, "Not signed in")
		return nil
	}
	fmt.Fprintf(a.out, "%s <%s>\nrole: %s\nid:   %s\n", u.DisplayName, u.Email, u.Role, u.ID)
	if u.FirstAccess {
		fmt.Fprintln(a.out, "A password has not been chosen yet; use the access link again to set one.")
	}
	return nil
}

func roleLabel(r session.Role) string {
	switch r {
	case session.RoleAdmin:
		return "administrator"
	case session.RoleStaff:
		return "staff"
	default:
		return "citizen"
	}
}
