package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/healthkeeper/internal/client/session"
	"github.com/dmitrijs2005/healthkeeper/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for an email, a display name and a password and creates
// the account. New accounts are citizens until an administrator grants a
// role.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	name, err := getSimpleText(a.reader, "Enter display name", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword("Enter password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	s, err := a.svc.Sessions.SignUp(ctx, email, string(password), session.Profile{DisplayName: name})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Welcome, %s! You are signed in as %s.\n", s.User.DisplayName, roleLabel(s.User.Role))
	return nil
}

// Login prompts for credentials and signs in. A failed attempt keeps the
// current session.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword("Enter password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	s, err := a.svc.Sessions.SignIn(ctx, email, string(password))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s (%s)\n", s.User.DisplayName, roleLabel(s.User.Role))
	return nil
}

// Logout always ends signed out, even when the server cannot be reached.
func (a *App) Logout(ctx context.Context) error {
	if !a.isLoggedIn() {
		fmt.Fprintln(a.out, "Not signed in")
		return nil
	}
	a.svc.Sessions.SignOut(ctx)
	fmt.Fprintln(a.out, "Signed out")
	return nil
}
