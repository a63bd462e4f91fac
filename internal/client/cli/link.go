package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/healthkeeper/internal/client/magiclink"
	"github.com/dmitrijs2005/healthkeeper/internal/common"
)

const passwordAttempts = 3

// Link consumes an emailed access link. First-access users are asked to
// choose a password and are then signed out so they sign in with it.
func (a *App) Link(ctx context.Context, rawURL string) error {
	flow := a.svc.NewLinkFlow()
	st, _, err := flow.ConsumeURL(ctx, rawURL)
	if err != nil {
		return err
	}

	u := a.svc.Sessions.CurrentUser()
	if st == magiclink.StateReturningSession {
		if u != nil {
			fmt.Fprintf(a.out, "Signed in as %s (%s)\n", u.DisplayName, roleLabel(u.Role))
		}
		return nil
	}

	fmt.Fprintln(a.out, "First access: choose a password (at least 8 characters with upper-case, lower-case and a digit).")
	for i := 0; i < passwordAttempts; i++ {
		err = a.choosePassword(ctx, flow)
		var ve *common.ValidationError
		if errors.As(err, &ve) {
			fmt.Fprintln(a.out, describe(err))
			continue
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Password set. Sign in again with your new password.")
		if url := a.svc.Config.RedirectURL; url != "" {
			fmt.Fprintln(a.out, "Sign-in page:", url)
		}
		return nil
	}
	return fmt.Errorf("password not set after %d attempts", passwordAttempts)
}

func (a *App) choosePassword(ctx context.Context, flow *magiclink.Flow) error {
	pw, err := getPassword("New password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)
	confirm, err := getPassword("Repeat password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)
	if string(pw) != string(confirm) {
		return common.NewValidationError("password", "passwords do not match")
	}
	return flow.SetPassword(ctx, string(pw))
}
