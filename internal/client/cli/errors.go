package cli

import (
	"errors"

	"github.com/dmitrijs2005/healthkeeper/internal/client/magiclink"
	"github.com/dmitrijs2005/healthkeeper/internal/common"
)

var (
	errNotSignedIn   = errors.New("sign in first")
	errUnknownEntity = errors.New("unknown entity; use diseases, vehicles, expenses or administrators")
)

// describe turns err into the message shown to the user.
func describe(err error) string {
	var ve *common.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.Is(err, common.ErrUnavailable):
		// checked first: a failed sign-in wraps the outage
		return "the server is unavailable, try again later"
	case errors.Is(err, common.ErrInvalidCredentials):
		return "invalid email or password"
	case errors.Is(err, common.ErrAccountExists):
		return "an account with this email already exists"
	case errors.Is(err, common.ErrInvalidOrExpiredLink):
		return "the access link is invalid or has expired"
	case errors.Is(err, magiclink.ErrInvalidTransition):
		return "this access link has already been used"
	case errors.Is(err, common.ErrConflict):
		return "a record with the same unique value already exists"
	case errors.Is(err, common.ErrNotFound):
		return "record not found"
	case errors.Is(err, common.ErrUnauthorized):
		return "not signed in or the session has expired"
	}
	return err.Error()
}
