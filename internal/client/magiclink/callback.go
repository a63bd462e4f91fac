package magiclink

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/healthkeeper/internal/common"
)

// Token is the one-time credential carried by an access link.
type Token struct {
	AccessToken  string
	RefreshToken string
	Type         string
	FirstAccess  bool
}

// parameters removed from the callback URL once read
var tokenParams = []string{
	"access_token", "refresh_token", "expires_in", "expires_at", "token_type",
	"type", "first_access", "provider_token", "provider_refresh_token",
	"error", "error_code", "error_description",
}

// ParseCallback reads the link token from the query and the fragment of
// rawURL. When both carry one, the fragment wins. The returned URL has every
// token parameter removed from both places, and is set even on error.
func ParseCallback(rawURL string) (Token, string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Token{}, "", fmt.Errorf("%w: %v", common.ErrInvalidOrExpiredLink, err)
	}
	query := u.Query()
	fragment, ferr := url.ParseQuery(u.EscapedFragment())
	if ferr != nil {
		fragment = url.Values{}
	}
	scrubbed := scrub(u, query, fragment)

	for _, v := range []url.Values{fragment, query} {
		if e := v.Get("error_description"); e != "" {
			return Token{}, scrubbed, fmt.Errorf("%w: %s", common.ErrInvalidOrExpiredLink, e)
		}
		if e := v.Get("error"); e != "" {
			return Token{}, scrubbed, fmt.Errorf("%w: %s", common.ErrInvalidOrExpiredLink, e)
		}
	}

	if tok, ok := tokenFrom(fragment); ok {
		return tok, scrubbed, nil
	}
	if tok, ok := tokenFrom(query); ok {
		return tok, scrubbed, nil
	}
	return Token{}, scrubbed, fmt.Errorf("%w: no access token in link", common.ErrInvalidOrExpiredLink)
}

func tokenFrom(v url.Values) (Token, bool) {
	access := v.Get("access_token")
	if access == "" {
		return Token{}, false
	}
	first, _ := strconv.ParseBool(v.Get("first_access"))
	typ := v.Get("type")
	return Token{
		AccessToken:  access,
		RefreshToken: v.Get("refresh_token"),
		Type:         typ,
		FirstAccess:  first || typ == "invite",
	}, true
}

func scrub(u *url.URL, query, fragment url.Values) string {
	q := cloneValues(query)
	f := cloneValues(fragment)
	for _, k := range tokenParams {
		q.Del(k)
		f.Del(k)
	}
	base := *u
	base.RawQuery = q.Encode()
	base.Fragment = ""
	base.RawFragment = ""
	s := base.String()
	if enc := f.Encode(); enc != "" {
		s += "#" + enc
	}
	return s
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
