package backendtest

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenTTL = time.Hour

type user struct {
	id        string
	email     string
	password  string
	appMeta   map[string]any
	userMeta  map[string]any
	createdAt time.Time
}

// UserOptions seeds a user account.
type UserOptions struct {
	Role        string
	DisplayName string
	// FirstAccess, when non-nil, is stored as user_metadata.first_access.
	FirstAccess *bool
}

type userJSON struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (u *user) json() userJSON {
	return userJSON{
		ID:           u.id,
		Email:        u.email,
		AppMetadata:  copyMap(u.appMeta),
		UserMetadata: copyMap(u.userMeta),
		CreatedAt:    u.createdAt,
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AddUser creates an account and returns its id.
func (s *Server) AddUser(email, password string, opts UserOptions) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(email, password, opts).id
}

func (s *Server) addUserLocked(email, password string, opts UserOptions) *user {
	role := opts.Role
	if role == "" {
		role = "citizen"
	}
	u := &user{
		id:        uuid.NewString(),
		email:     strings.ToLower(email),
		password:  password,
		appMeta:   map[string]any{"provider": "email", "role": role},
		userMeta:  map[string]any{},
		createdAt: s.now().UTC(),
	}
	if opts.DisplayName != "" {
		u.userMeta["display_name"] = opts.DisplayName
	}
	if opts.FirstAccess != nil {
		u.userMeta["first_access"] = *opts.FirstAccess
	}
	s.users[u.email] = u
	return u
}

// Password returns the current password of the account.
func (s *Server) Password(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[strings.ToLower(email)]; ok {
		return u.password
	}
	return ""
}

// UserMetadata returns a copy of the account's user_metadata.
func (s *Server) UserMetadata(email string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[strings.ToLower(email)]; ok {
		return copyMap(u.userMeta)
	}
	return nil
}

// IssueLink mints the token pair an emailed access link would carry.
func (s *Server) IssueLink(email string) (accessToken, refreshToken string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return "", "", fmt.Errorf("no user %s", email)
	}
	accessToken, err = s.mint(u)
	if err != nil {
		return "", "", err
	}
	return accessToken, uuid.NewString(), nil
}

// Revoked reports whether token was logged out.
func (s *Server) Revoked(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[token]
}

// SetLogoutFailure makes the logout endpoint answer 503.
func (s *Server) SetLogoutFailure(fail bool) {
	s.mu.Lock()
	s.logoutFails = fail
	s.mu.Unlock()
}

// SetAutoConfirm controls whether sign-up returns a session (true) or only
// the pending user.
func (s *Server) SetAutoConfirm(on bool) {
	s.mu.Lock()
	s.autoConfirm = on
	s.mu.Unlock()
}

func (s *Server) mint(u *user) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":           u.id,
		"email":         u.email,
		"role":          "authenticated",
		"app_metadata":  copyMap(u.appMeta),
		"user_metadata": copyMap(u.userMeta),
		"iat":           now.Unix(),
		"exp":           now.Add(tokenTTL).Unix(),
		"jti":           uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) sessionJSON(u *user) (map[string]any, error) {
	token, err := s.mint(u)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"access_token":  token,
		"refresh_token": uuid.NewString(),
		"token_type":    "bearer",
		"expires_in":    int(tokenTTL.Seconds()),
		"user":          u.json(),
	}, nil
}

// userFromToken resolves a bearer token to its live account. Callers hold mu.
func (s *Server) userFromToken(token string) (*user, bool) {
	if token == "" || s.revoked[token] {
		return nil, false
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, false
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	email, _ := claims["email"].(string)
	u, ok := s.users[email]
	if !ok {
		return nil, false
	}
	return u, true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return ""
	}
	return token
}

// authorized accepts the anonymous key or a live user token.
func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	token := bearerToken(r)
	if token == s.APIKey {
		return true
	}
	s.mu.Lock()
	_, ok := s.userFromToken(token)
	s.mu.Unlock()
	if !ok {
		writeError(w, &Error{Status: http.StatusUnauthorized, Code: "PGRST301", Message: "JWT expired"})
	}
	return ok
}

type authError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code"`
	Msg       string `json:"msg"`
}

func writeAuthError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, authError{Code: status, ErrorCode: code, Msg: msg})
}

type credentials struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("grant_type") != "password" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "unsupported_grant_type",
			"error_description": "grant_type must be password",
		})
		return
	}
	var c credentials
	if err := decodeBody(r, &c); err != nil {
		writeAuthError(w, http.StatusBadRequest, "bad_json", "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(c.Email)]
	if !ok || u.password != c.Password {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "Invalid login credentials",
		})
		return
	}
	body, err := s.sessionJSON(u)
	if err != nil {
		writeAuthError(w, http.StatusInternalServerError, "unexpected_failure", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeBody(r, &c); err != nil || c.Email == "" || c.Password == "" {
		writeAuthError(w, http.StatusBadRequest, "validation_failed", "email and password are required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[strings.ToLower(c.Email)]; exists {
		writeAuthError(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		return
	}
	u := s.addUserLocked(c.Email, c.Password, UserOptions{})
	for k, v := range c.Data {
		u.userMeta[k] = v
	}
	if !s.autoConfirm {
		writeJSON(w, http.StatusOK, u.json())
		return
	}
	body, err := s.sessionJSON(u)
	if err != nil {
		writeAuthError(w, http.StatusInternalServerError, "unexpected_failure", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logoutFails {
		writeAuthError(w, http.StatusServiceUnavailable, "unavailable", "logout unavailable")
		return
	}
	token := bearerToken(r)
	if _, ok := s.userFromToken(token); !ok {
		writeAuthError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
		return
	}
	s.revoked[token] = true
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.userFromToken(bearerToken(r))
	if !ok {
		writeAuthError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
		return
	}
	writeJSON(w, http.StatusOK, u.json())
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var upd struct {
		Password string         `json:"password"`
		Data     map[string]any `json:"data"`
	}
	if err := decodeBody(r, &upd); err != nil {
		writeAuthError(w, http.StatusBadRequest, "bad_json", "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.userFromToken(bearerToken(r))
	if !ok {
		writeAuthError(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
		return
	}
	if upd.Password != "" {
		if upd.Password == u.password {
			writeAuthError(w, http.StatusUnprocessableEntity, "same_password",
				"New password should be different from the old password.")
			return
		}
		u.password = upd.Password
	}
	for k, v := range upd.Data {
		u.userMeta[k] = v
	}
	writeJSON(w, http.StatusOK, u.json())
}
