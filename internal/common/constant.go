// Package common contains shared constants and sentinel errors used across
// HealthKeeper client components.
package common

// Header names understood by the backend gateway.
const (
	APIKeyHeaderName        = "apikey"
	AuthorizationHeaderName = "Authorization"
	PreferHeaderName        = "Prefer"
	ContentRangeHeaderName  = "Content-Range"
)
