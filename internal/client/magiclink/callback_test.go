package magiclink

import (
	"testing"

	"github.com/dmitrijs2005/healthkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallback(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		want     Token
		scrubbed string
		err      error
	}{
		{
			name:     "fragment",
			url:      "https://app.example/auth/callback#access_token=a1&refresh_token=r1&type=magiclink&expires_in=3600",
			want:     Token{AccessToken: "a1", RefreshToken: "r1", Type: "magiclink"},
			scrubbed: "https://app.example/auth/callback",
		},
		{
			name:     "query keeps unrelated params",
			url:      "https://app.example/callback?next=%2Fhome&access_token=a2&refresh_token=r2&first_access=true",
			want:     Token{AccessToken: "a2", RefreshToken: "r2", FirstAccess: true},
			scrubbed: "https://app.example/callback?next=%2Fhome",
		},
		{
			name:     "fragment wins over query",
			url:      "https://app.example/cb?access_token=old#access_token=new&refresh_token=r3",
			want:     Token{AccessToken: "new", RefreshToken: "r3"},
			scrubbed: "https://app.example/cb",
		},
		{
			name:     "invite implies first access",
			url:      "https://app.example/cb#access_token=a4&type=invite",
			want:     Token{AccessToken: "a4", Type: "invite", FirstAccess: true},
			scrubbed: "https://app.example/cb",
		},
		{
			name:     "numeric first access flag",
			url:      "https://app.example/cb#access_token=a5&first_access=1&lang=pt",
			want:     Token{AccessToken: "a5", FirstAccess: true},
			scrubbed: "https://app.example/cb#lang=pt",
		},
		{
			name:     "error description",
			url:      "https://app.example/cb#error=access_denied&error_code=otp_expired&error_description=Email+link+is+invalid+or+has+expired",
			scrubbed: "https://app.example/cb",
			err:      common.ErrInvalidOrExpiredLink,
		},
		{
			name:     "bare error",
			url:      "https://app.example/cb?error=server_error",
			scrubbed: "https://app.example/cb",
			err:      common.ErrInvalidOrExpiredLink,
		},
		{
			name:     "no token",
			url:      "https://app.example/cb?next=%2F",
			scrubbed: "https://app.example/cb?next=%2F",
			err:      common.ErrInvalidOrExpiredLink,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, scrubbed, err := ParseCallback(tt.url)
			assert.Equal(t, tt.scrubbed, scrubbed)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				assert.Equal(t, Token{}, tok)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tok)
			assert.NotContains(t, scrubbed, tok.AccessToken)
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("Str0ngPass"))
	assert.NoError(t, ValidatePassword("Çanção12a"))

	tests := []struct {
		pw   string
		msgs int
	}{
		{"", 4},
		{"Ab1", 1},
		{"alllower1", 1},
		{"ALLUPPER1", 1},
		{"NoDigitsHere", 1},
		{"short", 3},
	}
	for _, tt := range tests {
		err := ValidatePassword(tt.pw)
		var ve *common.ValidationError
		require.ErrorAs(t, err, &ve, tt.pw)
		assert.Len(t, ve.Fields["password"], tt.msgs, tt.pw)
	}
}
