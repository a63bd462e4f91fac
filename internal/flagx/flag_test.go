package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	owned := []string{"-u", "--url", "-db"}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"separate value", []string{"-u", "https://hk.example", "-c", "hk.json"}, []string{"-u", "https://hk.example"}},
		{"equals form", []string{"--url=https://hk.example", "-env", ".env.local"}, []string{"--url=https://hk.example"}},
		{"order kept across forms", []string{"-db", "a.db", "--url=x", "-u", "y"}, []string{"-db", "a.db", "--url=x", "-u", "y"}},
		{"foreign flags and positionals dropped", []string{"-k", "anon", "whoami"}, []string{}},
		{"trailing flag without value", []string{"-db"}, []string{"-db"}},
		{"dash token is never a value", []string{"-u", "-db", "s.db"}, []string{"-u", "-db", "s.db"}},
		{"equals value may start with dash", []string{"--url=-odd"}, []string{"--url=-odd"}},
		{"empty", []string{}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, owned))
		})
	}
}

func TestLookupString(t *testing.T) {
	args := []string{"-u", "https://hk.example", "-config", "first.json", "--c=second.json", "-env", "prod.env"}

	assert.Equal(t, "second.json", JsonConfigPath(args), "last occurrence wins")
	assert.Equal(t, "prod.env", EnvFilePath(args))
	assert.Equal(t, "https://hk.example", LookupString(args, "u", "url"))
	assert.Empty(t, LookupString(args, "db"))
	assert.Empty(t, JsonConfigPath([]string{"-k", "anon"}))
}
