package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSimpleText(t *testing.T) {
	var w bytes.Buffer
	r := bufio.NewReader(strings.NewReader("  ana@example.com \npartial"))

	s, err := GetSimpleText(r, "Enter email", &w)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", s)
	assert.Equal(t, "Enter email\n> ", w.String())

	s, err = GetSimpleText(r, "Again", &w)
	require.NoError(t, err)
	assert.Equal(t, "partial", s)

	_, err = GetSimpleText(r, "Eof", &w)
	assert.Error(t, err)
}

func TestGetTextDefault(t *testing.T) {
	var w bytes.Buffer
	r := bufio.NewReader(strings.NewReader("\ncard\n"))

	s, err := GetTextDefault(r, "Method", "pix", &w)
	require.NoError(t, err)
	assert.Equal(t, "pix", s)
	s, err = GetTextDefault(r, "Method", "pix", &w)
	require.NoError(t, err)
	assert.Equal(t, "card", s)
	assert.Contains(t, w.String(), "Method [pix]")
}

func TestGetPassword_UsesTerminalSeam(t *testing.T) {
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })

	readPassword = func(int) ([]byte, error) { return []byte("Secret123"), nil }
	var w bytes.Buffer
	pw, err := GetPassword("Enter password", &w)
	require.NoError(t, err)
	assert.Equal(t, []byte("Secret123"), pw)
	assert.Equal(t, "Enter password: \n", w.String())

	boom := errors.New("not a terminal")
	readPassword = func(int) ([]byte, error) { return nil, boom }
	_, err = GetPassword("Enter password", &w)
	assert.ErrorIs(t, err, boom)
}
