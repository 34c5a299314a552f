package config_test

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stardag-dev/stardag-go/internal/config"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	})
	s, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return s
}

func TestWarnsWhenTokenExpiresSoon(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	t.Setenv("STARDAG_ACCESS_TOKEN", signedToken(t, time.Now().Add(5*time.Minute)))

	_, err := config.NewLoader(viper.New(), config.WithLogger(logger)).Load()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "expires soon")
}

func TestDoesNotWarnForFarFutureToken(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	t.Setenv("STARDAG_ACCESS_TOKEN", signedToken(t, time.Now().Add(24*time.Hour)))

	_, err := config.NewLoader(viper.New(), config.WithLogger(logger)).Load()
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "expires soon")
}
