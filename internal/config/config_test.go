package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	var (
		addr = "localhost:8080"
		dsn  = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"
		key  = "c29tZV9zZWNyZXQ="
		orig = []string{"http://localhost:3000"}
	)

	tcases := []struct {
		name string
		addr string
		dsn  string
		key  string
		orig []string
		err  bool
	}{
		{
			name: "valid config",
			addr: addr,
			dsn:  dsn,
			key:  key,
			orig: orig,
			err:  false,
		},
		{
			name: "empty address",
			addr: "",
			dsn:  dsn,
			key:  key,
			orig: orig,
			err:  true,
		},
		{
			name: "empty DSN",
			addr: addr,
			dsn:  "",
			key:  key,
			orig: orig,
			err:  true,
		},
		{
			name: "empty signing key",
			addr: addr,
			dsn:  dsn,
			key:  "",
			orig: orig,
			err:  true,
		},
		{
			name: "invalid base64 signing key",
			addr: addr,
			dsn:  dsn,
			key:  "not_base64!",
			orig: orig,
			err:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := NewConfig(tc.addr, tc.dsn, tc.key, tc.orig)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, tc.addr, config.ServerAddr, "expected server address to match")
			assert.Equal(t, tc.dsn, config.DatabaseDSN, "expected database DSN to match")
			assert.Equal(t, tc.orig, config.AllowedOrigins, "expected allowed origins to match")
			assert.Equal(t, []byte("some_secret"), config.SigningKey, "expected signing key to be decoded")
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("STUDYCIRCLE_ADDR", "0.0.0.0:9000")
	t.Setenv("STUDYCIRCLE_DSN", "host=db user=postgres")
	t.Setenv("STUDYCIRCLE_JWT_SECRET", "c29tZV9zZWNyZXQ=")
	t.Setenv("STUDYCIRCLE_ALLOWED_ORIGINS", "http://a.example,http://b.example")

	addr, dsn, secret, origins, err := FromEnv()
	assert.NoError(t, err, "expected no error parsing environment")
	assert.Equal(t, "0.0.0.0:9000", addr)
	assert.Equal(t, "host=db user=postgres", dsn)
	assert.Equal(t, "c29tZV9zZWNyZXQ=", secret)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, origins)
}

func TestFromEnvDefaults(t *testing.T) {
	// Setenv registers the restore, Unsetenv makes the variable truly absent
	// so the default applies.
	t.Setenv("STUDYCIRCLE_ADDR", "placeholder")
	os.Unsetenv("STUDYCIRCLE_ADDR")

	addr, _, _, _, err := FromEnv()
	assert.NoError(t, err, "expected no error parsing empty environment")
	assert.Equal(t, "localhost:8000", addr, "expected default server address")
}
