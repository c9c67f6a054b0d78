package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("BCRYPT_COST", "10")

	cfg, _, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.JWTTTL)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, "8080", cfg.Port)
	assert.NoError(t, cfg.Validate())
}

func TestLoadBadTTL(t *testing.T) {
	t.Setenv("JWT_TTL", "forever")
	_, _, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{JWTSecret: "x", JWTTTL: time.Hour, StoreDriver: StoreMemory}
	}

	cases := map[string]func(c *Config){
		"missing secret":     func(c *Config) { c.JWTSecret = "" },
		"zero ttl":           func(c *Config) { c.JWTTTL = 0 },
		"unknown driver":     func(c *Config) { c.StoreDriver = "sqlite" },
		"mongo without uri":  func(c *Config) { c.StoreDriver = StoreMongo },
		"admin w/o password": func(c *Config) { c.AdminEmail = "root@clinic.test" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	c := base()
	assert.NoError(t, c.Validate())
}
