package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnvRepository struct {
	values map[string]string
}

func (f fakeEnvRepository) Get(key string) string    { return f.values[key] }
func (f fakeEnvRepository) Set(string, string) error { return nil }
func (f fakeEnvRepository) Unset(string) error       { return nil }
func (f fakeEnvRepository) List() []string           { return nil }

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid",
			cfg:  Config{APIKey: "key", APISecret: "secret"},
		},
		{
			name:    "missing api key",
			cfg:     Config{APISecret: "secret"},
			wantErr: true,
		},
		{
			name:    "missing api secret",
			cfg:     Config{APIKey: "key"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{APIKey: "key", APISecret: "secret"}.WithDefaults()

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, "sdk", cfg.Source)

	custom := Config{BaseURL: "https://staging.example", Source: "sdk-async"}.WithDefaults()
	assert.Equal(t, "https://staging.example", custom.BaseURL)
	assert.Equal(t, "sdk-async", custom.Source)
}

func TestFromEnv(t *testing.T) {
	cfg, err := FromEnv(fakeEnvRepository{values: map[string]string{
		"LABELLERR_API_KEY":    "key",
		"LABELLERR_API_SECRET": "secret",
	}})

	require.NoError(t, err)
	assert.Equal(t, "key", cfg.APIKey)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)

	_, err = FromEnv(fakeEnvRepository{values: map[string]string{}})
	assert.Error(t, err)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labellerr.yml")
	require.NoError(t, os.WriteFile(path, []byte("api_key: key\napi_secret: secret\nbase_url: https://staging.example\n"), 0o600))

	cfg, err := FromFile(path)

	require.NoError(t, err)
	assert.Equal(t, "key", cfg.APIKey)
	assert.Equal(t, "https://staging.example", cfg.BaseURL)

	t.Run("missing file", func(t *testing.T) {
		_, err := FromFile(filepath.Join(dir, "missing.yml"))
		assert.Error(t, err)
	})

	t.Run("incomplete credentials", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yml")
		require.NoError(t, os.WriteFile(bad, []byte("api_key: key\n"), 0o600))
		_, err := FromFile(bad)
		assert.Error(t, err)
	})
}

func TestDataTypeValid(t *testing.T) {
	for _, dataType := range DataTypes {
		assert.True(t, dataType.Valid())
	}
	assert.False(t, DataType("3d").Valid())
}
