package providers

import (
	"errors"
	"os"
	"testing"

	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"cuda", func(c *Config) { c.Backend = CUDAProviderBackend }, false},
		{"coreml", func(c *Config) { c.Backend = CoreMLProviderBackend }, false},
		{"openvino", func(c *Config) { c.Backend = OpenVINOProviderBackend }, false},
		{"empty optimization", func(c *Config) { c.Optimization = "" }, false},
		{"unknown backend", func(c *Config) { c.Backend = "tpu" }, true},
		{"empty backend", func(c *Config) { c.Backend = "" }, true},
		{"negative threads", func(c *Config) { c.IntraOpThreads = -1 }, true},
		{"unknown optimization", func(c *Config) { c.Optimization = "ludicrous" }, true},
		{"empty env key", func(c *Config) { c.Environment = map[string]string{"": "1"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, errdefs.ErrInvalidConfig), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBackendsAreRegistered(t *testing.T) {
	for _, backend := range Backends {
		assert.True(t, isKnownBackend(backend), backend)
	}
}

func TestExportEnvironment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Environment = map[string]string{
		"BATCHDET_TEST_AUTOTUNE": "0",
		"BATCHDET_TEST_P2P":      "0",
	}
	t.Cleanup(func() {
		os.Unsetenv("BATCHDET_TEST_AUTOTUNE")
		os.Unsetenv("BATCHDET_TEST_P2P")
	})

	require.NoError(t, ExportEnvironment(cfg))
	assert.Equal(t, "0", os.Getenv("BATCHDET_TEST_AUTOTUNE"))
	assert.Equal(t, "0", os.Getenv("BATCHDET_TEST_P2P"))
}

func TestResolveLibraryPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LibraryPath = "/opt/onnxruntime/lib/libonnxruntime.so"

	path, err := ResolveLibraryPath(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.LibraryPath, path)
}

func TestInitializeEnvironment_MissingLibrary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LibraryPath = t.TempDir() + "/missing.so"

	err := InitializeEnvironment(cfg)
	assert.True(t, errors.Is(err, errdefs.ErrMissingResource), "got %v", err)
}
