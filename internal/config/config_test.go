package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoggerConfig(t *testing.T) {
	config := LoggerConfig{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{"stdout", "stderr"},
	}

	assert.Equal(t, "debug", config.Level)
	assert.Equal(t, "json", config.Format)
	assert.Contains(t, config.OutputPaths, "stdout")
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "IdorEnumerator/0.1", config.HTTP.UserAgent)
	assert.Equal(t, time.Duration(0), config.HTTP.Timeout)
	assert.Equal(t, []string{"stderr"}, config.Logger.OutputPaths)
	assert.False(t, config.Recorder.Enabled())
	assert.False(t, config.Telemetry.Enabled)
	assert.Zero(t, config.RateLimit.RequestsPerSecond)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		target  TargetConfig
		session SessionConfig
		wantErr error
		anyErr  bool
	}{
		{
			name:   "no session",
			target: TargetConfig{Endpoint: "http://x/obj/", Selector: "id"},
		},
		{
			name:    "full session",
			target:  TargetConfig{Endpoint: "http://x/obj/", Selector: "id"},
			session: SessionConfig{CookieName: "sid", ID: "abc"},
		},
		{
			name:    "name only",
			target:  TargetConfig{Endpoint: "http://x/obj/", Selector: "id"},
			session: SessionConfig{CookieName: "sid"},
			wantErr: ErrIncompleteSession,
		},
		{
			name:    "id only",
			target:  TargetConfig{Endpoint: "http://x/obj/", Selector: "id"},
			session: SessionConfig{ID: "abc"},
			wantErr: ErrIncompleteSession,
		},
		{
			name:   "missing endpoint",
			target: TargetConfig{Selector: "id"},
			anyErr: true,
		},
		{
			name:   "missing selector",
			target: TargetConfig{Endpoint: "http://x/obj/"},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Target = tt.target
			config.Session = tt.session

			err := config.Validate()
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_NegativeRateLimit(t *testing.T) {
	config := DefaultConfig()
	config.Target = TargetConfig{Endpoint: "http://x/", Selector: "id"}
	config.RateLimit.RequestsPerSecond = -1

	assert.Error(t, config.Validate())
}

func TestSessionConfigEnabled(t *testing.T) {
	assert.False(t, SessionConfig{}.Enabled())
	assert.True(t, SessionConfig{CookieName: "sid"}.Enabled())
	assert.True(t, SessionConfig{ID: "abc"}.Enabled())
}
