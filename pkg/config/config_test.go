package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const validYAML = `
database:
  user: sync
  password: ${TEST_DB_PASSWORD:secret}
  name: syncmill

sources:
  tracker:
    base_url: https://tracker.example.com/api/v4
    auth_type: bearer
    token: tok
    retry:
      max_attempts: 3
      base_delay: 250ms

jobs:
  - name: projects
    source: tracker
    endpoint: /folders
    table: tracker_projects
  - name: tasks
    source: tracker
    endpoint: /tasks
    table: tracker_tasks
    pagination: date-window
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "info", cfg.Log.Level)

	src := cfg.Sources["tracker"]
	assert.Equal(t, 3, src.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, src.Retry.BaseDelay.Std())
	assert.Equal(t, time.Minute, src.Retry.MaxDelay.Std())
	assert.Equal(t, 10.0, src.RateLimit)

	projects, ok := cfg.Job("projects")
	require.True(t, ok)
	assert.Equal(t, PaginationCursor, projects.Pagination)
	assert.Equal(t, 100, projects.PageSize)
	assert.Equal(t, "id", projects.IdentityField)
	assert.Equal(t, "data", projects.RecordsField)

	tasks, _ := cfg.Job("tasks")
	assert.Equal(t, 6, tasks.WindowDays)
	assert.Equal(t, 2, tasks.MinWindowDays)
	assert.Equal(t, 1000, tasks.PageCeiling)
	assert.Equal(t, "updatedDate", tasks.DateParam)
}

func TestParseSubstitutesEnvironment(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "from-env")
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Database.Password)
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	base := func() *Config {
		cfg, err := Parse([]byte(validYAML))
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Jobs[0].Source = "nowhere"
	assert.ErrorContains(t, cfg.Validate(), "unknown source")

	cfg = base()
	cfg.Jobs[1].Name = "projects"
	assert.ErrorContains(t, cfg.Validate(), "duplicate job name")

	cfg = base()
	cfg.Jobs[0].Pagination = "spiral"
	assert.ErrorContains(t, cfg.Validate(), "unknown pagination strategy")

	cfg = base()
	cfg.Jobs[1].MinWindowDays = 10
	assert.ErrorContains(t, cfg.Validate(), "min_window_days exceeds window_days")

	cfg = base()
	cfg.Jobs[0].PresenceColumn = "present"
	assert.ErrorContains(t, cfg.Validate(), "presence_column requires offset pagination")

	cfg = base()
	cfg.Jobs = nil
	assert.ErrorContains(t, cfg.Validate(), "at least one job")

	cfg = base()
	src := cfg.Sources["tracker"]
	src.AuthType = "kerberos"
	cfg.Sources["tracker"] = src
	assert.ErrorContains(t, cfg.Validate(), "unknown auth_type")
}

func TestDurationUnmarshalForms(t *testing.T) {
	var v struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: 1m30s\nb: 5\n"), &v))
	assert.Equal(t, 90*time.Second, v.A.Std())
	assert.Equal(t, 5*time.Second, v.B.Std())
}
