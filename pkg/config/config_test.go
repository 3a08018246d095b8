package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sampleConfig struct {
	Model   string        `envconfig:"MODEL" required:"true"`
	Timeout time.Duration `split_words:"true" default:"10s"`
}

type checkedConfig struct {
	Retries int `envconfig:"RETRIES" default:"0"`
}

func (c checkedConfig) Validate() error {
	if c.Retries <= 0 {
		return errors.New("retries must be > 0")
	}
	return nil
}

func TestExportEnvironmentKeepsExistingVariables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("CFGTEST_MODEL=from-file\nCFGTEST_TIMEOUT=3s\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CFGTEST_MODEL", "from-env")
	t.Setenv("CFGTEST_TIMEOUT", "")
	os.Unsetenv("CFGTEST_TIMEOUT")

	if err := exportEnvironment(path); err != nil {
		t.Fatalf("exportEnvironment() error = %v", err)
	}
	if got := os.Getenv("CFGTEST_MODEL"); got != "from-env" {
		t.Fatalf("env must win over file, got %q", got)
	}

	conf, err := New[sampleConfig]("CFGTEST")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Model != "from-env" || conf.Timeout != 3*time.Second {
		t.Fatalf("unexpected config: %+v", conf)
	}
}

func TestNewRunsValidator(t *testing.T) {
	t.Setenv("CHKTEST_RETRIES", "0")
	if _, err := New[checkedConfig]("CHKTEST"); err == nil {
		t.Fatal("expected validation error")
	}

	t.Setenv("CHKTEST_RETRIES", "2")
	conf, err := New[checkedConfig]("CHKTEST")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Retries != 2 {
		t.Fatalf("retries = %d", conf.Retries)
	}
}

func TestNewReportsMissingRequired(t *testing.T) {
	os.Unsetenv("MISSTEST_MODEL")
	if _, err := New[sampleConfig]("MISSTEST"); err == nil {
		t.Fatal("expected error for missing required variable")
	}
}
