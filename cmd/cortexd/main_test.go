package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := fn()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), err
}

func setTestHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)
	t.Setenv("CORTEXD_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	return tmpDir
}

func TestRunOnboard(t *testing.T) {
	tmpDir := setTestHome(t)

	output, err := captureStdout(t, func() error {
		return runOnboard(&cobra.Command{}, []string{})
	})
	if err != nil {
		t.Errorf("runOnboard error: %v", err)
	}

	cfgPath := filepath.Join(tmpDir, ".cortexd", "config.json")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}
	if !strings.Contains(output, "Created config") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestRunOnboard_AlreadyExists(t *testing.T) {
	tmpDir := setTestHome(t)

	cfgDir := filepath.Join(tmpDir, ".cortexd")
	os.MkdirAll(cfgDir, 0755)
	os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("{}"), 0644)

	output, err := captureStdout(t, func() error {
		return runOnboard(&cobra.Command{}, []string{})
	})
	if err != nil {
		t.Errorf("runOnboard error: %v", err)
	}
	if !strings.Contains(output, "Config already exists") {
		t.Errorf("expected 'Config already exists', got: %s", output)
	}
}

func TestRunStatus(t *testing.T) {
	setTestHome(t)

	output, err := captureStdout(t, func() error {
		return runStatus(&cobra.Command{}, []string{})
	})
	if err != nil {
		t.Errorf("runStatus error: %v", err)
	}

	for _, want := range []string{"Config:", "API Key: not set", "Recall:", "Telegram: enabled="} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in output: %s", want, output)
		}
	}
}

func TestRunStatus_WithAPIKey(t *testing.T) {
	setTestHome(t)
	t.Setenv("CORTEXD_API_KEY", "sk-ant-test-key-12345678")

	output, err := captureStdout(t, func() error {
		return runStatus(&cobra.Command{}, []string{})
	})
	if err != nil {
		t.Errorf("runStatus error: %v", err)
	}
	if !strings.Contains(output, "sk-a...") {
		t.Errorf("API key should be masked in output: %s", output)
	}
}

func TestRunServe_NoAPIKey(t *testing.T) {
	setTestHome(t)

	err := runServe(&cobra.Command{}, []string{})
	if err == nil {
		t.Error("expected error when API key is not set")
	}
	if !strings.Contains(err.Error(), "API key not set") {
		t.Errorf("error should mention API key: %v", err)
	}
}

func TestInit(t *testing.T) {
	if rootCmd == nil {
		t.Error("rootCmd should not be nil")
	}
	for _, cmd := range []*cobra.Command{serveCmd, onboardCmd, statusCmd} {
		if cmd == nil {
			t.Error("command should not be nil")
		}
	}
}
