package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// executeValidateCmd runs the validate command with the given config path
// and returns captured output and any error.
func executeValidateCmd(t *testing.T, configPath string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	rootCmd.SetArgs([]string{"validate", "-c", configPath})
	err := rootCmd.Execute()

	return buf.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestRunValidate_ValidConfig(t *testing.T) {
	t.Setenv("TAILGATE_TEST_VALIDATE_PASS", "s3cret")

	configPath := writeConfig(t, `
name: Miner Panel
port: 9000
users:
  "admin:${TAILGATE_TEST_VALIDATE_PASS}": admin
  "viewer:view": readonly
log_buffer:
  max_length: 500
  purge_size: 50
history_file: /var/lib/tailgate/history.zst
mirror:
  redis_addr: localhost:6379
`)

	output, err := executeValidateCmd(t, configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Config is valid!",
		"Name:        Miner Panel",
		"Listen:      :9000",
		"Users:       admin (admin), viewer (readonly)",
		"Log buffer:  500 records, purge 50",
		"History:     /var/lib/tailgate/history.zst",
		"Mirror:      localhost:6379",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}

	if strings.Contains(output, "s3cret") || strings.Contains(output, "view\n") {
		t.Errorf("output leaked a password:\n%s", output)
	}
}

func TestRunValidate_Defaults(t *testing.T) {
	configPath := writeConfig(t, "listen_addr: 127.0.0.1:7000\n")

	output, err := executeValidateCmd(t, configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Name:        WebUI",
		"Listen:      127.0.0.1:7000",
		"Users:       default (admin)",
		"Log buffer:  1000 records, purge 100",
		"History:     disabled",
		"Mirror:      disabled",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	configPath := writeConfig(t, `
log_buffer:
  max_length: 10
  purge_size: 20
`)

	_, err := executeValidateCmd(t, configPath)
	if err == nil {
		t.Fatal("validate command expected error for invalid config, got nil")
	}

	if !strings.Contains(err.Error(), "purge_size") {
		t.Errorf("error should mention 'purge_size', got: %v", err)
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := executeValidateCmd(t, "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("validate command expected error for missing file, got nil")
	}

	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("error should mention 'failed to read', got: %v", err)
	}
}
