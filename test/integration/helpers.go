//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
)

// TestConfig holds configuration for integration tests.
type TestConfig struct {
	URL     string
	Token   string
	OrgKey  string
	CbcPath string
	Verbose bool
}

// LoadTestConfig loads configuration from environment variables.
func LoadTestConfig() *TestConfig {
	return &TestConfig{
		URL:     os.Getenv("CBC_URL"),
		Token:   os.Getenv("CBC_TOKEN"),
		OrgKey:  os.Getenv("CBC_ORG_KEY"),
		CbcPath: getCbcPath(),
		Verbose: os.Getenv("CBC_TEST_VERBOSE") == "true",
	}
}

// getCbcPath determines the path to the cbc binary.
func getCbcPath() string {
	if path := os.Getenv("CBC_BINARY_PATH"); path != "" {
		return path
	}

	for _, candidate := range []string{"../../cbc", "./cbc", "../cbc"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "cbc"
}

// SkipIfMissingConfig skips the test unless a live organization is configured.
func (config *TestConfig) SkipIfMissingConfig(t *testing.T) {
	t.Helper()

	if config.URL == "" || config.Token == "" || config.OrgKey == "" {
		t.Skip("CBC_URL, CBC_TOKEN and CBC_ORG_KEY must be set, skipping integration test")
	}

	if _, err := exec.LookPath(config.CbcPath); err != nil {
		t.Skipf("cbc binary not found at %s, skipping integration test", config.CbcPath)
	}
}

// CommandRunner runs cbc commands against the configured organization.
type CommandRunner struct {
	config *TestConfig
	t      *testing.T
}

// NewCommandRunner creates a new command runner.
func NewCommandRunner(config *TestConfig, t *testing.T) *CommandRunner {
	return &CommandRunner{config: config, t: t}
}

// Run executes a cbc command and returns its output.
func (runner *CommandRunner) Run(args ...string) (string, string, error) {
	cmd := exec.Command(runner.config.CbcPath, args...)
	cmd.Env = append(os.Environ(), "CBC_CREDENTIALS_FILE="+runner.t.TempDir()+"/credentials.cbc")

	var stdoutBuf, stderrBuf bytes.Buffer

	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if runner.config.Verbose {
		runner.t.Logf("Running: %s %s", runner.config.CbcPath, strings.Join(args, " "))
	}

	err := cmd.Run()
	stdout := stdoutBuf.String()
	stderr := stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	return stdout, stderr, err
}

// RunJSON executes a cbc command with -o json and decodes its output into dst.
func (runner *CommandRunner) RunJSON(dst any, args ...string) error {
	stdout, _, err := runner.Run(append([]string{"-o", "json"}, args...)...)
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(stdout), dst)
}

// AssertYAMLOutput verifies command output looks like YAML.
func AssertYAMLOutput(t *testing.T, output string) {
	t.Helper()

	output = strings.TrimSpace(output)
	if output == "[]" || strings.Contains(output, ": ") || strings.HasPrefix(output, "- ") {
		return
	}

	t.Errorf("Output does not appear to be YAML: %s", output)
}

// formatID renders a JSON id, which decodes as float64 for numeric ids.
func formatID(id any) string {
	if f, ok := id.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	return fmt.Sprint(id)
}
