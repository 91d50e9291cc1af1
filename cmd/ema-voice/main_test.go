package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "ema-voice dev") {
		t.Errorf("expected output to contain 'ema-voice dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	if out := buf.String(); !strings.Contains(out, "ema-voice 1.0.0 (commit: abc123, built: 2026-01-01)") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestRootCmdSubcommands(t *testing.T) {
	cmd := newRootCmd()
	want := map[string]bool{"version": false, "serve": false, "chat": false, "schema": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected subcommand %q", name)
		}
	}
}

func TestExecuteReturnsOneOnError(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"schema", "whisper"})

	if code := execute(cmd); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestSchemaCmdPrintsEveryKind(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"schema"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("schema command failed: %v", err)
	}

	var schemas map[string]map[string]any
	if err := json.Unmarshal(buf.Bytes(), &schemas); err != nil {
		t.Fatalf("schema output is not JSON: %v", err)
	}
	for _, kind := range []string{"state_change", "transcript", "response", "audio", "error", "done"} {
		if _, ok := schemas[kind]; !ok {
			t.Errorf("expected schema for %s", kind)
		}
	}
}

func TestSchemaCmdSingleKind(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"schema", "error"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("schema command failed: %v", err)
	}

	var schema struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(buf.Bytes(), &schema); err != nil {
		t.Fatalf("schema output is not JSON: %v", err)
	}
	for _, property := range []string{"error_kind", "message", "details", "retry_allowed"} {
		if _, ok := schema.Properties[property]; !ok {
			t.Errorf("expected property %s, got %v", property, schema.Properties)
		}
	}
	for _, required := range schema.Required {
		if required == "details" {
			t.Errorf("expected details to be optional")
		}
	}
}
