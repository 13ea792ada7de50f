package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// scriptPlugin writes body as an executable shell script and returns a
// plugin running it.
func scriptPlugin(t *testing.T, name, body string) *Plugin {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := t.TempDir()
	exe := filepath.Join(dir, name+".sh")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return &Plugin{
		Manifest: Manifest{
			Name:       name,
			Version:    "1.0.0",
			Executable: name + ".sh",
			Actions:    []string{ActionExport},
		},
		Path:       dir,
		Executable: exe,
	}
}

// echoScript answers with the request it received as data.
const echoScript = `INPUT=$(cat)
echo "{\"success\":true,\"data\":$INPUT}"
`

func TestNewExecutor(t *testing.T) {
	executor := NewExecutor(3 * time.Second)
	if executor.Timeout() != 3*time.Second {
		t.Errorf("expected timeout 3s, got %s", executor.Timeout())
	}
}

func TestExecutor_Execute(t *testing.T) {
	plugin := scriptPlugin(t, "hello", `cat >/dev/null
echo '{"success":true,"data":{"rows":12}}'
`)

	response, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{
		Action:  ActionExport,
		Session: "session-1",
		Params:  json.RawMessage(`{"rallies":[]}`),
	})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if !response.Success || response.Error != "" {
		t.Errorf("expected success without error, got %+v", response)
	}

	var data struct {
		Rows int `json:"rows"`
	}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if data.Rows != 12 {
		t.Errorf("expected rows 12, got %d", data.Rows)
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	plugin := scriptPlugin(t, "echo", echoScript)

	response, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{
		Action:  ActionExport,
		Session: "session-2",
		Config:  json.RawMessage(`{"setting":"enabled"}`),
		Params:  json.RawMessage(`{"count":42}`),
	})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var received Request
	if err := json.Unmarshal(response.Data, &received); err != nil {
		t.Fatalf("failed to unmarshal echoed request: %v", err)
	}
	if received.Action != ActionExport || received.Session != "session-2" {
		t.Errorf("unexpected echoed request: %+v", received)
	}
	if string(received.Params) != `{"count":42}` {
		t.Errorf("expected params to round-trip, got %s", received.Params)
	}
}

func TestExecutor_ManifestConfigDefault(t *testing.T) {
	plugin := scriptPlugin(t, "echo", echoScript)
	plugin.Manifest.Config = json.RawMessage(`{"output_dir":"exports"}`)

	request := &Request{Action: ActionExport, Session: "s1", Params: json.RawMessage(`{}`)}
	response, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, request)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var echoed Request
	if err := json.Unmarshal(response.Data, &echoed); err != nil {
		t.Fatalf("failed to unmarshal echoed request: %v", err)
	}
	if string(echoed.Config) != `{"output_dir":"exports"}` {
		t.Errorf("expected manifest config, got %s", echoed.Config)
	}
	if request.Config != nil {
		t.Error("caller's request should not be modified")
	}
}

func TestExecutor_Environment(t *testing.T) {
	plugin := scriptPlugin(t, "env", `cat >/dev/null
echo "{\"success\":true,\"data\":{\"session\":\"$SHUTTLESCOPE_SESSION\",\"action\":\"$SHUTTLESCOPE_ACTION\",\"dir\":\"$(pwd)\"}}"
`)

	response, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{
		Action:  ActionExport,
		Session: "abc-123",
	})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var env struct {
		Session string `json:"session"`
		Action  string `json:"action"`
		Dir     string `json:"dir"`
	}
	if err := json.Unmarshal(response.Data, &env); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if env.Session != "abc-123" || env.Action != ActionExport {
		t.Errorf("unexpected environment: %+v", env)
	}
	if filepath.Base(env.Dir) != filepath.Base(plugin.Path) {
		t.Errorf("expected plugin to run in %s, got %s", plugin.Path, env.Dir)
	}
}

func TestExecutor_Failures(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr string
	}{
		{"invalid json", "echo 'not valid json'\n", "failed to parse plugin response"},
		{"non-zero exit", "echo 'disk full' >&2\nexit 1\n", "disk full"},
		{"silent exit", "exit 3\n", "exit status 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plugin := scriptPlugin(t, "failing", tt.script)

			_, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{Action: ActionExport})
			if err == nil {
				t.Fatal("expected an error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestExecutor_Execute_ErrorResponse(t *testing.T) {
	plugin := scriptPlugin(t, "refuses", `echo '{"success":false,"error":"no rallies to export"}'
`)

	response, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{Action: ActionExport})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if response.Success {
		t.Errorf("expected success=false, got true")
	}
	if response.Error != "no rallies to export" {
		t.Errorf("expected error 'no rallies to export', got %q", response.Error)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	plugin := scriptPlugin(t, "slow", "exec sleep 10\n")

	start := time.Now()
	_, err := NewExecutor(100*time.Millisecond).Execute(context.Background(), plugin, &Request{Action: ActionExport})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
}

func TestExecutor_ParentCanceled(t *testing.T) {
	plugin := scriptPlugin(t, "slow", "exec sleep 10\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecutor(5*time.Second).Execute(ctx, plugin, &Request{Action: ActionExport})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
