package remote

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"regexp"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/nmslite/inventory-agent/internal/batch"
	"github.com/nmslite/inventory-agent/internal/resultcode"
	"github.com/nmslite/inventory-agent/internal/task"
)

var (
	_ batch.Launcher  = (*Launcher)(nil)
	_ task.Connection = (*Launcher)(nil)
)

type fakeRunner struct {
	stdout   string
	stderr   string
	exitCode int
	err      error

	commands []string
	closed   bool
}

func (r *fakeRunner) Run(_ context.Context, command string) (string, string, int, error) {
	r.commands = append(r.commands, command)
	return r.stdout, r.stderr, r.exitCode, r.err
}

func (r *fakeRunner) Close() error {
	r.closed = true
	return nil
}

// decodeStaged reverses StageCommand and returns the PowerShell text.
func decodeStaged(t *testing.T, command string) string {
	t.Helper()
	fields := strings.Fields(command)
	raw, err := base64.StdEncoding.DecodeString(fields[len(fields)-1])
	if err != nil {
		t.Fatalf("encoded command is not base64: %v", err)
	}
	ps, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	if err != nil {
		t.Fatalf("encoded command is not UTF-16LE: %v", err)
	}
	return string(ps)
}

var embeddedScript = regexp.MustCompile(`FromBase64String\('([^']+)'\)`)

func TestStageCommand(t *testing.T) {
	script := "@ECHO OFF\r\ndir 2>&1\r\n"

	command, err := StageCommand("powershell.exe", "", script)
	if err != nil {
		t.Fatalf("StageCommand() error = %v", err)
	}
	if !strings.HasPrefix(command, "powershell.exe -NoProfile -NonInteractive") {
		t.Errorf("unexpected command prefix: %q", command)
	}

	ps := decodeStaged(t, command)
	m := embeddedScript.FindStringSubmatch(ps)
	if m == nil {
		t.Fatalf("script body not found in:\n%s", ps)
	}
	body, err := base64.StdEncoding.DecodeString(m[1])
	if err != nil {
		t.Fatalf("embedded script is not base64: %v", err)
	}
	if string(body) != script {
		t.Errorf("embedded script = %q, want %q", body, script)
	}

	for _, want := range []string{"$env:TEMP", "cmd.exe /Q /C", "finally", "Remove-Item", "exit 0"} {
		if !strings.Contains(ps, want) {
			t.Errorf("staging command missing %q", want)
		}
	}
	if strings.Contains(ps, "$LASTEXITCODE") {
		t.Error("staging command must not pass on the script's exit status")
	}
}

func TestStageCommandUniqueNames(t *testing.T) {
	a, _ := StageCommand("powershell.exe", "", "x")
	b, _ := StageCommand("powershell.exe", "", "x")
	if a == b {
		t.Error("two staged commands share a file name")
	}
}

func TestStageCommandTempDirectory(t *testing.T) {
	command, err := StageCommand("pwsh", `D:\it's temp`, "x")
	if err != nil {
		t.Fatalf("StageCommand() error = %v", err)
	}
	ps := decodeStaged(t, command)
	if !strings.Contains(ps, `$dir = 'D:\it''s temp'`) {
		t.Errorf("temp directory not quoted:\n%s", ps)
	}
}

func TestLauncherLaunch(t *testing.T) {
	testCases := []struct {
		name       string
		runner     *fakeRunner
		wantCode   resultcode.Code
		wantErr    bool
		wantOutput string
	}{
		{"Success", &fakeRunner{stdout: "out\r\n"}, resultcode.Success, false, "out\r\n"},
		{"NonZeroExitKeepsOutput", &fakeRunner{stdout: "x", exitCode: 5}, resultcode.Success, false, "x"},
		{"StagingFailed", &fakeRunner{stderr: "Exception calling \"WriteAllBytes\"", exitCode: 1}, resultcode.ProcessExecFailed, false, ""},
		{"TransportError", &fakeRunner{err: errors.New("connection reset")}, resultcode.RemoteCommandExecutionError, true, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLauncher(tc.runner, "", "", nil)
			out, code, err := l.Launch(context.Background(), "@ECHO OFF\r\n")

			if code != tc.wantCode {
				t.Errorf("code = %s, want %s", code, tc.wantCode)
			}
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if out != tc.wantOutput {
				t.Errorf("output = %q, want %q", out, tc.wantOutput)
			}
			if len(tc.runner.commands) != 1 || !strings.HasPrefix(tc.runner.commands[0], DefaultShell) {
				t.Errorf("runner commands = %v", tc.runner.commands)
			}
		})
	}
}

func TestLauncherWithBatchExecute(t *testing.T) {
	runner := &fakeRunner{stdout: "Volume in drive C\r\nExecution completed.\r\n"}
	l := NewLauncher(runner, "", "", nil)
	b := batch.NewBuilder(batch.Config{}, nil)

	payload, code := b.Execute(context.Background(), l, batch.DefaultDirectory, "dir")
	if code != resultcode.Success {
		t.Fatalf("Execute() code = %s", code)
	}
	if payload != "Volume in drive C\r\n" {
		t.Errorf("payload = %q", payload)
	}

	if err := l.Close(); err != nil || !runner.closed {
		t.Errorf("Close() err = %v, closed = %v", err, runner.closed)
	}
}

func TestDialRejectsBadTargets(t *testing.T) {
	testCases := []struct {
		name     string
		target   task.Target
		wantCode resultcode.Code
	}{
		{"NoHost", task.Target{}, resultcode.NullConnectionObject},
		{"UnknownProtocol", task.Target{Host: "h", Protocol: "telnet"}, resultcode.InvalidParameterType},
		{"SSHWithoutCredentials", task.Target{Host: "127.0.0.1", Protocol: "ssh"}, resultcode.LoginFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l, code := Dial(context.Background(), Config{}, tc.target, nil)
			if code != tc.wantCode {
				t.Errorf("code = %s, want %s", code, tc.wantCode)
			}
			if l != nil {
				t.Error("launcher should be nil on failure")
			}
		})
	}
}

func TestDialSSHUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	target := task.Target{
		Host:        "127.0.0.1",
		Port:        port,
		Protocol:    "ssh",
		Credentials: task.Credentials{Username: "u", Password: "p"},
	}
	_, code := Dial(context.Background(), Config{ConnectTimeout: 2 * time.Second}, target, nil)
	if code != resultcode.HostConnectFailed {
		t.Errorf("code = %s, want host connect failed", code)
	}
}

func TestLauncherNonZeroCommandStillCompletes(t *testing.T) {
	testCases := []struct {
		name        string
		runner      *fakeRunner
		wantCode    resultcode.Code
		wantPayload string
	}{
		{"NoMatch", &fakeRunner{stdout: "no match\r\nExecution completed.\r\n", exitCode: 1}, resultcode.Success, "no match\r\n"},
		{"ErrorTextCollected", &fakeRunner{stdout: "File Not Found\r\nExecution completed.\r\n", exitCode: 2}, resultcode.Success, "File Not Found\r\n"},
		{"Truncated", &fakeRunner{stdout: "partial", exitCode: 1}, resultcode.RemoteCommandExecutionError, ""},
		{"StagingFailed", &fakeRunner{exitCode: 1}, resultcode.ProcessExecFailed, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLauncher(tc.runner, "", "", nil)
			b := batch.NewBuilder(batch.Config{}, nil)

			payload, code := b.Execute(context.Background(), l, batch.DefaultDirectory, "findstr foo bar.txt")
			if code != tc.wantCode {
				t.Errorf("Execute() code = %s, want %s", code, tc.wantCode)
			}
			if payload != tc.wantPayload {
				t.Errorf("payload = %q, want %q", payload, tc.wantPayload)
			}
		})
	}
}
