package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/masterzen/winrm"

	"github.com/nmslite/inventory-agent/internal/task"
)

// winrmRunner runs commands through a WinRM client. Shells are opened per
// command by the client, so there is nothing to hold open between calls.
type winrmRunner struct {
	client *winrm.Client
}

// dialWinRM creates the client and opens a throwaway shell to prove the
// endpoint and credentials work.
//   - If domain is empty, uses Basic Auth
//   - If domain is provided, uses NTLM Auth
func dialWinRM(ctx context.Context, cfg Config, target task.Target) (*winrmRunner, error) {
	creds := target.Credentials
	port := target.Port
	if port == 0 {
		port = DefaultWinRMPort
		if creds.UseHTTPS {
			port = DefaultWinRMHTTPSPort
		}
	}

	endpoint := winrm.NewEndpoint(
		target.Host,
		port,
		creds.UseHTTPS,
		cfg.Insecure,
		nil, // CA certificate
		nil, // client certificate
		nil, // client key
		cfg.ConnectTimeout,
	)

	var (
		client *winrm.Client
		err    error
	)
	if creds.Domain != "" {
		params := winrm.DefaultParameters
		params.TransportDecorator = func() winrm.Transporter {
			return &winrm.ClientNTLM{}
		}
		client, err = winrm.NewClientWithParameters(
			endpoint,
			fmt.Sprintf("%s\\%s", creds.Domain, creds.Username),
			creds.Password,
			params,
		)
	} else {
		client, err = winrm.NewClient(endpoint, creds.Username, creds.Password)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create WinRM client: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shell, err := client.CreateShell()
	if err != nil {
		if isWinRMAuthError(err) {
			return nil, fmt.Errorf("%w: %v", errLogin, err)
		}
		return nil, fmt.Errorf("WinRM shell creation failed: %w", err)
	}
	_ = shell.Close()

	return &winrmRunner{client: client}, nil
}

func (r *winrmRunner) Run(ctx context.Context, command string) (string, string, int, error) {
	stdout, stderr, exitCode, err := r.client.RunWithContextWithString(ctx, command, "")
	if err != nil {
		return "", "", 0, fmt.Errorf("WinRM execution failed: %w", err)
	}
	return stdout, stderr, exitCode, nil
}

// Close is a no-op; WinRM connections are per request.
func (r *winrmRunner) Close() error {
	return nil
}

func isWinRMAuthError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "401") || strings.Contains(strings.ToLower(msg), "unauthorized")
}
