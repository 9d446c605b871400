package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/nmslite/inventory-agent/internal/task"
)

type sshRunner struct {
	client *ssh.Client
}

// sshAuthMethods builds password and key auth from creds, password first.
func sshAuthMethods(creds task.Credentials) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if creds.Password != "" {
		methods = append(methods, ssh.Password(creds.Password))
	}

	if creds.PrivateKey != "" {
		var (
			key ssh.Signer
			err error
		)
		if creds.Passphrase != "" {
			key, err = ssh.ParsePrivateKeyWithPassphrase([]byte(creds.PrivateKey), []byte(creds.Passphrase))
		} else {
			key, err = ssh.ParsePrivateKey([]byte(creds.PrivateKey))
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse private key: %v", errLogin, err)
		}
		methods = append(methods, ssh.PublicKeys(key))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no authentication method provided (password or private_key required)", errLogin)
	}
	return methods, nil
}

func dialSSH(ctx context.Context, cfg Config, target task.Target) (*sshRunner, error) {
	port := target.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	address := net.JoinHostPort(target.Host, strconv.Itoa(port))

	auth, err := sshAuthMethods(target.Credentials)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            target.Credentials.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.ConnectTimeout,
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("SSH connect failed: %w", err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w: %v", errLogin, err)
		}
		return nil, fmt.Errorf("SSH handshake failed: %w", err)
	}

	return &sshRunner{client: ssh.NewClient(c, chans, reqs)}, nil
}

func (r *sshRunner) Run(ctx context.Context, command string) (string, string, int, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to open SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", "", 0, ctx.Err()
	case err := <-done:
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), exitErr.ExitStatus(), nil
		}
		if err != nil {
			return "", "", 0, fmt.Errorf("SSH execution failed: %w", err)
		}
		return stdout.String(), stderr.String(), 0, nil
	}
}

func (r *sshRunner) Close() error {
	return r.client.Close()
}
