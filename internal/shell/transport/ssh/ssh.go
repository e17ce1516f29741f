// Package ssh provides the shared hosting transport: an authenticated shell
// plus SFTP file transfer on one connection. It is the only package that
// opens sockets toward shared hosting targets.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/hostbridge/hostbridge/internal/core/domain"
	"github.com/hostbridge/hostbridge/internal/shell/provider"
)

// Config tunes connection behavior for all sessions built by the dialer.
type Config struct {
	ConnectTimeout time.Duration // Default: 10 seconds
	CommandTimeout time.Duration // Default: 2 minutes
}

// DefaultConfig returns dialer defaults suitable for shared hosting targets.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 2 * time.Minute,
	}
}

// NewDialer returns a provider.Dialer that opens SSH connections from
// credential bundles. The bundle must carry "host" and "username" plus either
// "password" or a PEM "private_key"; "port" defaults to 22.
func NewDialer(cfg Config) provider.Dialer {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 2 * time.Minute
	}

	return func(ctx context.Context, creds domain.CredentialBundle) (provider.Session, error) {
		return dial(ctx, cfg, creds)
	}
}

// session implements provider.Session over one ssh.Client. The SFTP
// subsystem is opened lazily on first file operation.
type session struct {
	client  *ssh.Client
	sftp    *sftp.Client
	timeout time.Duration
}

func dial(ctx context.Context, cfg Config, creds domain.CredentialBundle) (provider.Session, error) {
	host := creds.FieldOr(provider.CredHost, "")
	user := creds.FieldOr(provider.CredUsername, "")
	if host == "" || user == "" {
		return nil, domain.NewStepError(domain.CategoryAuthFailure, "Dial",
			"credential bundle lacks host or username", nil)
	}

	auth, err := authMethods(creds)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: store and verify host keys
		Timeout:         cfg.ConnectTimeout,
	}

	addr := net.JoinHostPort(host, creds.FieldOr(provider.CredPort, "22"))

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	done := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", addr, config)
		done <- dialResult{client, err}
	}()

	select {
	case <-ctx.Done():
		return nil, domain.NewStepError(domain.CategoryConnectivity, "Dial",
			fmt.Sprintf("cancelled dialing %s", addr), ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, classifyDial(addr, res.err)
		}
		return &session{client: res.client, timeout: cfg.CommandTimeout}, nil
	}
}

// authMethods builds the auth chain from the bundle. Key auth is preferred
// when both a key and a password are present.
func authMethods(creds domain.CredentialBundle) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if pem := creds.FieldOr(provider.CredKeyPEM, ""); pem != "" {
		signer, err := ssh.ParsePrivateKey([]byte(pem))
		if err != nil {
			return nil, domain.NewStepError(domain.CategoryAuthFailure, "Dial",
				"parse SSH private key", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if pw := creds.FieldOr(provider.CredPassword, ""); pw != "" {
		methods = append(methods, ssh.Password(pw))
	}

	if len(methods) == 0 {
		return nil, domain.NewStepError(domain.CategoryAuthFailure, "Dial",
			"credential bundle carries neither password nor private key", nil)
	}
	return methods, nil
}

// classifyDial maps dial failures onto the step failure taxonomy.
func classifyDial(addr string, err error) error {
	msg := fmt.Sprintf("SSH dial %s", addr)

	if strings.Contains(err.Error(), "unable to authenticate") ||
		strings.Contains(err.Error(), "no supported methods remain") {
		return domain.NewStepError(domain.CategoryAuthFailure, "Dial", msg, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewStepError(domain.CategoryConnectivity, "Dial", msg, err)
	}
	return domain.NewStepError(domain.CategoryConnectivity, "Dial", msg, err)
}

// =============================================================================
// Session Operations
// =============================================================================

// Run executes a command on the remote host and returns combined output.
func (s *session) Run(ctx context.Context, command string) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", domain.NewStepError(domain.CategoryConnectivity, "Run",
			"open SSH channel", err)
	}
	defer sess.Close()

	var out bytes.Buffer
	sess.Stdout = &out
	sess.Stderr = &out

	done := make(chan error, 1)
	go func() {
		done <- sess.Run(command)
	}()

	select {
	case <-ctx.Done():
		return out.String(), domain.NewStepError(domain.CategoryConnectivity, "Run",
			"cancelled running remote command", ctx.Err())
	case <-time.After(s.timeout):
		return out.String(), domain.NewStepError(domain.CategoryConnectivity, "Run",
			fmt.Sprintf("remote command timeout after %v", s.timeout), nil)
	case err := <-done:
		if err != nil {
			// Exit errors are left unclassified here; the adapter reads the
			// output to decide the category.
			return out.String(), err
		}
		return out.String(), nil
	}
}

// PutDir recursively copies localDir to remoteDir via SFTP.
func (s *session) PutDir(ctx context.Context, localDir, remoteDir string) error {
	client, err := s.sftpClient()
	if err != nil {
		return err
	}
	return uploadTree(ctx, client, localDir, remoteDir)
}

// WriteFile writes content to remotePath via SFTP, replacing any existing file.
func (s *session) WriteFile(ctx context.Context, remotePath string, content []byte, mode uint32) error {
	client, err := s.sftpClient()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.NewStepError(domain.CategoryConnectivity, "WriteFile", "cancelled", err)
	}

	f, err := client.Create(remotePath)
	if err != nil {
		return classifySFTP("WriteFile", remotePath, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return classifySFTP("WriteFile", remotePath, err)
	}
	if err := f.Close(); err != nil {
		return classifySFTP("WriteFile", remotePath, err)
	}
	if err := client.Chmod(remotePath, fsMode(mode)); err != nil {
		return classifySFTP("WriteFile", remotePath, err)
	}
	return nil
}

// Close shuts down the SFTP subsystem and the SSH connection.
func (s *session) Close() error {
	var sftpErr error
	if s.sftp != nil {
		sftpErr = s.sftp.Close()
		s.sftp = nil
	}
	if err := s.client.Close(); err != nil {
		return err
	}
	return sftpErr
}

// sftpClient opens the SFTP subsystem on first use.
func (s *session) sftpClient() (*sftp.Client, error) {
	if s.sftp != nil {
		return s.sftp, nil
	}
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, domain.NewStepError(domain.CategoryConnectivity, "SFTP",
			"open SFTP subsystem", err)
	}
	s.sftp = client
	return client, nil
}
