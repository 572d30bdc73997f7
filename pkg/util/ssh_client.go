// Package util provides the SSH and RabbitMQ clients and the logging setup
// shared by the commands.
//
// Example usage of the SSH client:
//
//	config := &models.SSHConfig{
//		Host:     "example.com",
//		Username: "monitor",
//		Password: "password",
//	}
//	config.ApplyDefaults()
//
//	client := util.NewSSHClient(config)
//	defer client.Close()
//
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	err := client.RunCommand(ctx, "check_mk_agent", func(line string) error {
//		fmt.Println(line)
//		return nil
//	})
package util

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/pershinghar/go-host-datasource/pkg/models"
)

// ErrClientClosed is returned by a closed client.
var ErrClientClosed = errors.New("client is closed")

// SSHClient runs commands on a remote host and streams their output.
type SSHClient struct {
	config   *models.SSHConfig
	client   *ssh.Client
	mu       sync.Mutex
	isClosed bool
}

// NewSSHClient creates a new SSH client instance
func NewSSHClient(config *models.SSHConfig) *SSHClient {
	config.ApplyDefaults()
	return &SSHClient{config: config}
}

func (c *SSHClient) timeout() time.Duration {
	return time.Duration(c.config.Timeout) * time.Second
}

// Connect establishes an SSH connection to the remote host
func (c *SSHClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return ErrClientClosed
	}
	if c.client != nil {
		return nil
	}

	sshConfig, err := c.prepareSSHConfig()
	if err != nil {
		return fmt.Errorf("failed to prepare SSH config: %w", err)
	}

	address := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
	dialer := net.Dialer{Timeout: c.timeout()}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", address, err)
	}

	// The handshake itself must not outlive the context either.
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, sshConfig)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to establish SSH connection: %w", err)
	}
	conn.SetDeadline(time.Time{})

	c.client = ssh.NewClient(sshConn, chans, reqs)
	return nil
}

// prepareSSHConfig prepares the SSH client configuration
func (c *SSHClient) prepareSSHConfig() (*ssh.ClientConfig, error) {
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if c.config.KnownHostsPath != "" {
		cb, err := knownhosts.New(c.config.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	config := &ssh.ClientConfig{
		User:            c.config.Username,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.timeout(),
	}

	// Try key-based authentication first
	var signer ssh.Signer
	switch {
	case c.config.PrivateKeyPath != "":
		key, err := loadPrivateKeyFromFile(c.config.PrivateKeyPath, c.config.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to load private key from file: %w", err)
		}
		signer = key
	case len(c.config.PrivateKey) > 0:
		key, err := loadPrivateKeyFromBytes(c.config.PrivateKey, c.config.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to load private key from bytes: %w", err)
		}
		signer = key
	}
	if signer != nil {
		config.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	}

	// Fall back to password authentication if no key is provided
	if len(config.Auth) == 0 && c.config.Password != "" {
		config.Auth = []ssh.AuthMethod{ssh.Password(c.config.Password)}
	}

	if len(config.Auth) == 0 {
		return nil, fmt.Errorf("no authentication method provided (need password or private key)")
	}

	return config, nil
}

// RunCommand runs command in a new session and calls outputHandler for each
// line of its standard output. Stderr is collected and returned with a
// failed exit status. The session is closed when ctx is done.
func (c *SSHClient) RunCommand(ctx context.Context, command string, outputHandler func(line string) error) error {
	c.mu.Lock()
	client := c.client
	closed := c.isClosed
	c.mu.Unlock()

	if closed {
		return ErrClientClosed
	}
	if client == nil {
		return fmt.Errorf("not connected: call Connect() first")
	}

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr := &limitedBuffer{limit: 4096}
	session.Stderr = stderr

	if err := session.Start(command); err != nil {
		return fmt.Errorf("failed to start %q: %w", command, err)
	}

	// Closing the session unblocks the reader below.
	stop := context.AfterFunc(ctx, func() { session.Close() })
	defer stop()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if err := outputHandler(scanner.Text()); err != nil {
			return fmt.Errorf("output handler error: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("stdout read error: %w", err)
	}

	if err := session.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if stderr.Len() > 0 {
			return fmt.Errorf("command %q failed: %w: %s", command, err, stderr.String())
		}
		return fmt.Errorf("command %q failed: %w", command, err)
	}
	return nil
}

// Close closes the SSH connection and cleans up resources
func (c *SSHClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return nil
	}
	c.isClosed = true

	if c.client != nil {
		if err := c.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("errors during close: %w", err)
		}
	}
	return nil
}

// IsConnected returns true if the client is connected
func (c *SSHClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil && !c.isClosed
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Helper functions for loading private keys

func loadPrivateKeyFromFile(path, passphrase string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return loadPrivateKeyFromBytes(key, passphrase)
}

func loadPrivateKeyFromBytes(key []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(key)
}
