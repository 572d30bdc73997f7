package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pershinghar/go-host-datasource/pkg/failure"
	"github.com/pershinghar/go-host-datasource/pkg/models"
	"github.com/pershinghar/go-host-datasource/pkg/util"
)

// AgentFetcher runs the agent command on a host over SSH and returns its output.
type AgentFetcher struct {
	config *models.SSHConfig
	client *util.SSHClient
}

// NewAgentFetcher returns a fetcher for the host described by config.
func NewAgentFetcher(config *models.SSHConfig) *AgentFetcher {
	return &AgentFetcher{config: config, client: util.NewSSHClient(config)}
}

func (f *AgentFetcher) timeout() time.Duration {
	return time.Duration(f.config.Timeout) * time.Second
}

// Fetch connects, runs the agent command and collects its output. Mode
// does not change what the agent sends.
func (f *AgentFetcher) Fetch(ctx context.Context, _ models.Mode) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	if err := f.client.Connect(ctx); err != nil {
		return nil, f.classify(ctx, "connecting to agent", err)
	}

	var buf bytes.Buffer
	err := f.client.RunCommand(ctx, f.config.AgentCommand, func(line string) error {
		buf.WriteString(line)
		buf.WriteByte('\n')
		return nil
	})
	if err != nil {
		return nil, f.classify(ctx, "fetching agent data", err)
	}
	if buf.Len() == 0 {
		return nil, &failure.AgentError{Host: f.config.Host, Err: failure.ErrEmptyAgentData}
	}
	return buf.Bytes(), nil
}

// Close tears down the SSH connection.
func (f *AgentFetcher) Close() error {
	return f.client.Close()
}

func (f *AgentFetcher) classify(ctx context.Context, op string, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &failure.TimeoutError{Op: op, After: f.timeout()}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return &failure.IPLookupError{Host: f.config.Host, Err: err}
	}
	return &failure.AgentError{Host: f.config.Host, Err: fmt.Errorf("%s: %w", op, err)}
}
