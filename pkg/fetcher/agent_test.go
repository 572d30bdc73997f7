package fetcher

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pershinghar/go-host-datasource/pkg/failure"
	"github.com/pershinghar/go-host-datasource/pkg/models"
)

func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestAgentFetcherConnectionRefused(t *testing.T) {
	f := NewAgentFetcher(&models.SSHConfig{Host: "127.0.0.1", Port: closedPort(t), Username: "monitor", Password: "pw", Timeout: 5})
	defer f.Close()

	_, err := f.Fetch(context.Background(), models.ModeChecking)

	var agentErr *failure.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, "127.0.0.1", agentErr.Host)
	assert.Equal(t, failure.CategoryConnection, failure.Classify(err))
}

func TestAgentFetcherMissingAuth(t *testing.T) {
	f := NewAgentFetcher(&models.SSHConfig{Host: "127.0.0.1", Port: closedPort(t)})

	_, err := f.Fetch(context.Background(), models.ModeChecking)
	assert.ErrorContains(t, err, "no authentication method")
	assert.NoError(t, f.Close())
}

func TestAgentFetcherClassify(t *testing.T) {
	f := NewAgentFetcher(&models.SSHConfig{Host: "web1", Timeout: 2})

	err := f.classify(context.Background(), "connecting to agent", &net.DNSError{Err: "no such host", Name: "web1", IsNotFound: true})
	var lookupErr *failure.IPLookupError
	assert.ErrorAs(t, err, &lookupErr)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	err = f.classify(ctx, "fetching agent data", errors.New("session closed"))
	var timeout *failure.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 2*time.Second, timeout.After)
	assert.Equal(t, failure.CategoryTimeout, failure.Classify(err))
}
