package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"empty", ErrEmptyAgentData, CategoryEmptyOutput},
		{"wrapped empty", &AgentError{Host: "h", Err: ErrEmptyAgentData}, CategoryEmptyOutput},
		{"agent", &AgentError{Host: "h", Err: errors.New("connection refused")}, CategoryConnection},
		{"snmp", &SNMPError{Host: "h"}, CategoryConnection},
		{"lookup", &IPLookupError{Host: "h"}, CategoryConnection},
		{"timeout", &TimeoutError{Op: "fetching", After: time.Second}, CategoryTimeout},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), CategoryTimeout},
		{"other", errors.New("division by zero"), CategoryException},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestPanicError(t *testing.T) {
	assert.Equal(t, "boom", FromPanic("boom").Error())

	inner := &TimeoutError{Op: "parsing"}
	err := FromPanic(inner)
	assert.Equal(t, "timed out while parsing", err.Error())
	assert.Equal(t, CategoryTimeout, Classify(err))
}
