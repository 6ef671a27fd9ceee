package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassOfWrappedError(t *testing.T) {
	base := New(SessionInvalid, "navigate", errors.New("checkpoint detected"))
	wrapped := fmt.Errorf("execute action: %w", base)

	assert.Equal(t, SessionInvalid, ClassOf(wrapped))
	assert.True(t, errors.Is(wrapped, New(SessionInvalid, "", nil)))
	assert.False(t, errors.Is(wrapped, New(Timeout, "", nil)))
	assert.Contains(t, wrapped.Error(), "checkpoint detected")
}

func TestClassOfUnclassified(t *testing.T) {
	assert.Equal(t, Class(""), ClassOf(nil))
	assert.Equal(t, Timeout, ClassOf(fmt.Errorf("wait: %w", context.DeadlineExceeded)))
	assert.Equal(t, Shutdown, ClassOf(context.Canceled))
	assert.Equal(t, Transient, ClassOf(errors.New("connection reset")))
}

func TestClassPolicies(t *testing.T) {
	cases := map[Class]struct {
		retry bool
		evict bool
	}{
		Transient:          {retry: true},
		Timeout:            {retry: true},
		ProxyIssue:         {retry: true},
		WorkerInit:         {retry: true},
		SessionInvalid:     {evict: true},
		UnsupportedAction:  {},
		CampaignNotRunning: {},
		RateLimited:        {},
		Shutdown:           {},
	}

	for class, want := range cases {
		t.Run(string(class), func(t *testing.T) {
			assert.Equal(t, want.retry, class.Retryable())
			assert.Equal(t, want.evict, class.EvictsWorker())
		})
	}
}
