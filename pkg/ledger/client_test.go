package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"paperhands/pkg/httpclient"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Run("429 with retry-after", func(t *testing.T) {
		err := fmt.Errorf("get failed: %w", &httpclient.StatusError{Code: 429, RetryAfter: 3 * time.Second})
		outcome := classify(err)
		assert.Equal(t, FetchRateLimited, outcome.Status)
		assert.Equal(t, 3*time.Second, outcome.RetryAfter)
	})

	t.Run("429 without retry-after defaults to one second", func(t *testing.T) {
		outcome := classify(&httpclient.StatusError{Code: 429})
		assert.Equal(t, FetchRateLimited, outcome.Status)
		assert.Equal(t, time.Second, outcome.RetryAfter)
	})

	t.Run("server error", func(t *testing.T) {
		outcome := classify(&httpclient.StatusError{Code: 500})
		assert.Equal(t, FetchFailed, outcome.Status)
	})

	t.Run("transport error", func(t *testing.T) {
		outcome := classify(errors.New("connection refused"))
		assert.Equal(t, FetchFailed, outcome.Status)
		assert.False(t, outcome.OK())
	})
}

func TestEnhancedTransaction_Failed(t *testing.T) {
	ok := EnhancedTransaction{}
	assert.False(t, ok.Failed())

	nullErr := EnhancedTransaction{TransactionError: json.RawMessage("null")}
	assert.False(t, nullErr.Failed())

	failed := EnhancedTransaction{TransactionError: json.RawMessage(`{"InstructionError":[0,"Custom"]}`)}
	assert.True(t, failed.Failed())
}
