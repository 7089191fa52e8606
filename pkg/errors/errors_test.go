package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesWrappedCode(t *testing.T) {
	err := fmt.Errorf("open transaction: %w", ConcurrentModification("listing", "l-1"))

	assert.True(t, Is(err, CodeConcurrentModification))
	assert.False(t, Is(err, CodeInvalidTransition))
	assert.True(t, IsRetryable(err))
}

func TestInvalidTransitionCarriesContext(t *testing.T) {
	err := InvalidTransition("listing", "l-1", "sold", "pending")

	assert.Equal(t, http.StatusConflict, err.Status)
	assert.Equal(t, "l-1", err.Details["id"])
	assert.Equal(t, "sold", err.Details["from"])
	assert.Equal(t, "pending", err.Details["to"])
	assert.False(t, IsRetryable(err))
}

func TestPersistenceIsRetryable(t *testing.T) {
	err := Persistence("Failed to save listing", fmt.Errorf("disk full"))

	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "disk full")
}
