package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Second, backoff(5*time.Second, 0))
	assert.Equal(t, 20*time.Second, backoff(5*time.Second, 2))
	assert.Equal(t, time.Hour, backoff(5*time.Second, 30))
}
