package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupWithinWindow(t *testing.T) {
	w := New(5 * time.Minute)
	assert.False(t, w.SeenRecently("system_failures", "abc"))
	assert.True(t, w.SeenRecently("system_failures", "abc"), "second occurrence within the window must be suppressed")
}

func TestDedupExpiresAfterWindow(t *testing.T) {
	w := New(5 * time.Minute)
	base := time.Unix(0, 0)
	w.now = func() time.Time { return base }
	assert.False(t, w.SeenRecently("system_failures", "abc"))

	w.now = func() time.Time { return base.Add(6 * time.Minute) }
	assert.False(t, w.SeenRecently("system_failures", "abc"), "checksum older than the window must be treated as new")
}

func TestDedupIsPerEndpoint(t *testing.T) {
	w := New(5 * time.Minute)
	assert.False(t, w.SeenRecently("system_failures", "abc"))
	assert.False(t, w.SeenRecently("volume_parity_check_status", "abc"), "same checksum on a different endpoint must not collide")
}
