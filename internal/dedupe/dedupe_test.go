// ABOUTME: Tests for the event dedupe tracker
// ABOUTME: Covers duplicate detection, TTL expiry and size-capped eviction

package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeen_FirstTimeFalse(t *testing.T) {
	tr := NewTracker(time.Minute, 100)
	defer tr.Close()

	assert.False(t, tr.Seen("$evt1"))
	assert.True(t, tr.Seen("$evt1"))
}

func TestSeen_ExpiresAfterTTL(t *testing.T) {
	tr := NewTracker(10*time.Millisecond, 100)
	defer tr.Close()

	assert.False(t, tr.Seen("$evt1"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, tr.Seen("$evt1"), "expired entry must not count as seen")
}

func TestSeen_EvictsAtCapacity(t *testing.T) {
	tr := NewTracker(time.Minute, 3)
	defer tr.Close()

	for i := 0; i < 4; i++ {
		tr.Seen(fmt.Sprintf("$evt%d", i))
	}

	// The oldest entry was evicted to make room.
	assert.False(t, tr.Seen("$evt0"))
	assert.True(t, tr.Seen("$evt3"))
}

func TestClose_Idempotent(t *testing.T) {
	tr := NewTracker(time.Minute, 10)
	tr.Close()
	tr.Close()
}
