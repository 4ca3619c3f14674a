package utils

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScheduler(seed int64, at time.Time) *SlotScheduler {
	ss := NewSlotScheduler(DefaultSendSlots, 3)
	ss.Rand = rand.New(rand.NewSource(seed))
	ss.Now = func() time.Time { return at }
	return ss
}

func TestNextSendAtSupport(t *testing.T) {
	now := time.Date(2024, 3, 14, 18, 30, 0, 0, time.UTC)
	ss := testScheduler(1, now)

	allowed := map[int]bool{}
	for _, s := range DefaultSendSlots {
		allowed[s.Hour] = true
	}

	for i := 0; i < 500; i++ {
		got := ss.NextSendAt()
		local := got.In(ss.Location)

		assert.True(t, allowed[local.Hour()], "hour %d not in configured slots", local.Hour())

		tomorrow := now.In(ss.Location).AddDate(0, 0, 1)
		assert.Equal(t, tomorrow.Year(), local.Year())
		assert.Equal(t, tomorrow.Month(), local.Month())
		assert.Equal(t, tomorrow.Day(), local.Day())

		assert.True(t, got.After(now), "send time must be in the future")
	}
}

func TestNextSendAtDeterministicWithSeededRand(t *testing.T) {
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)

	a := testScheduler(42, now)
	b := testScheduler(42, now)

	for i := 0; i < 50; i++ {
		require.Equal(t, a.NextSendAt(), b.NextSendAt())
	}
}

func TestNextSendAtWeightsShape(t *testing.T) {
	// With enough draws every configured hour must appear; the heavier
	// morning buckets must not lose to the lighter afternoon ones.
	now := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	ss := testScheduler(7, now)

	counts := map[int]int{}
	const n = 4000
	for i := 0; i < n; i++ {
		counts[ss.NextSendAt().In(ss.Location).Hour()]++
	}

	for _, s := range DefaultSendSlots {
		assert.Greater(t, counts[s.Hour], 0, "hour %d never drawn", s.Hour)
	}
	assert.Greater(t, counts[10], counts[14], "weight 15 bucket should outdraw weight 10 bucket")
}

func TestStartOfDay(t *testing.T) {
	ss := testScheduler(1, time.Now())

	// 01:30 UTC is 04:30 MSK; the local day started at 00:00 MSK = 21:00 UTC
	// the previous calendar day.
	at := time.Date(2024, 3, 14, 1, 30, 0, 0, time.UTC)
	got := ss.StartOfDay(at)

	assert.Equal(t, time.Date(2024, 3, 13, 21, 0, 0, 0, time.UTC), got)
	assert.False(t, got.After(at))
}
