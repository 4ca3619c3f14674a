package utils

import (
	"math/rand"
	"sync"
	"time"
)

// SendSlot is one weighted hour-of-day bucket in local time.
type SendSlot struct {
	Hour   int
	Weight int
}

// DefaultSendSlots spreads sends over business hours. Bursty, bot-like
// delivery risks the marketplace's abuse detection; a weighted scatter keeps
// the traffic shaped like a human support team.
var DefaultSendSlots = []SendSlot{
	{Hour: 10, Weight: 15},
	{Hour: 11, Weight: 15},
	{Hour: 12, Weight: 15},
	{Hour: 13, Weight: 15},
	{Hour: 14, Weight: 10},
	{Hour: 15, Weight: 10},
	{Hour: 16, Weight: 10},
	{Hour: 17, Weight: 10},
}

// SlotScheduler picks the next send timestamp: a cumulative-weight draw over
// the hour buckets, a uniform minute within the hour, always on the following
// calendar day in the configured local zone. Rand and Now are swappable so
// tests can pin the draw.
type SlotScheduler struct {
	Slots    []SendSlot
	Location *time.Location
	Rand     *rand.Rand
	Now      func() time.Time

	mu sync.Mutex
}

// NewSlotScheduler builds a scheduler for a fixed UTC offset in hours.
func NewSlotScheduler(slots []SendSlot, offsetHours int) *SlotScheduler {
	if len(slots) == 0 {
		slots = DefaultSendSlots
	}
	return &SlotScheduler{
		Slots:    slots,
		Location: time.FixedZone("local", offsetHours*3600),
		Rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		Now:      time.Now,
	}
}

// NextSendAt returns tomorrow's send time in UTC.
func (ss *SlotScheduler) NextSendAt() time.Time {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	total := 0
	for _, s := range ss.Slots {
		total += s.Weight
	}

	draw := ss.Rand.Intn(total)
	hour := ss.Slots[0].Hour
	for _, s := range ss.Slots {
		draw -= s.Weight
		if draw < 0 {
			hour = s.Hour
			break
		}
	}
	minute := ss.Rand.Intn(60)

	tomorrow := ss.Now().In(ss.Location).AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), hour, minute, 0, 0, ss.Location).UTC()
}

// StartOfDay returns the local start of the calendar day containing t, in UTC.
// Used for the one-message-per-day cap.
func (ss *SlotScheduler) StartOfDay(t time.Time) time.Time {
	local := t.In(ss.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, ss.Location).UTC()
}
