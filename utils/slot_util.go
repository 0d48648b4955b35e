package utils

import "time"

// Slots maps wall-clock time onto forging slots. Timestamps are seconds since the network epoch.
type Slots struct {
	Epoch           time.Time
	Interval        int64
	ActiveDelegates int64
}

func NewSlots(epoch time.Time, intervalSeconds, activeDelegates int64) Slots {
	return Slots{Epoch: epoch, Interval: intervalSeconds, ActiveDelegates: activeDelegates}
}

// Time converts a wall-clock instant to a network timestamp.
func (s Slots) Time(t time.Time) int64 {
	return int64(t.Sub(s.Epoch) / time.Second)
}

// RealTime converts a network timestamp back to wall-clock time.
func (s Slots) RealTime(ts int64) time.Time {
	return s.Epoch.Add(time.Duration(ts) * time.Second)
}

func (s Slots) SlotNumber(ts int64) int64 {
	if ts < 0 {
		return 0
	}
	return ts / s.Interval
}

func (s Slots) SlotTime(slot int64) int64 {
	return slot * s.Interval
}

// NextSlot is the slot following the one containing ts.
func (s Slots) NextSlot(ts int64) int64 {
	return s.SlotNumber(ts) + 1
}

// LastSlot bounds a search starting at nextSlot to one full rotation of delegates.
func (s Slots) LastSlot(nextSlot int64) int64 {
	return nextSlot + s.ActiveDelegates
}
