// Package schedule resolves which applet, at which brightness, is active at a
// given time of day.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/coreman2200/funtimes-arcaluminis/internal/config"
)

const (
	SecondsPerDay = 24 * 60 * 60
	// FullBrightness is used for every slot when there is no brightness
	// schedule.
	FullBrightness = 1.0

	// MaxSleep caps how long the producer sleeps between checks.
	MaxSleep = time.Hour
)

// Slot is one row of the day table: from Start (seconds since midnight)
// until the next slot, Applet runs at Brightness.
type Slot struct {
	Start      int
	Applet     config.Applet
	Brightness float64
}

// Table is the sorted slot table for one day. It wraps at midnight: times
// before the first slot belong to the last slot of the previous day.
type Table struct {
	slots []Slot
}

// Build merges the applet and brightness start times into one table. A
// brightness schedule is only used when b.Source is schedule.
func Build(applets []config.Applet, b config.Brightness) (*Table, error) {
	if len(applets) == 0 {
		return nil, errors.New("schedule: no applets")
	}
	byStart := make(map[int]config.Applet, len(applets))
	for _, a := range applets {
		secs, err := config.ParseClock(a.StartTime)
		if err != nil {
			return nil, fmt.Errorf("applet %q: %w", a.Name, err)
		}
		if prev, ok := byStart[secs]; ok {
			return nil, fmt.Errorf("%w %s: applets %q and %q", config.ErrDuplicateStart, a.StartTime, prev.Name, a.Name)
		}
		byStart[secs] = a
	}
	levels := map[int]float64{}
	if b.Source == config.SourceSchedule {
		for _, e := range b.Schedule {
			secs, err := config.ParseClock(e.StartTime)
			if err != nil {
				return nil, fmt.Errorf("brightness: %w", err)
			}
			if _, ok := levels[secs]; ok {
				return nil, fmt.Errorf("%w %s: brightness", config.ErrDuplicateStart, e.StartTime)
			}
			levels[secs] = e.Value
		}
	}

	appletStarts := sortedKeys(byStart)
	if len(levels) == 0 {
		t := &Table{}
		for _, s := range appletStarts {
			t.slots = append(t.slots, Slot{Start: s, Applet: byStart[s], Brightness: FullBrightness})
		}
		return t, nil
	}

	levelStarts := sortedKeys(levels)
	starts := map[int]struct{}{}
	for _, s := range appletStarts {
		starts[s] = struct{}{}
	}
	for _, s := range levelStarts {
		starts[s] = struct{}{}
	}

	// The day starts with whatever was active at the end of the previous one.
	applet := byStart[appletStarts[len(appletStarts)-1]]
	level := levels[levelStarts[len(levelStarts)-1]]
	t := &Table{}
	for _, s := range sortedKeys(starts) {
		if a, ok := byStart[s]; ok {
			applet = a
		}
		if l, ok := levels[s]; ok {
			level = l
		}
		t.slots = append(t.slots, Slot{Start: s, Applet: applet, Brightness: level})
	}
	return t, nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (t *Table) Len() int { return len(t.slots) }

// Slots returns a copy of the table rows.
func (t *Table) Slots() []Slot { return append([]Slot(nil), t.slots...) }

// Current returns the slot active at daySecs and the start of the following
// slot. hasNext is false when the table has a single slot and nothing ever
// changes.
func (t *Table) Current(daySecs int) (cur Slot, next int, hasNext bool) {
	n := len(t.slots)
	if n == 1 {
		return t.slots[0], 0, false
	}
	idx := sort.Search(n, func(i int) bool { return t.slots[i].Start >= daySecs })
	switch {
	case idx == n:
		idx = n - 1
	case t.slots[idx].Start != daySecs:
		idx = (idx - 1 + n) % n
	}
	return t.slots[idx], t.slots[(idx+1)%n].Start, true
}

// ShouldUpdate reports whether the slot starting at curStart has ended by
// daySecs, given the next slot starts at next. The last slot of the day runs
// past midnight until next on the following day.
func ShouldUpdate(curStart, next int, hasNext bool, daySecs int) bool {
	if !hasNext {
		return false
	}
	if curStart < next {
		return daySecs >= next
	}
	if daySecs >= curStart {
		return false
	}
	return daySecs >= next
}

// UntilNext is the time from daySecs until the slot starting at next begins,
// capped at MaxSleep. Without a next slot it is MaxSleep.
func UntilNext(daySecs, next int, hasNext bool) time.Duration {
	if !hasNext {
		return MaxSleep
	}
	secs := next - daySecs
	if daySecs > next {
		secs = SecondsPerDay - daySecs + next
	}
	return min(time.Duration(secs)*time.Second, MaxSleep)
}

// DaySeconds is the local wall-clock time of t in seconds since midnight.
func DaySeconds(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
