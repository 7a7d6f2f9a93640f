// Package schedule synthesizes plausible timestamps for CRM activities
// across a sales cycle. It is a pure function library: configuration and
// the random source are passed in, nothing is global, and no I/O happens.
package schedule

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// Density is the statistical pattern governing how activity timestamps
// spread across a date window.
type Density string

const (
	DensityUniform     Density = "uniform"
	DensityFrontLoaded Density = "front-loaded"
	DensityBackLoaded  Density = "back-loaded"
	DensityBellCurve   Density = "bell-curve"
)

// Config carries the business-calendar settings. It is passed explicitly
// so tests can run deterministic and parallel.
type Config struct {
	BusinessStartHour int
	BusinessEndHour   int
	IncludeWeekends   bool
}

// DefaultConfig is a 9-to-5, weekdays-only calendar.
func DefaultConfig() Config {
	return Config{BusinessStartHour: 9, BusinessEndHour: 17}
}

// Window is an inclusive date range.
type Window struct {
	Start time.Time
	End   time.Time
}

// totalCycleDays is the modeled length of a full sales cycle.
const totalCycleDays = 90

// FallbackRemainingDays is used when a stage name is not in the table.
// This mirrors long-standing behavior: unknown stage means a fixed
// mid-cycle remainder, nothing stricter.
const FallbackRemainingDays = 45

// stageRemainingDays maps pipeline stage names to the expected number of
// days remaining until close.
var stageRemainingDays = map[string]int{
	"Prospecting":          90,
	"Qualification":        75,
	"Needs Analysis":       60,
	"Value Proposition":    45,
	"Id. Decision Makers":  40,
	"Perception Analysis":  30,
	"Proposal/Price Quote": 20,
	"Negotiation/Review":   10,
}

// SalesCycleWindow derives the activity window for an opportunity from
// its close date and pipeline stage: the window ends at the close date
// and starts where the cycle would have begun given the stage's expected
// remaining days.
func SalesCycleWindow(closeDate time.Time, stage string) Window {
	remaining, ok := stageRemainingDays[stage]
	if !ok {
		remaining = FallbackRemainingDays
	}
	// The window covers the part of the cycle already elapsed, measured
	// back from the close date.
	elapsed := totalCycleDays - remaining
	return Window{
		Start: closeDate.AddDate(0, 0, -elapsed),
		End:   closeDate,
	}
}

// ActivitySlots returns exactly count timestamps inside the window,
// sorted ascending, distributed across candidate business days according
// to the density shape. When weekend filtering leaves no candidate days,
// it falls back to an even spread over the raw window so the caller
// always gets count slots.
func ActivitySlots(rng *rand.Rand, cfg Config, count int, w Window, shape Density) []time.Time {
	if count <= 0 {
		return nil
	}

	days := candidateDays(cfg, w)
	if len(days) == 0 {
		return evenSpread(count, w)
	}

	perDay := distributeAcrossDays(rng, count, len(days), shape)

	slots := make([]time.Time, 0, count)
	for i, n := range perDay {
		slots = append(slots, timesWithinDay(rng, cfg, days[i], n)...)
	}

	// Business-hour offsets on the boundary days can step outside a
	// window that starts or ends mid-day; clamp so every slot stays
	// inside [Start, End].
	for i, s := range slots {
		if s.Before(w.Start) {
			slots[i] = w.Start
		} else if s.After(w.End) {
			slots[i] = w.End
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots
}

// candidateDays lists every calendar day in the window, filtered by
// weekend inclusion.
func candidateDays(cfg Config, w Window) []time.Time {
	start := time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, w.Start.Location())
	end := time.Date(w.End.Year(), w.End.Month(), w.End.Day(), 0, 0, 0, 0, w.End.Location())

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !cfg.IncludeWeekends && isWeekend(d) {
			continue
		}
		days = append(days, d)
	}
	return days
}

// distributeAcrossDays decides how many activities land on each day.
func distributeAcrossDays(rng *rand.Rand, count, days int, shape Density) []int {
	perDay := make([]int, days)

	switch shape {
	case DensityFrontLoaded, DensityBackLoaded:
		// Squaring a uniform variate biases toward 0; the complement
		// biases toward 1.
		for i := 0; i < count; i++ {
			u := rng.Float64()
			frac := u * u
			if shape == DensityBackLoaded {
				frac = 1 - frac
			}
			perDay[dayIndex(frac, days)]++
		}

	case DensityBellCurve:
		for i := 0; i < count; i++ {
			// Box-Muller, re-centered on the window midpoint.
			u1, u2 := rng.Float64(), rng.Float64()
			if u1 < 1e-12 {
				u1 = 1e-12
			}
			n := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
			frac := 0.5 + n*0.15
			if frac < 0 {
				frac = 0
			}
			if frac > 1 {
				frac = 1
			}
			perDay[dayIndex(frac, days)]++
		}

	default: // uniform
		base := count / days
		rem := count % days
		for i := range perDay {
			perDay[i] = base
			if i < rem {
				perDay[i]++
			}
		}
	}

	return perDay
}

func dayIndex(frac float64, days int) int {
	idx := int(frac * float64(days))
	if idx >= days {
		idx = days - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// timesWithinDay spreads n activities evenly across the business-hour
// range with independent random-minute jitter.
func timesWithinDay(rng *rand.Rand, cfg Config, day time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}

	startHour, endHour := cfg.BusinessStartHour, cfg.BusinessEndHour
	if endHour <= startHour {
		startHour, endHour = 9, 17
	}
	spanMinutes := (endHour - startHour) * 60

	times := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		// Even spacing with jitter inside each activity's slice.
		slice := spanMinutes / n
		if slice < 1 {
			slice = 1
		}
		offset := i*slice + rng.Intn(slice)
		if offset >= spanMinutes {
			offset = spanMinutes - 1
		}
		times = append(times, day.Add(time.Duration(startHour)*time.Hour+time.Duration(offset)*time.Minute))
	}
	return times
}

// evenSpread ignores the business-day filter and spaces count slots
// evenly across the raw window.
func evenSpread(count int, w Window) []time.Time {
	span := w.End.Sub(w.Start)
	if span <= 0 {
		slots := make([]time.Time, count)
		for i := range slots {
			slots[i] = w.Start
		}
		return slots
	}

	step := span / time.Duration(count+1)
	slots := make([]time.Time, 0, count)
	for i := 1; i <= count; i++ {
		slots = append(slots, w.Start.Add(step*time.Duration(i)))
	}
	return slots
}

// EmailThreadTimestamps builds a causal chain of message times: each is
// the previous plus a uniformly random delay in [minDelay, maxDelay].
// With businessHoursOnly, each computed time is pulled forward to the
// next in-hours, non-weekend moment.
func EmailThreadTimestamps(rng *rand.Rand, cfg Config, count int, start time.Time, minDelay, maxDelay time.Duration, businessHoursOnly bool) []time.Time {
	if count <= 0 {
		return nil
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	times := make([]time.Time, 0, count)
	current := start
	if businessHoursOnly {
		current = nextBusinessMoment(cfg, current)
	}
	times = append(times, current)

	for i := 1; i < count; i++ {
		delay := minDelay
		if maxDelay > minDelay {
			delay += time.Duration(rng.Int63n(int64(maxDelay - minDelay)))
		}
		current = current.Add(delay)
		if businessHoursOnly {
			current = nextBusinessMoment(cfg, current)
		}
		times = append(times, current)
	}
	return times
}

// nextBusinessMoment rolls a timestamp forward to the next moment inside
// business hours on a non-weekend day. The input is returned unchanged if
// it already qualifies.
func nextBusinessMoment(cfg Config, t time.Time) time.Time {
	startHour, endHour := cfg.BusinessStartHour, cfg.BusinessEndHour
	if endHour <= startHour {
		startHour, endHour = 9, 17
	}

	for {
		if isWeekend(t) && !cfg.IncludeWeekends {
			t = startOfDay(t.AddDate(0, 0, 1)).Add(time.Duration(startHour) * time.Hour)
			continue
		}
		if t.Hour() < startHour {
			t = startOfDay(t).Add(time.Duration(startHour) * time.Hour)
			continue
		}
		if t.Hour() >= endHour {
			t = startOfDay(t.AddDate(0, 0, 1)).Add(time.Duration(startHour) * time.Hour)
			continue
		}
		return t
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
