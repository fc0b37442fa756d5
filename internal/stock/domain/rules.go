package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MaterialDelta is the net signed change to one material
type MaterialDelta struct {
	MaterialID string
	Delta      decimal.Decimal
}

// NetDeltas folds refs into one net delta per material. Materials whose
// lines cancel out are dropped. The result is ordered by material ID so
// concurrent multi-material writers touch rows in the same order.
func NetDeltas(refs []MaterialRef) []MaterialDelta {
	sums := make(map[string]decimal.Decimal, len(refs))
	for _, ref := range refs {
		sums[ref.MaterialID] = sums[ref.MaterialID].Add(ref.Delta())
	}

	out := make([]MaterialDelta, 0, len(sums))
	for id, d := range sums {
		if d.IsZero() {
			continue
		}
		out = append(out, MaterialDelta{MaterialID: id, Delta: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaterialID < out[j].MaterialID })
	return out
}

// Invert flips the direction of every ref
func Invert(refs []MaterialRef) []MaterialRef {
	out := make([]MaterialRef, len(refs))
	for i, ref := range refs {
		out[i] = ref
		if ref.Direction == DirectionConsume {
			out[i].Direction = DirectionReceive
		} else {
			out[i].Direction = DirectionConsume
		}
	}
	return out
}

// ReviseDeltas returns the net deltas that turn the effect of oldRefs into
// the effect of newRefs
func ReviseDeltas(oldRefs, newRefs []MaterialRef) []MaterialDelta {
	combined := make([]MaterialRef, 0, len(oldRefs)+len(newRefs))
	combined = append(combined, Invert(oldRefs)...)
	combined = append(combined, newRefs...)
	return NetDeltas(combined)
}

// DaysUntil returns the whole calendar days (UTC) from now until expiry.
// Expired dates give a negative number.
func DaysUntil(expiry, now time.Time) int {
	e := truncateDay(expiry)
	n := truncateDay(now)
	return int(e.Sub(n).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ExpiresWithin reports whether the batch has an expiry within the window,
// counting already expired batches
func (b *StockBatch) ExpiresWithin(windowDays int, now time.Time) bool {
	return b.Expiry != nil && DaysUntil(*b.Expiry, now) <= windowDays
}

// ExpiryCutoff is the latest expiry instant that is still within windowDays
// of now under DaysUntil
func ExpiryCutoff(windowDays int, now time.Time) time.Time {
	return truncateDay(now).AddDate(0, 0, windowDays+1).Add(-time.Nanosecond)
}
