package weave

// NearestIndex finds the element of seq whose key is closest to target, where
// seq is ordered ascending by key. Targets outside the sequence clamp to the
// boundary elements; ties break toward the lower index. Returns -1 for an
// empty sequence.
//
// Binary search alone can land on an adjacent-but-not-nearest element when
// many same-day keys collapse onto one calendar date, so the narrowed
// candidate is refined by walking neighbors while the absolute minute
// distance keeps shrinking. Skipping that walk produces wrong window
// boundaries for date-ranged queries.
func NearestIndex[T any](seq []T, target MessageTime, key func(T) MessageTime) int {
	if len(seq) == 0 {
		return -1
	}

	lo, hi := 0, len(seq)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if key(seq[mid]).Before(target) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	best := lo
	bestDist := absDistance(key(seq[best]), target)

	// Walk left first so that equal-distance ties settle on the lower index.
	for i := best - 1; i >= 0; i-- {
		d := absDistance(key(seq[i]), target)
		if d > bestDist {
			break
		}
		best, bestDist = i, d
	}
	for i := best + 1; i < len(seq); i++ {
		d := absDistance(key(seq[i]), target)
		if d >= bestDist {
			break
		}
		best, bestDist = i, d
	}
	return best
}

func absDistance(a, b MessageTime) int {
	d := a.DistanceMinutes(b)
	if d < 0 {
		return -d
	}
	return d
}
