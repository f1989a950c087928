package counting

// TrackLifecycleManager ages tracks once per frame and evicts those
// older than the configured lifetime.
type TrackLifecycleManager struct{}

// Advance increments every track's age and then removes tracks whose
// age exceeds maxAgeSeconds × fps. All ages are bumped before any
// eviction decision. A zero or negative threshold evicts everything.
func (TrackLifecycleManager) Advance(set *TrackSet, maxAgeSeconds, fps float64) []int {
	set.Each(func(t *PassengerTrack) {
		t.Age++
	})
	limit := maxAgeSeconds * fps
	return set.removeIf(func(t *PassengerTrack) bool {
		return float64(t.Age) > limit
	})
}
