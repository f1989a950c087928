package counting

// TrackAssociator matches detections to tracks. The rule is first match
// in creation order, not best match: a detection joins the oldest live
// track whose current centroid lies within XNear and YNear of it.
type TrackAssociator struct{}

// Associate attaches d to a track in set, creating one if nothing is
// near. The caller must have filtered d with Detection.qualifies.
func (TrackAssociator) Associate(set *TrackSet, d Detection, p Params) (track *PassengerTrack, created bool) {
	if t := set.firstNear(d.Centroid, p.XNear, p.YNear); t != nil {
		t.Trajectory = append(t.Trajectory, d.Centroid)
		return t, false
	}
	return set.create(d.Centroid), true
}
