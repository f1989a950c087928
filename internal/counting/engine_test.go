package counting

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEngine_CreatesSequentialIDs(t *testing.T) {
	e := NewEngine()
	res := e.ProcessFrame(frame(720, 30, det(100, 100, 500), det(500, 500, 500)), testParams())

	if res.Created != 2 {
		t.Errorf("created = %d, want 2", res.Created)
	}
	var got []PassengerTrack
	for _, tr := range e.Tracks() {
		got = append(got, PassengerTrack{ID: tr.ID, Trajectory: tr.Trajectory})
	}
	want := []PassengerTrack{
		{ID: 0, Trajectory: []Point{{X: 100, Y: 100}}},
		{ID: 1, Trajectory: []Point{{X: 500, Y: 500}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tracks mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_ConsecutiveFramesMergeIntoOneTrack(t *testing.T) {
	e := NewEngine()
	p := testParams()

	e.ProcessFrame(frame(720, 30, det(100, 100, 500)), p)
	res := e.ProcessFrame(frame(720, 30, det(120, 130, 500)), p)

	if res.Matched != 1 || res.Created != 0 {
		t.Errorf("matched %d created %d, want 1 and 0", res.Matched, res.Created)
	}
	tracks := e.Tracks()
	if len(tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(tracks))
	}
	if tracks[0].ID != 0 || len(tracks[0].Trajectory) != 2 {
		t.Errorf("track = id %d with %d points, want id 0 with 2", tracks[0].ID, len(tracks[0].Trajectory))
	}
}

func TestEngine_DownwardCrossingCountsOut(t *testing.T) {
	e := NewEngine()
	p := testParams()

	e.ProcessFrame(frame(100, 30, det(10, 40, 500)), p)
	res := e.ProcessFrame(frame(100, 30, det(10, 60, 500)), p)

	if e.Counters() != (Counters{Out: 1}) {
		t.Errorf("counters = %+v, want Out=1", e.Counters())
	}
	if len(res.Crossings) != 1 {
		t.Fatalf("got %d crossings, want 1", len(res.Crossings))
	}
	if ev := res.Crossings[0]; ev.Direction != DirectionOut || ev.Frame != 2 {
		t.Errorf("crossing = %s at frame %d, want out at frame 2", ev.Direction, ev.Frame)
	}
}

func TestEngine_TwoPersonAreaCountsTwo(t *testing.T) {
	e := NewEngine()
	p := testParams()
	area := (p.OnePersonMaxArea + p.TwoPersonMaxArea) / 2

	e.ProcessFrame(frame(100, 30, det(10, 40, area)), p)
	e.ProcessFrame(frame(100, 30, det(10, 60, area)), p)

	if e.Counters() != (Counters{Out: 2}) {
		t.Errorf("counters = %+v, want Out=2", e.Counters())
	}
}

func TestEngine_UpwardCrossingCountsIn(t *testing.T) {
	e := NewEngine()
	p := testParams()

	e.ProcessFrame(frame(100, 30, det(10, 60, 5000)), p)
	e.ProcessFrame(frame(100, 30, det(10, 40, 5000)), p)

	if e.Counters() != (Counters{In: 3}) {
		t.Errorf("counters = %+v, want In=3", e.Counters())
	}
}

func TestEngine_DiscardsSmallAndMalformedDetections(t *testing.T) {
	e := NewEngine()
	res := e.ProcessFrame(frame(100, 30,
		det(10, 10, 50),
		det(math.NaN(), 10, 500),
		det(10, 10, -1),
		det(300, 10, 500),
	), testParams())

	if res.Discarded != 3 || res.Created != 1 {
		t.Errorf("discarded %d created %d, want 3 and 1", res.Discarded, res.Created)
	}
	if n := e.TrackCount(); n != 1 {
		t.Errorf("TrackCount() = %d, want 1", n)
	}
}

func TestEngine_NoDetectionsOnlyAges(t *testing.T) {
	e := NewEngine()
	p := testParams()
	e.ProcessFrame(frame(100, 30, det(10, 10, 500), det(300, 10, 500)), p)
	before := e.Tracks()

	res := e.ProcessFrame(frame(100, 30), p)

	if res.Created != 0 || res.Matched != 0 {
		t.Errorf("created %d matched %d on an empty frame", res.Created, res.Matched)
	}
	after := e.Tracks()
	if len(after) != len(before) {
		t.Fatalf("got %d tracks, want %d", len(after), len(before))
	}
	for i := range after {
		if after[i].ID != before[i].ID || after[i].Age != before[i].Age+1 {
			t.Errorf("track %d: id %d age %d, want id %d age %d",
				i, after[i].ID, after[i].Age, before[i].ID, before[i].Age+1)
		}
		if diff := cmp.Diff(before[i].Trajectory, after[i].Trajectory); diff != "" {
			t.Errorf("track %d trajectory changed (-before +after):\n%s", i, diff)
		}
	}
}

func TestEngine_EvictsAfterMaxAge(t *testing.T) {
	e := NewEngine()
	p := testParams()
	p.MaxPassengerAgeSeconds = 1

	e.ProcessFrame(frame(100, 2, det(10, 10, 500)), p) // age 1
	e.ProcessFrame(frame(100, 2), p)                   // age 2
	if n := e.TrackCount(); n != 1 {
		t.Fatalf("TrackCount() at age 2 = %d, want 1", n)
	}
	res := e.ProcessFrame(frame(100, 2), p) // age 3 > 2
	if diff := cmp.Diff([]int{0}, res.Evicted); diff != "" {
		t.Errorf("evicted mismatch (-want +got):\n%s", diff)
	}
	if n := e.TrackCount(); n != 0 {
		t.Errorf("TrackCount() = %d, want 0", n)
	}

	// Ids are never reused.
	e.ProcessFrame(frame(100, 2, det(10, 10, 500)), p)
	if id := e.Tracks()[0].ID; id != 1 {
		t.Errorf("new track id = %d, want 1", id)
	}
}

func TestEngine_NaNFramerateEvicts(t *testing.T) {
	e := NewEngine()
	res := e.ProcessFrame(frame(100, math.NaN(), det(10, 10, 500)), testParams())
	if diff := cmp.Diff([]int{0}, res.Evicted); diff != "" {
		t.Errorf("evicted mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_ParamsReadPerFrame(t *testing.T) {
	e := NewEngine()
	p := testParams()

	e.ProcessFrame(frame(720, 30, det(100, 100, 500)), p)
	p.XNear = 5
	// The narrowed window applies immediately.
	if res := e.ProcessFrame(frame(720, 30, det(120, 100, 500)), p); res.Created != 1 {
		t.Errorf("created = %d, want 1", res.Created)
	}
}

func TestEngine_SnapshotIsDetached(t *testing.T) {
	e := NewEngine()
	p := testParams()
	e.ProcessFrame(frame(100, 30, det(10, 40, 500)), p)

	snap := e.Snapshot()
	e.ProcessFrame(frame(100, 30, det(10, 60, 500)), p)

	if snap.Frame != 1 || snap.Midline != 50 || snap.Counters != (Counters{}) {
		t.Errorf("snapshot = frame %d midline %d counters %+v", snap.Frame, snap.Midline, snap.Counters)
	}
	if len(snap.Tracks) != 1 || len(snap.Tracks[0].Trajectory) != 1 {
		t.Errorf("snapshot tracks changed after the next frame: %+v", snap.Tracks)
	}

	if diff := cmp.Diff(Counters{Out: 1}, e.Snapshot().Counters); diff != "" {
		t.Errorf("counters mismatch (-want +got):\n%s", diff)
	}
}

// TestEngine_Properties drives the engine with random detections and
// checks the conservation and monotonicity invariants on every frame.
func TestEngine_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	e := NewEngine()
	p := testParams()

	var prev Counters
	ages := map[int]int{}
	for i := 0; i < 500; i++ {
		var dets []Detection
		for n := rng.Intn(5); n > 0; n-- {
			dets = append(dets, det(rng.Float64()*640, rng.Float64()*480, 101+rng.Float64()*3000))
		}
		fps := float64(rng.Intn(30))
		before := e.TrackCount()

		res := e.ProcessFrame(frame(480, fps, dets...), p)

		// Every qualifying detection either updated or created a track.
		if res.Matched+res.Created != len(dets) {
			t.Fatalf("frame %d: matched %d + created %d != %d detections", i, res.Matched, res.Created, len(dets))
		}
		if want := before + res.Created - len(res.Evicted); e.TrackCount() != want {
			t.Fatalf("frame %d: TrackCount() = %d, want %d", i, e.TrackCount(), want)
		}

		if res.Counters.In < prev.In || res.Counters.Out < prev.Out {
			t.Fatalf("frame %d: counters decreased from %+v to %+v", i, prev, res.Counters)
		}
		prev = res.Counters

		// Ages move forward by exactly one per frame, and every live track
		// is within its limit.
		limit := p.MaxAgeFrames(fps)
		seen := map[int]int{}
		for _, tr := range e.Tracks() {
			want := 1
			if old, ok := ages[tr.ID]; ok {
				want = old + 1
			}
			if tr.Age != want {
				t.Fatalf("frame %d: track %d age = %d, want %d", i, tr.ID, tr.Age, want)
			}
			if float64(tr.Age) > limit {
				t.Fatalf("frame %d: track %d age %d exceeds limit %v", i, tr.ID, tr.Age, limit)
			}
			if len(tr.Trajectory) == 0 {
				t.Fatalf("frame %d: track %d has no points", i, tr.ID)
			}
			seen[tr.ID] = tr.Age
		}
		ages = seen
	}
}
