package player

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"VibeMelody/model"
)

// recorder captures published activities.
type recorder struct {
	mu         sync.Mutex
	activities []string
}

func (r *recorder) Playing(t model.Track) { r.add(t.Label()) }
func (r *recorder) Idle()                 { r.add(model.IdleActivity) }

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.activities = append(r.activities, s)
	r.mu.Unlock()
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.activities...)
}

func (r *recorder) last() string {
	all := r.all()
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1]
}

type memStore struct {
	mu    sync.Mutex
	rec   *model.PersistentPlayback
	saves int
}

func (s *memStore) Load(ctx context.Context) (*model.PersistentPlayback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec, nil
}

func (s *memStore) Save(ctx context.Context, p *model.PersistentPlayback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.rec = &cp
	s.saves++
	return nil
}

func tracks(ids ...string) []model.Track {
	out := make([]model.Track, len(ids))
	for i, id := range ids {
		out[i] = model.Track{ID: id, Title: "Song " + id, Artist: "Artist " + id, Duration: 180}
	}
	return out
}

func checkInvariant(t *testing.T, e *Engine) {
	t.Helper()
	ps := e.Snapshot()
	q := e.Queue()
	if (ps.CurrentIndex == -1) != (ps.CurrentTrack == nil) {
		t.Fatalf("index %d with track %v", ps.CurrentIndex, ps.CurrentTrack)
	}
	if ps.CurrentIndex >= 0 {
		if ps.CurrentIndex >= len(q) {
			t.Fatalf("index %d out of queue of %d", ps.CurrentIndex, len(q))
		}
		if q[ps.CurrentIndex].ID != ps.CurrentTrack.ID {
			t.Fatalf("queue[%d] = %s, current = %s", ps.CurrentIndex, q[ps.CurrentIndex].ID, ps.CurrentTrack.ID)
		}
	}
}

func TestLoadQueueStartsPlaying(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(rec, nil)

	if err := e.LoadQueue(tracks("a", "b", "c"), 1); err != nil {
		t.Fatalf("LoadQueue: %v", err)
	}
	ps := e.Snapshot()
	if ps.CurrentIndex != 1 || ps.CurrentTrack.ID != "b" || !ps.IsPlaying {
		t.Fatalf("unexpected state %+v", ps)
	}
	if ps.CurrentTime != 0 || ps.Duration != 180 {
		t.Fatalf("session record = %+v", ps.SessionPlayback)
	}
	if got := rec.all(); len(got) != 1 || got[0] != "Playing Song b by Artist b" {
		t.Fatalf("activities = %v", got)
	}
	if e.State() != StatePlaying {
		t.Fatalf("state = %s", e.State())
	}
}

func TestLoadQueueRejectsMalformedInput(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(rec, nil)
	e.LoadQueue(tracks("a"), 0)
	before := e.Snapshot()

	if err := e.LoadQueue(nil, 0); !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("empty queue err = %v", err)
	}
	if err := e.LoadQueue(tracks("x", "y"), 2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("bad index err = %v", err)
	}
	if err := e.LoadQueue(tracks("x", "y"), -1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("negative index err = %v", err)
	}
	after := e.Snapshot()
	if after.CurrentTrack.ID != before.CurrentTrack.ID || len(e.Queue()) != 1 {
		t.Fatal("rejected LoadQueue mutated state")
	}
	if len(rec.all()) != 1 {
		t.Fatalf("rejected LoadQueue published: %v", rec.all())
	}
}

func TestAdvanceNextStopsAtEndWithoutRepeat(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(rec, nil)
	e.LoadQueue(tracks("a", "b", "c"), 0)

	for _, want := range []int{1, 2} {
		e.Advance(Next)
		if got := e.Snapshot().CurrentIndex; got != want {
			t.Fatalf("index = %d, want %d", got, want)
		}
	}
	e.Advance(Next)
	ps := e.Snapshot()
	if ps.CurrentIndex != 2 || ps.IsPlaying {
		t.Fatalf("after end: index %d playing %v", ps.CurrentIndex, ps.IsPlaying)
	}
	if e.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", e.State())
	}
	if rec.last() != model.IdleActivity {
		t.Fatalf("last activity = %q, want Idle", rec.last())
	}
	checkInvariant(t, e)
}

func TestAdvanceNextWrapsWithRepeatAll(t *testing.T) {
	e := NewEngine(nil, nil)
	e.LoadQueue(tracks("a", "b"), 1)
	e.SetRepeat(model.RepeatAll)

	e.Advance(Next)
	ps := e.Snapshot()
	if ps.CurrentIndex != 0 || !ps.IsPlaying {
		t.Fatalf("wrap: index %d playing %v", ps.CurrentIndex, ps.IsPlaying)
	}
}

func TestAdvanceNextRepeatOneKeepsIndex(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(rec, nil)
	e.LoadQueue(tracks("a", "b"), 0)
	e.CycleRepeat()
	if e.Snapshot().Repeat != model.RepeatOne {
		t.Fatalf("repeat = %s", e.Snapshot().Repeat)
	}

	e.Advance(Next)
	ps := e.Snapshot()
	if ps.CurrentIndex != 0 || !ps.IsPlaying {
		t.Fatalf("repeat one moved to %d", ps.CurrentIndex)
	}
	if got := rec.all(); len(got) != 2 || got[1] != got[0] {
		t.Fatalf("activities = %v", got)
	}
}

func TestAdvanceShuffleNeverRepeatsCurrent(t *testing.T) {
	e := NewEngine(nil, nil)
	e.LoadQueue(tracks("a", "b", "c", "d"), 0)
	e.ToggleShuffle()

	seen := make(map[int]bool)
	for i := 0; i < 500; i++ {
		before := e.Snapshot().CurrentIndex
		e.Advance(Next)
		after := e.Snapshot().CurrentIndex
		if after == before {
			t.Fatalf("shuffle stayed on index %d", after)
		}
		seen[after] = true
		checkInvariant(t, e)
	}
	if len(seen) != 4 {
		t.Fatalf("shuffle visited %d slots, want 4", len(seen))
	}
}

func TestAdvanceShuffleSingleTrackFallsThrough(t *testing.T) {
	e := NewEngine(nil, nil)
	e.LoadQueue(tracks("a"), 0)
	e.ToggleShuffle()

	e.Advance(Next)
	if e.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", e.State())
	}
}

func TestAdvancePreviousRestartsFirstTrack(t *testing.T) {
	e := NewEngine(nil, nil)
	e.LoadQueue(tracks("a", "b"), 1)

	for _, want := range []int{0, 0} {
		e.Advance(Previous)
		if got := e.Snapshot().CurrentIndex; got != want {
			t.Fatalf("index = %d, want %d", got, want)
		}
	}
}

func TestAdvanceOnEmptyQueue(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(rec, nil)

	if err := e.Advance(Next); !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("next on empty = %v", err)
	}
	if len(rec.all()) != 0 {
		t.Fatalf("next on empty published %v", rec.all())
	}
	if err := e.Advance(Previous); err != nil {
		t.Fatalf("previous on empty = %v", err)
	}
	if rec.last() != model.IdleActivity {
		t.Fatalf("previous on empty published %v", rec.all())
	}
	if e.State() != StateEmpty {
		t.Fatalf("state = %s", e.State())
	}
}

func TestTogglePlayback(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(rec, nil)

	if err := e.TogglePlayback(); !errors.Is(err, ErrNoTrack) {
		t.Fatalf("toggle without track = %v", err)
	}
	if e.Snapshot().IsPlaying || len(rec.all()) != 0 {
		t.Fatal("toggle without track changed state")
	}

	e.LoadQueue(tracks("a"), 0)
	e.TogglePlayback()
	if e.State() != StatePaused || rec.last() != model.IdleActivity {
		t.Fatalf("pause: state %s, last %q", e.State(), rec.last())
	}
	if e.Snapshot().CurrentTrack == nil {
		t.Fatal("pause unloaded the track")
	}
	e.TogglePlayback()
	if e.State() != StatePlaying || rec.last() != "Playing Song a by Artist a" {
		t.Fatalf("resume: state %s, last %q", e.State(), rec.last())
	}
}

func TestSetTrack(t *testing.T) {
	e := NewEngine(nil, nil)
	e.LoadQueue(tracks("a", "b", "c"), 0)
	e.Seek(42)

	c := tracks("c")[0]
	e.SetTrack(&c)
	ps := e.Snapshot()
	if ps.CurrentIndex != 2 || ps.CurrentTime != 0 {
		t.Fatalf("in-queue SetTrack: %+v", ps)
	}

	z := model.Track{ID: "z", Title: "Z", Artist: "Q"}
	e.SetTrack(&z)
	q := e.Queue()
	if len(q) != 1 || q[0].ID != "z" || e.Snapshot().CurrentIndex != 0 {
		t.Fatalf("out-of-queue SetTrack: queue %v index %d", q, e.Snapshot().CurrentIndex)
	}
	checkInvariant(t, e)

	if err := e.SetTrack(nil); !errors.Is(err, ErrNoTrack) {
		t.Fatalf("SetTrack(nil) = %v", err)
	}
}

func TestSetTrackPrefersCurrentSlotForDuplicates(t *testing.T) {
	e := NewEngine(nil, nil)
	q := tracks("a", "b", "a")
	e.LoadQueue(q, 2)
	e.SetTrack(&q[0])
	if got := e.Snapshot().CurrentIndex; got != 2 {
		t.Fatalf("index = %d, want current slot 2", got)
	}
}

func TestSeekAndVolumeClamp(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(rec, nil)

	e.Seek(-5)
	e.SetDuration(math.NaN())
	e.SetVolume(3)
	ps := e.Snapshot()
	if ps.CurrentTime != 0 || ps.Duration != 0 || ps.Volume != 1 {
		t.Fatalf("clamp: %+v", ps)
	}
	e.SetVolume(-1)
	if e.Snapshot().Volume != 0 {
		t.Fatalf("volume = %v", e.Snapshot().Volume)
	}
	if len(rec.all()) != 0 {
		t.Fatal("seek/volume published activity")
	}
}

func TestCycleRepeat(t *testing.T) {
	e := NewEngine(nil, nil)
	want := []model.RepeatMode{model.RepeatOne, model.RepeatAll, model.RepeatOff}
	for _, w := range want {
		if got := e.CycleRepeat(); got != w {
			t.Fatalf("CycleRepeat = %s, want %s", got, w)
		}
	}
	if err := e.SetRepeat("sometimes"); err == nil {
		t.Fatal("SetRepeat accepted an unknown mode")
	}
}

func TestInitializeQueue(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(rec, nil)

	e.InitializeQueue(tracks("a", "b"))
	ps := e.Snapshot()
	if ps.CurrentIndex != 0 || ps.IsPlaying {
		t.Fatalf("fresh initialize: %+v", ps)
	}

	e.LoadQueue(tracks("a", "b"), 1)
	e.InitializeQueue(tracks("x", "b", "y"))
	ps = e.Snapshot()
	if ps.CurrentIndex != 1 || ps.CurrentTrack.ID != "b" || !ps.IsPlaying {
		t.Fatalf("kept track: %+v", ps)
	}

	e.InitializeQueue(tracks("m", "n"))
	ps = e.Snapshot()
	if ps.CurrentTrack.ID != "m" || ps.IsPlaying {
		t.Fatalf("replaced track: %+v", ps)
	}
	// keeping the playing track is silent; dropping it publishes Idle once
	if got := rec.all(); len(got) != 2 || got[1] != model.IdleActivity {
		t.Fatalf("activities = %v", got)
	}

	e.InitializeQueue(tracks("p", "q"))
	if len(rec.all()) != 2 {
		t.Fatalf("initialize while paused published: %v", rec.all())
	}
	checkInvariant(t, e)
}

func TestInitializeQueueDroppingPlayingTrackPublishesIdle(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(rec, nil)
	e.LoadQueue(tracks("a"), 0)

	if err := e.InitializeQueue(tracks("b")); err != nil {
		t.Fatalf("InitializeQueue: %v", err)
	}
	ps := e.Snapshot()
	if ps.CurrentTrack.ID != "b" || ps.IsPlaying {
		t.Fatalf("state = %+v", ps)
	}
	got := rec.all()
	if len(got) != 2 || got[0] != "Playing Song a by Artist a" || got[1] != model.IdleActivity {
		t.Fatalf("activities = %v", got)
	}
}

func TestAnnounceRepublishesRestoredPlayback(t *testing.T) {
	store := &memStore{}
	e := NewEngine(nil, store)
	e.LoadQueue(tracks("a", "b"), 1)
	e.Close()

	rec := &recorder{}
	restored := NewEngine(rec, store)
	defer restored.Close()
	if len(rec.all()) != 0 {
		t.Fatalf("restore published: %v", rec.all())
	}
	restored.Announce()
	if got := rec.all(); len(got) != 1 || got[0] != "Playing Song b by Artist b" {
		t.Fatalf("activities = %v", got)
	}

	restored.TogglePlayback()
	restored.Announce()
	if got := rec.all(); len(got) != 2 {
		t.Fatalf("announce while paused published: %v", got)
	}
}

func TestResetEmptiesQueue(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(rec, nil)
	e.LoadQueue(tracks("a"), 0)
	e.SetVolume(0.3)

	e.Reset()
	ps := e.Snapshot()
	if e.State() != StateEmpty || ps.CurrentIndex != -1 || ps.IsPlaying || len(e.Queue()) != 0 {
		t.Fatalf("after reset: %+v", ps)
	}
	if ps.Volume != 0.3 {
		t.Fatalf("reset dropped volume: %v", ps.Volume)
	}
	if rec.last() != model.IdleActivity {
		t.Fatalf("reset while playing did not publish Idle")
	}
}

func TestInvariantHoldsUnderMixedOperations(t *testing.T) {
	e := NewEngine(nil, nil)
	q := tracks("a", "b", "a", "c")
	extra := model.Track{ID: "z"}
	ops := []func(){
		func() { e.LoadQueue(q, 3) },
		func() { e.Advance(Next) },
		func() { e.Advance(Previous) },
		func() { e.ToggleShuffle() },
		func() { e.CycleRepeat() },
		func() { e.TogglePlayback() },
		func() { e.SetTrack(&q[1]) },
		func() { e.SetTrack(&extra) },
		func() { e.InitializeQueue(q[:2]) },
		func() { e.Reset() },
	}
	for i := 0; i < 400; i++ {
		ops[(i*7+i/3)%len(ops)]()
		checkInvariant(t, e)
	}
}

func TestPersistAndRestore(t *testing.T) {
	store := &memStore{}
	e := NewEngine(nil, store)
	e.LoadQueue(tracks("a", "b"), 1)
	e.Seek(30)
	e.Close()

	if store.rec == nil || store.rec.CurrentIndex != 1 {
		t.Fatalf("saved record = %+v", store.rec)
	}

	restored := NewEngine(nil, store)
	defer restored.Close()
	ps := restored.Snapshot()
	if ps.CurrentIndex != 1 || ps.CurrentTrack.ID != "b" || !ps.IsPlaying {
		t.Fatalf("restored = %+v", ps)
	}
	if ps.CurrentTime != 0 {
		t.Fatalf("session record survived reload: %v", ps.CurrentTime)
	}
	if len(restored.Queue()) != 2 {
		t.Fatalf("restored queue = %v", restored.Queue())
	}
}

func TestRestoreDiscardsInconsistentRecord(t *testing.T) {
	bad := tracks("a", "b")
	store := &memStore{rec: &model.PersistentPlayback{
		CurrentTrack: &bad[0],
		Queue:        bad,
		CurrentIndex: 1,
		IsPlaying:    true,
	}}
	e := NewEngine(nil, store)
	defer e.Close()
	if e.State() != StateEmpty {
		t.Fatalf("state = %s, want empty", e.State())
	}
}
