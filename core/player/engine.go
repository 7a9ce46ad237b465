package player

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"VibeMelody/logger"
	"VibeMelody/model"
)

var (
	ErrEmptyQueue      = errors.New("player: empty queue")
	ErrNoTrack         = errors.New("player: no current track")
	ErrIndexOutOfRange = errors.New("player: index out of range")
)

// DefaultVolume is the volume of a fresh engine.
const DefaultVolume = 0.7

// Engine owns the queue and the playback state. Every mutation happens under
// mu, so transitions and their activity publishes are totally ordered.
// Rejected operations return an error and leave the state untouched.
type Engine struct {
	mu      sync.RWMutex
	queue   []model.Track
	ps      model.PlaybackState
	stopped bool // the queue ran out without wrap

	rnd       *rand.Rand
	publisher Publisher
	saver     *saver
}

// NewEngine creates an engine. publisher and store may be nil. When store
// holds a valid record it is restored before the engine is returned.
func NewEngine(publisher Publisher, store StateStore) *Engine {
	e := &Engine{
		ps: model.PlaybackState{
			CurrentIndex: -1,
			Repeat:       model.RepeatOff,
			Volume:       DefaultVolume,
		},
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		publisher: publisher,
	}
	if store != nil {
		e.restore(store)
		e.saver = newSaver(store)
	}
	return e
}

func (e *Engine) restore(store StateStore) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := store.Load(ctx)
	if err != nil {
		logger.Warn("load player state", logger.ErrorField(err))
		return
	}
	if p == nil {
		return
	}
	if !p.Valid() || (len(p.Queue) > 0 && p.CurrentTrack == nil) {
		logger.Warn("discarding inconsistent player state",
			logger.Int("index", p.CurrentIndex),
			logger.Int("queue", len(p.Queue)))
		return
	}

	e.queue = append([]model.Track(nil), p.Queue...)
	e.ps.CurrentIndex = p.CurrentIndex
	e.ps.IsPlaying = p.IsPlaying
	if p.CurrentTrack != nil {
		t := *p.CurrentTrack
		e.ps.CurrentTrack = &t
		e.ps.Duration = float64(t.Duration)
	}
	logger.Info("player state restored",
		logger.Int("queue", len(e.queue)),
		logger.Int("index", e.ps.CurrentIndex))
}

// Close flushes the last pending save and stops the background writer.
func (e *Engine) Close() error {
	if e.saver != nil {
		e.saver.close()
	}
	return nil
}

// ========== 队列操作 ==========

// LoadQueue replaces the queue and starts playing tracks[startIndex].
func (e *Engine) LoadQueue(tracks []model.Track, startIndex int) error {
	if len(tracks) == 0 {
		return ErrEmptyQueue
	}
	if startIndex < 0 || startIndex >= len(tracks) {
		return ErrIndexOutOfRange
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = append([]model.Track(nil), tracks...)
	e.playAt(startIndex, e.queue[startIndex])
	return nil
}

// InitializeQueue replaces the queue without starting playback. A current
// track that is still in the new queue stays selected; otherwise track 0 is
// selected paused, publishing Idle if the old track was playing.
func (e *Engine) InitializeQueue(tracks []model.Track) error {
	if len(tracks) == 0 {
		return ErrEmptyQueue
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = append([]model.Track(nil), tracks...)
	wasPlaying := e.ps.IsPlaying

	if cur := e.ps.CurrentTrack; cur != nil {
		if idx := e.indexOf(cur.ID); idx >= 0 {
			e.ps.CurrentIndex = idx
			e.persist()
			return nil
		}
	}

	t := e.queue[0]
	e.ps.CurrentTrack = &t
	e.ps.CurrentIndex = 0
	e.ps.IsPlaying = false
	e.ps.SessionPlayback = model.SessionPlayback{Duration: float64(t.Duration)}
	e.stopped = false
	if wasPlaying {
		// the audible track went away
		e.publishIdle()
	}
	e.persist()
	return nil
}

// Announce republishes Playing for the current track if it is playing.
// Peers only learn about a restored session through it.
func (e *Engine) Announce() {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.ps.IsPlaying && e.ps.CurrentTrack != nil {
		e.publishPlaying(*e.ps.CurrentTrack)
	}
}

// SetTrack plays track. If it is already queued the index moves to it,
// otherwise the queue becomes [track].
func (e *Engine) SetTrack(track *model.Track) error {
	if track == nil {
		return ErrNoTrack
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.indexOf(track.ID)
	if idx < 0 {
		e.queue = []model.Track{*track}
		idx = 0
	}
	e.playAt(idx, *track)
	return nil
}

// TogglePlayback flips IsPlaying on the loaded track.
func (e *Engine) TogglePlayback() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ps.CurrentTrack == nil {
		return ErrNoTrack
	}

	e.ps.IsPlaying = !e.ps.IsPlaying
	if e.ps.IsPlaying {
		e.stopped = false
		e.publishPlaying(*e.ps.CurrentTrack)
	} else {
		// the track stays loaded but nothing is audible
		e.publishIdle()
	}
	e.persist()
	return nil
}

// Advance moves to the neighbouring track under the shuffle and repeat policies.
func (e *Engine) Advance(dir Direction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if dir == Previous {
		return e.previous()
	}
	return e.next()
}

func (e *Engine) next() error {
	n := len(e.queue)
	if n == 0 || e.ps.CurrentTrack == nil {
		return ErrEmptyQueue
	}

	if e.ps.Repeat == model.RepeatOne {
		e.ps.IsPlaying = true
		e.stopped = false
		e.publishPlaying(*e.ps.CurrentTrack)
		e.persist()
		return nil
	}

	if e.ps.Shuffle && n > 1 {
		// uniform over every slot except the current one
		idx := e.rnd.Intn(n - 1)
		if idx >= e.ps.CurrentIndex {
			idx++
		}
		e.playAt(idx, e.queue[idx])
		return nil
	}

	switch {
	case e.ps.CurrentIndex+1 < n:
		e.playAt(e.ps.CurrentIndex+1, e.queue[e.ps.CurrentIndex+1])
	case e.ps.Repeat == model.RepeatAll:
		e.playAt(0, e.queue[0])
	default:
		e.ps.IsPlaying = false
		e.stopped = true
		e.publishIdle()
		e.persist()
	}
	return nil
}

func (e *Engine) previous() error {
	if len(e.queue) == 0 {
		e.ps.IsPlaying = false
		e.publishIdle()
		return nil
	}
	idx := e.ps.CurrentIndex - 1
	if idx < 0 {
		idx = 0
	}
	e.playAt(idx, e.queue[idx])
	return nil
}

// Reset empties the queue. Volume, shuffle and repeat are kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	wasPlaying := e.ps.IsPlaying
	e.queue = nil
	e.ps.CurrentTrack = nil
	e.ps.CurrentIndex = -1
	e.ps.IsPlaying = false
	e.ps.SessionPlayback = model.SessionPlayback{}
	e.stopped = false
	if wasPlaying {
		e.publishIdle()
	}
	e.persist()
}

// ========== 播放参数 ==========

// Seek sets the playback position, clamped to [0, ∞).
func (e *Engine) Seek(seconds float64) {
	e.mu.Lock()
	e.ps.CurrentTime = nonNegative(seconds)
	e.mu.Unlock()
}

// SetDuration records the duration reported by the audio element.
func (e *Engine) SetDuration(seconds float64) {
	e.mu.Lock()
	e.ps.Duration = nonNegative(seconds)
	e.mu.Unlock()
}

// SetVolume clamps v to [0, 1].
func (e *Engine) SetVolume(v float64) {
	if math.IsNaN(v) {
		v = 0
	}
	e.mu.Lock()
	e.ps.Volume = math.Max(0, math.Min(1, v))
	e.mu.Unlock()
}

// ToggleShuffle flips shuffle and returns the new value.
func (e *Engine) ToggleShuffle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ps.Shuffle = !e.ps.Shuffle
	return e.ps.Shuffle
}

// CycleRepeat steps off -> one -> all -> off and returns the new mode.
func (e *Engine) CycleRepeat() model.RepeatMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ps.Repeat = e.ps.Repeat.Next()
	return e.ps.Repeat
}

// SetRepeat sets the repeat mode directly.
func (e *Engine) SetRepeat(mode model.RepeatMode) error {
	if _, err := model.ParseRepeatMode(string(mode)); err != nil {
		return err
	}
	e.mu.Lock()
	e.ps.Repeat = mode
	e.mu.Unlock()
	return nil
}

// ========== 快照 ==========

// Snapshot returns a copy of the playback state.
func (e *Engine) Snapshot() model.PlaybackState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ps.Clone()
}

// Queue returns a copy of the queue.
func (e *Engine) Queue() []model.Track {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]model.Track(nil), e.queue...)
}

// State returns the coarse engine state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return stateOf(e.ps, len(e.queue), e.stopped)
}

// Persistent returns the record that survives a reload.
func (e *Engine) Persistent() model.PersistentPlayback {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.persistentLocked()
}

// ========== 内部方法（需要持有锁） ==========

func (e *Engine) playAt(idx int, t model.Track) {
	e.ps.CurrentIndex = idx
	e.ps.CurrentTrack = &t
	e.ps.IsPlaying = true
	e.ps.SessionPlayback = model.SessionPlayback{Duration: float64(t.Duration)}
	e.stopped = false
	e.publishPlaying(t)
	e.persist()
}

// indexOf prefers the current slot when it already holds id.
func (e *Engine) indexOf(id string) int {
	if i := e.ps.CurrentIndex; i >= 0 && i < len(e.queue) && e.queue[i].ID == id {
		return i
	}
	for i, t := range e.queue {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) publishPlaying(t model.Track) {
	if e.publisher != nil {
		e.publisher.Playing(t)
	}
}

func (e *Engine) publishIdle() {
	if e.publisher != nil {
		e.publisher.Idle()
	}
}

func (e *Engine) persistentLocked() model.PersistentPlayback {
	p := model.PersistentPlayback{
		Queue:        append([]model.Track(nil), e.queue...),
		CurrentIndex: e.ps.CurrentIndex,
		IsPlaying:    e.ps.IsPlaying,
	}
	if e.ps.CurrentTrack != nil {
		t := *e.ps.CurrentTrack
		p.CurrentTrack = &t
	}
	return p
}

func (e *Engine) persist() {
	if e.saver != nil {
		e.saver.offer(e.persistentLocked())
	}
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// ========== 持久化 ==========

// saver writes snapshots in the background. Only the newest unsaved snapshot
// is kept, so a slow store never blocks a transition.
type saver struct {
	store   StateStore
	latest  chan model.PersistentPlayback
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newSaver(store StateStore) *saver {
	s := &saver{
		store:   store,
		latest:  make(chan model.PersistentPlayback, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.run()
	return s
}

// offer is called with the engine lock held, so there is a single producer.
func (s *saver) offer(p model.PersistentPlayback) {
	select {
	case s.latest <- p:
		return
	default:
	}
	select {
	case <-s.latest:
	default:
	}
	select {
	case s.latest <- p:
	default:
	}
}

func (s *saver) run() {
	defer close(s.stopped)
	for {
		select {
		case p := <-s.latest:
			s.save(p)
		case <-s.done:
			select {
			case p := <-s.latest:
				s.save(p)
			default:
			}
			return
		}
	}
}

func (s *saver) save(p model.PersistentPlayback) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Save(ctx, &p); err != nil {
		logger.Warn("save player state", logger.ErrorField(err))
	}
}

func (s *saver) close() {
	s.once.Do(func() { close(s.done) })
	<-s.stopped
}
