package pipeline

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"clip-wizard-server/modules/common/apperr"
)

// ScriptRequester turns a concept into script clips
type ScriptRequester interface {
	RequestScript(ctx context.Context, concept string) ([]Clip, error)
}

// VideoGenerator turns one clip prompt into a video URL
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, prompt string) (string, error)
}

// Options - optional session behavior
type Options struct {
	// SettleDelay is how long the session waits after the last clip settles
	// before moving to video review.
	SettleDelay time.Duration
	// OnChange receives every committed snapshot, under the session lock.
	OnChange func(id string, s State)
	// Now overrides the clock used for video ids and activity tracking.
	Now func() time.Time
}

const subscriberBuffer = 16

// Session owns one pipeline and is its only writer
type Session struct {
	id      string
	scripts ScriptRequester
	videos  VideoGenerator
	opts    Options

	mu           sync.Mutex
	state        State
	dispatched   int
	settled      int
	settleTimer  *time.Timer
	lastActivity time.Time
	subs         map[int]chan State
	nextSub      int
	closed       bool

	inflight sync.WaitGroup
}

// NewSession creates a session in stage 1
func NewSession(id string, scripts ScriptRequester, videos VideoGenerator, opts Options) *Session {
	return newSession(id, NewState(), scripts, videos, opts)
}

// RestoreSession rebuilds a session from a stored snapshot. A snapshot taken
// mid-generation settles at once, since its requests cannot be resumed.
func RestoreSession(id string, snapshot State, scripts ScriptRequester, videos VideoGenerator, opts Options) *Session {
	s := newSession(id, Recover(snapshot, "generation interrupted by a server restart"), scripts, videos, opts)
	if s.state.Stage == StageGeneratingVideos && s.state.Settled() && !s.state.GenerationAllFailed {
		s.mu.Lock()
		s.settleNowLocked()
		s.mu.Unlock()
	}
	return s
}

func newSession(id string, st State, scripts ScriptRequester, videos VideoGenerator, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		id:           id,
		scripts:      scripts,
		videos:       videos,
		opts:         opts,
		state:        st,
		lastActivity: opts.Now(),
		subs:         make(map[int]chan State),
	}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns a copy of the current state
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// LastActivity - time of the last committed change
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// commitLocked installs next as the current state and fans it out. A closed
// session still tracks its state but notifies nobody.
func (s *Session) commitLocked(next State) State {
	s.state = next
	s.lastActivity = s.opts.Now()
	snap := next.Clone()
	if s.closed {
		return snap
	}

	for _, ch := range s.subs {
		deliverLatest(ch, snap.Clone())
	}
	if s.opts.OnChange != nil {
		s.opts.OnChange(s.id, snap.Clone())
	}
	return snap
}

// deliverLatest never blocks; when the buffer is full the oldest snapshot is dropped
func deliverLatest(ch chan State, snap State) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// apply runs a pure transition under the lock
func (s *Session) apply(fn func(State) (State, error)) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.state)
	if err != nil {
		return s.state.Clone(), err
	}
	return s.commitLocked(next), nil
}

// RequestScript asks the script service for clips and moves 1→2.
// The lock is not held during the network call.
func (s *Session) RequestScript(ctx context.Context, concept string) (State, error) {
	concept = strings.TrimSpace(concept)
	if concept == "" {
		return s.Snapshot(), apperr.New(apperr.CodeBadRequest, "describe the video before generating a script")
	}

	s.mu.Lock()
	if s.state.Stage != StageDescribing {
		defer s.mu.Unlock()
		return s.state.Clone(), errWrongStage("requesting a script", s.state.Stage, StageDescribing)
	}
	if s.state.ScriptLoading {
		defer s.mu.Unlock()
		return s.state.Clone(), apperr.New(apperr.CodeWrongStage, "a script is already being generated")
	}
	loading := s.state.Clone()
	loading.ScriptLoading = true
	loading.Concept = concept
	epoch := loading.Generation
	s.commitLocked(loading)
	s.mu.Unlock()

	clips, err := s.scripts.RequestScript(ctx, concept)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Generation != epoch || s.state.Stage != StageDescribing {
		log.Printf("⚠️ [Pipeline] Session %s: dropping stale script result", s.id)
		return s.state.Clone(), apperr.New(apperr.CodeWrongStage, "session was reset while the script was generated")
	}
	if err != nil {
		log.Printf("❌ [Pipeline] Session %s: script generation failed: %v", s.id, err)
		idle := s.state.Clone()
		idle.ScriptLoading = false
		return s.commitLocked(idle), err
	}

	next, err := ApplyScript(s.state, concept, clips)
	if err != nil {
		idle := s.state.Clone()
		idle.ScriptLoading = false
		return s.commitLocked(idle), err
	}
	log.Printf("✅ [Pipeline] Session %s: script ready with %d clips", s.id, len(next.Clips))
	return s.commitLocked(next), nil
}

// EditClip - stage 2 text edit
func (s *Session) EditClip(clipID int, text string) (State, error) {
	return s.apply(func(st State) (State, error) { return EditClip(st, clipID, text) })
}

// ToggleClip - stage 2 approval toggle
func (s *Session) ToggleClip(clipID int) (State, error) {
	return s.apply(func(st State) (State, error) { return ToggleClip(st, clipID) })
}

// StartGeneration moves 2→3 and dispatches one request per approved clip.
// The requests run on a context detached from any caller and are not cancelled.
func (s *Session) StartGeneration() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, clips, err := StartGeneration(s.state)
	if err != nil {
		return s.state.Clone(), err
	}

	s.stopSettleTimerLocked()
	s.dispatched = len(clips)
	s.settled = 0
	epoch := next.Generation
	snap := s.commitLocked(next)

	log.Printf("🚀 [Pipeline] Session %s: dispatching %d clip(s) (generation %d)", s.id, len(clips), epoch)
	for _, clip := range clips {
		s.inflight.Add(1)
		go s.generate(epoch, clip)
	}
	return snap, nil
}

// generate runs one clip through pending→generating→{completed|error}
func (s *Session) generate(epoch int, clip Clip) {
	defer s.inflight.Done()

	s.mu.Lock()
	if s.state.Generation != epoch {
		s.mu.Unlock()
		return
	}
	if next, err := MarkGenerating(s.state, clip.ID); err == nil {
		s.commitLocked(next)
	}
	s.mu.Unlock()

	videoURL, genErr := s.videos.GenerateVideo(context.Background(), clip.Text)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Generation != epoch {
		log.Printf("⚠️ [Pipeline] Session %s: dropping stale result for clip %d (generation %d)", s.id, clip.ID, epoch)
		return
	}

	var next State
	var err error
	if genErr != nil {
		log.Printf("❌ [Pipeline] Session %s: clip %d failed: %v", s.id, clip.ID, genErr)
		next, err = FailClip(s.state, clip.ID, failureReason(genErr))
	} else {
		next, err = CompleteClip(s.state, clip.ID, videoURL, s.opts.Now())
	}
	if err != nil {
		log.Printf("⚠️ [Pipeline] Session %s: clip %d result not applied: %v", s.id, clip.ID, err)
	} else {
		s.commitLocked(next)
	}

	s.settled++
	if s.settled == s.dispatched && s.state.Settled() {
		s.onAllSettledLocked(epoch)
	}
}

// onAllSettledLocked fires once per dispatch, when the last clip settles
func (s *Session) onAllSettledLocked(epoch int) {
	completed, failed, _ := s.state.Tally()
	if completed == 0 {
		next, err := MarkAllFailed(s.state)
		if err == nil {
			log.Printf("❌ [Pipeline] Session %s: all %d clip(s) failed", s.id, failed)
			s.commitLocked(next)
		}
		return
	}

	log.Printf("📊 [Pipeline] Session %s: %d completed, %d failed; moving to review", s.id, completed, failed)
	if s.opts.SettleDelay <= 0 {
		s.settleNowLocked()
		return
	}
	s.settleTimer = time.AfterFunc(s.opts.SettleDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state.Generation != epoch {
			return
		}
		s.settleNowLocked()
	})
}

// settleNowLocked applies 3→4, or the all-failed sub-state
func (s *Session) settleNowLocked() {
	if next, err := AdvanceToReview(s.state); err == nil {
		s.commitLocked(next)
		return
	} else if !errors.Is(err, ErrNothingCompleted) {
		return
	}
	if next, err := MarkAllFailed(s.state); err == nil {
		s.commitLocked(next)
	}
}

func (s *Session) stopSettleTimerLocked() {
	if s.settleTimer != nil {
		s.settleTimer.Stop()
		s.settleTimer = nil
	}
}

func failureReason(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// ReviewVideo - stage 4 approve/reject
func (s *Session) ReviewVideo(videoID string, approved bool) (State, error) {
	return s.apply(func(st State) (State, error) { return ReviewVideo(st, videoID, approved) })
}

// Regenerate - stage 4 stub
func (s *Session) Regenerate(videoID string) (State, error) {
	return s.apply(func(st State) (State, error) { return Regenerate(st, videoID) })
}

// Assemble moves 4→5 and returns the approved videos
func (s *Session) Assemble() (State, []GeneratedVideo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, approved, err := Assemble(s.state)
	if err != nil {
		return s.state.Clone(), nil, err
	}
	return s.commitLocked(next), approved, nil
}

// Reset returns to stage 1 from any stage. In-flight requests finish in the
// background and their results are dropped.
func (s *Session) Reset() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopSettleTimerLocked()
	s.dispatched = 0
	s.settled = 0
	log.Printf("🔄 [Pipeline] Session %s: reset", s.id)
	return s.commitLocked(Reset(s.state))
}

// Subscribe streams every committed snapshot, starting with the current one
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.state.Clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Subscribers - number of live subscriptions
func (s *Session) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close stops timers, ends all subscriptions and detaches OnChange
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopSettleTimerLocked()
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// Wait blocks until every dispatched request has returned
func (s *Session) Wait() {
	s.inflight.Wait()
}
