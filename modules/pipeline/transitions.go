package pipeline

import (
	"strings"
	"time"
)

// NewState returns the initial, empty pipeline
func NewState() State {
	return State{
		Stage:     StageDescribing,
		StageName: StageDescribing.String(),
		Clips:     []Clip{},
		Progress:  []ProgressItem{},
		Videos:    []GeneratedVideo{},
	}
}

// Reset clears everything and returns to stage 1. The generation epoch keeps
// counting so results of an abandoned dispatch are recognized as stale.
func Reset(s State) State {
	out := NewState()
	out.Generation = s.Generation + 1
	return out
}

func withStage(s State, stage Stage) State {
	s.Stage = stage
	s.StageName = stage.String()
	return s
}

// ApplyScript moves 1→2 with freshly parsed clips
func ApplyScript(s State, concept string, clips []Clip) (State, error) {
	if s.Stage != StageDescribing {
		return s, errWrongStage("applying a script", s.Stage, StageDescribing)
	}
	if len(clips) == 0 {
		return s, ErrEmptyScript
	}

	out := s.clone()
	out.Concept = concept
	out.ScriptLoading = false
	out.Clips = make([]Clip, len(clips))
	for i, c := range clips {
		c.Approved = false
		c.Status = StatusPending
		out.Clips[i] = c
	}
	out.Progress = []ProgressItem{}
	out.Videos = []GeneratedVideo{}
	return withStage(out, StageReviewingScript), nil
}

func clipIndex(s State, clipID int) int {
	for i, c := range s.Clips {
		if c.ID == clipID {
			return i
		}
	}
	return -1
}

// EditClip replaces a clip's text; id, duration and approval are kept
func EditClip(s State, clipID int, text string) (State, error) {
	if s.Stage != StageReviewingScript {
		return s, errWrongStage("editing a clip", s.Stage, StageReviewingScript)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return s, ErrEmptyClipText
	}
	idx := clipIndex(s, clipID)
	if idx < 0 {
		return s, ErrClipNotFound
	}

	out := s.clone()
	out.Clips[idx].Text = text
	return out, nil
}

// ToggleClip flips a clip's approval
func ToggleClip(s State, clipID int) (State, error) {
	if s.Stage != StageReviewingScript {
		return s, errWrongStage("approving a clip", s.Stage, StageReviewingScript)
	}
	idx := clipIndex(s, clipID)
	if idx < 0 {
		return s, ErrClipNotFound
	}

	out := s.clone()
	out.Clips[idx].Approved = !out.Clips[idx].Approved
	return out, nil
}

// StartGeneration moves 2→3 and returns the clips to dispatch. It is also
// accepted in stage 3 once every attempt failed, as a manual retry.
func StartGeneration(s State) (State, []Clip, error) {
	retry := s.Stage == StageGeneratingVideos && s.GenerationAllFailed
	if s.Stage != StageReviewingScript && !retry {
		return s, nil, errWrongStage("starting generation", s.Stage, StageReviewingScript)
	}
	approved := s.ApprovedClips()
	if len(approved) == 0 {
		return s, nil, ErrNoApprovedClips
	}

	out := s.clone()
	out.Generation++
	out.GenerationAllFailed = false
	out.Videos = []GeneratedVideo{}
	out.Progress = make([]ProgressItem, len(approved))
	for i, c := range approved {
		out.Progress[i] = ProgressItem{ClipID: c.ID, ClipText: c.Text, Status: StatusPending}
	}
	for i := range out.Clips {
		if out.Clips[i].Approved {
			out.Clips[i].Status = StatusPending
		}
	}
	return withStage(out, StageGeneratingVideos), approved, nil
}

// setClipStatus updates the progress item and its clip. Items that are already
// terminal are left alone.
func setClipStatus(s State, clipID int, status ClipStatus, reason string) (State, bool) {
	pi := -1
	for i, p := range s.Progress {
		if p.ClipID == clipID {
			pi = i
			break
		}
	}
	if pi < 0 || s.Progress[pi].Status.Terminal() {
		return s, false
	}

	out := s.clone()
	out.Progress[pi].Status = status
	out.Progress[pi].Error = reason
	if ci := clipIndex(out, clipID); ci >= 0 {
		out.Clips[ci].Status = status
	}
	return out, true
}

// MarkGenerating moves a dispatched clip pending→generating
func MarkGenerating(s State, clipID int) (State, error) {
	if s.Stage != StageGeneratingVideos {
		return s, errWrongStage("marking a clip as generating", s.Stage, StageGeneratingVideos)
	}
	out, ok := setClipStatus(s, clipID, StatusGenerating, "")
	if !ok {
		return s, ErrClipNotFound
	}
	return out, nil
}

// CompleteClip records a successful generation and appends its video
func CompleteClip(s State, clipID int, videoURL string, at time.Time) (State, error) {
	if s.Stage != StageGeneratingVideos {
		return s, errWrongStage("completing a clip", s.Stage, StageGeneratingVideos)
	}
	if strings.TrimSpace(videoURL) == "" {
		return FailClip(s, clipID, ErrNoVideoURL.Message)
	}
	out, ok := setClipStatus(s, clipID, StatusCompleted, "")
	if !ok {
		return s, ErrClipNotFound
	}

	text := ""
	for _, p := range out.Progress {
		if p.ClipID == clipID {
			text = p.ClipText
		}
	}
	out.Videos = append(out.Videos, GeneratedVideo{
		ID:       NewVideoID(clipID, at),
		ClipID:   clipID,
		ClipText: text,
		VideoURL: videoURL,
		Status:   VideoReviewing,
	})
	return out, nil
}

// FailClip marks a clip as errored; no video is created
func FailClip(s State, clipID int, reason string) (State, error) {
	if s.Stage != StageGeneratingVideos {
		return s, errWrongStage("failing a clip", s.Stage, StageGeneratingVideos)
	}
	out, ok := setClipStatus(s, clipID, StatusError, reason)
	if !ok {
		return s, ErrClipNotFound
	}
	return out, nil
}

// AdvanceToReview moves 3→4 once every item is terminal and one completed
func AdvanceToReview(s State) (State, error) {
	if s.Stage != StageGeneratingVideos {
		return s, errWrongStage("reviewing videos", s.Stage, StageGeneratingVideos)
	}
	if !s.Settled() {
		return s, ErrNotSettled
	}
	if completed, _, _ := s.Tally(); completed == 0 {
		return s, ErrNothingCompleted
	}

	out := s.clone()
	out.GenerationAllFailed = false
	return withStage(out, StageReviewingVideos), nil
}

// MarkAllFailed enters the GenerationAllFailed sub-state of stage 3. Only a
// reset or a new StartGeneration leaves it.
func MarkAllFailed(s State) (State, error) {
	if s.Stage != StageGeneratingVideos {
		return s, errWrongStage("flagging failed generation", s.Stage, StageGeneratingVideos)
	}
	if !s.Settled() {
		return s, ErrNotSettled
	}
	if completed, _, _ := s.Tally(); completed > 0 {
		return s, errWrongStage("flagging failed generation with completed videos", s.Stage)
	}
	out := s.clone()
	out.GenerationAllFailed = true
	return out, nil
}

// ReviewVideo sets a video's approval and the matching status
func ReviewVideo(s State, videoID string, approved bool) (State, error) {
	if s.Stage != StageReviewingVideos {
		return s, errWrongStage("reviewing a video", s.Stage, StageReviewingVideos)
	}
	for i, v := range s.Videos {
		if v.ID != videoID {
			continue
		}
		out := s.clone()
		a := approved
		out.Videos[i].Approved = &a
		if approved {
			out.Videos[i].Status = VideoApproved
		} else {
			out.Videos[i].Status = VideoRejected
		}
		return out, nil
	}
	return s, ErrVideoNotFound
}

// Regenerate is a recognized action with no behavior yet
func Regenerate(s State, videoID string) (State, error) {
	if s.Stage != StageReviewingVideos {
		return s, errWrongStage("regenerating a video", s.Stage, StageReviewingVideos)
	}
	for _, v := range s.Videos {
		if v.ID == videoID {
			return s, ErrRegenerateUnsupported
		}
	}
	return s, ErrVideoNotFound
}

// Assemble moves 4→5 and returns exactly the approved videos
func Assemble(s State) (State, []GeneratedVideo, error) {
	if s.Stage != StageReviewingVideos {
		return s, nil, errWrongStage("assembling", s.Stage, StageReviewingVideos)
	}
	approved := s.ApprovedVideos()
	if len(approved) == 0 {
		return s, nil, ErrNoApprovedVideos
	}
	out := s.clone()
	return withStage(out, StageAssembling), approved, nil
}

// Recover prepares a snapshot restored from storage. Requests that were in
// flight when the snapshot was taken are gone, so their items become errors.
func Recover(s State, reason string) State {
	out := s.clone()
	out.ScriptLoading = false
	if out.Stage != StageGeneratingVideos {
		return out
	}
	for i, p := range out.Progress {
		if p.Status.Terminal() {
			continue
		}
		out.Progress[i].Status = StatusError
		out.Progress[i].Error = reason
		if ci := clipIndex(out, p.ClipID); ci >= 0 {
			out.Clips[ci].Status = StatusError
		}
	}
	return out
}
