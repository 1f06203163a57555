package pipeline

import (
	"errors"
	"testing"
	"time"

	"clip-wizard-server/modules/common/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func dogScript() []Clip {
	return []Clip{
		{ID: 1, Text: "A golden retriever runs onto the sand", Duration: 8},
		{ID: 2, Text: "The dog chases a wave back into the sea", Duration: 8},
		{ID: 3, Text: "The dog shakes off water at sunset", Duration: 8},
	}
}

func scriptedState(t *testing.T) State {
	t.Helper()
	s, err := ApplyScript(NewState(), "a dog on a beach", dogScript())
	require.NoError(t, err)
	return s
}

func generatingState(t *testing.T, approve ...int) State {
	t.Helper()
	s := scriptedState(t)
	var err error
	for _, id := range approve {
		s, err = ToggleClip(s, id)
		require.NoError(t, err)
	}
	s, _, err = StartGeneration(s)
	require.NoError(t, err)
	return s
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperr.CodeOf(err))
}

func TestNewState(t *testing.T) {
	s := NewState()

	assert.Equal(t, StageDescribing, s.Stage)
	assert.Equal(t, "describing", s.StageName)
	assert.Empty(t, s.Clips)
	assert.Empty(t, s.Progress)
	assert.Empty(t, s.Videos)
	assert.False(t, s.ScriptLoading)
}

func TestApplyScript(t *testing.T) {
	in := dogScript()
	in[0].Approved = true
	in[0].Status = StatusCompleted

	s, err := ApplyScript(NewState(), "a dog on a beach", in)
	require.NoError(t, err)

	assert.Equal(t, StageReviewingScript, s.Stage)
	assert.Equal(t, "a dog on a beach", s.Concept)
	require.Len(t, s.Clips, 3)
	for _, c := range s.Clips {
		assert.False(t, c.Approved)
		assert.Equal(t, StatusPending, c.Status)
		assert.Equal(t, ClipDurationSeconds, c.Duration)
	}
	assert.True(t, in[0].Approved, "input slice must not be modified")
}

func TestApplyScriptRejected(t *testing.T) {
	_, err := ApplyScript(NewState(), "x", nil)
	assert.ErrorIs(t, err, ErrEmptyScript)

	s := scriptedState(t)
	_, err = ApplyScript(s, "again", dogScript())
	assertCode(t, err, apperr.CodeWrongStage)
}

func TestToggleClipTwiceRestores(t *testing.T) {
	s := scriptedState(t)

	once, err := ToggleClip(s, 2)
	require.NoError(t, err)
	assert.True(t, once.Clips[1].Approved)
	assert.False(t, s.Clips[1].Approved, "original state must not change")

	twice, err := ToggleClip(once, 2)
	require.NoError(t, err)
	assert.Equal(t, s.Clips, twice.Clips)
}

func TestToggleClipUnknown(t *testing.T) {
	_, err := ToggleClip(scriptedState(t), 42)
	assert.ErrorIs(t, err, ErrClipNotFound)
}

func TestEditClip(t *testing.T) {
	s := scriptedState(t)
	s, _ = ToggleClip(s, 1)

	edited, err := EditClip(s, 1, "  A puppy digs a hole  ")
	require.NoError(t, err)
	assert.Equal(t, "A puppy digs a hole", edited.Clips[0].Text)
	assert.Equal(t, 1, edited.Clips[0].ID)
	assert.Equal(t, ClipDurationSeconds, edited.Clips[0].Duration)
	assert.True(t, edited.Clips[0].Approved)

	_, err = EditClip(s, 1, "   ")
	assert.ErrorIs(t, err, ErrEmptyClipText)

	_, err = EditClip(s, 9, "text")
	assert.ErrorIs(t, err, ErrClipNotFound)

	_, err = EditClip(NewState(), 1, "text")
	assertCode(t, err, apperr.CodeWrongStage)
}

func TestStartGenerationNeedsApproval(t *testing.T) {
	s := scriptedState(t)

	out, clips, err := StartGeneration(s)
	assert.ErrorIs(t, err, ErrNoApprovedClips)
	assert.Nil(t, clips)
	assert.Equal(t, StageReviewingScript, out.Stage)
}

func TestStartGenerationOnlyApproved(t *testing.T) {
	s := scriptedState(t)
	s, _ = ToggleClip(s, 1)
	s, _ = ToggleClip(s, 3)

	out, clips, err := StartGeneration(s)
	require.NoError(t, err)

	assert.Equal(t, StageGeneratingVideos, out.Stage)
	assert.Equal(t, s.Generation+1, out.Generation)
	require.Len(t, clips, 2)
	assert.Equal(t, 1, clips[0].ID)
	assert.Equal(t, 3, clips[1].ID)

	require.Len(t, out.Progress, 2)
	for i, p := range out.Progress {
		assert.Equal(t, clips[i].ID, p.ClipID)
		assert.Equal(t, clips[i].Text, p.ClipText)
		assert.Equal(t, StatusPending, p.Status)
	}
	assert.Empty(t, out.Videos)
}

func TestStartGenerationWrongStage(t *testing.T) {
	_, _, err := StartGeneration(NewState())
	assertCode(t, err, apperr.CodeWrongStage)

	s := generatingState(t, 1)
	_, _, err = StartGeneration(s)
	assertCode(t, err, apperr.CodeWrongStage)
}

func TestClipLifecycle(t *testing.T) {
	s := generatingState(t, 1, 2)

	s, err := MarkGenerating(s, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusGenerating, s.Progress[0].Status)
	assert.Equal(t, StatusGenerating, s.Clips[0].Status)

	s, err = CompleteClip(s, 1, "https://cdn.example.com/1.mp4", testTime)
	require.NoError(t, err)
	s, err = FailClip(s, 2, "quota exceeded")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, s.Progress[0].Status)
	assert.Equal(t, StatusError, s.Progress[1].Status)
	assert.Equal(t, "quota exceeded", s.Progress[1].Error)
	assert.Equal(t, StatusError, s.Clips[1].Status)

	require.Len(t, s.Videos, 1, "a video exists only for the completed clip")
	v := s.Videos[0]
	assert.Equal(t, 1, v.ClipID)
	assert.Equal(t, NewVideoID(1, testTime), v.ID)
	assert.Equal(t, "https://cdn.example.com/1.mp4", v.VideoURL)
	assert.Equal(t, s.Progress[0].ClipText, v.ClipText)
	assert.Nil(t, v.Approved)
	assert.Equal(t, VideoReviewing, v.Status)
	assert.True(t, s.Settled())
}

func TestTerminalStatusIsFinal(t *testing.T) {
	s := generatingState(t, 1)
	s, err := FailClip(s, 1, "boom")
	require.NoError(t, err)

	_, err = CompleteClip(s, 1, "https://cdn.example.com/late.mp4", testTime)
	assert.ErrorIs(t, err, ErrClipNotFound)
	_, err = MarkGenerating(s, 1)
	assert.ErrorIs(t, err, ErrClipNotFound)
}

func TestCompleteClipWithoutURLFails(t *testing.T) {
	s := generatingState(t, 1)

	s, err := CompleteClip(s, 1, "  ", testTime)
	require.NoError(t, err)
	assert.Equal(t, StatusError, s.Progress[0].Status)
	assert.Equal(t, ErrNoVideoURL.Message, s.Progress[0].Error)
	assert.Empty(t, s.Videos)
}

func TestAdvanceToReview(t *testing.T) {
	s := generatingState(t, 1, 2)

	_, err := AdvanceToReview(s)
	assert.ErrorIs(t, err, ErrNotSettled)

	s, _ = CompleteClip(s, 1, "https://cdn.example.com/1.mp4", testTime)
	s, _ = FailClip(s, 2, "boom")

	out, err := AdvanceToReview(s)
	require.NoError(t, err)
	assert.Equal(t, StageReviewingVideos, out.Stage)
	assert.Len(t, out.Videos, 1)
}

func TestAllFailed(t *testing.T) {
	s := generatingState(t, 1, 2)
	s, _ = FailClip(s, 1, "boom")
	s, _ = FailClip(s, 2, "boom")

	out, err := AdvanceToReview(s)
	assert.ErrorIs(t, err, ErrNothingCompleted)
	assert.Equal(t, StageGeneratingVideos, out.Stage)

	out, err = MarkAllFailed(s)
	require.NoError(t, err)
	assert.True(t, out.GenerationAllFailed)
	assert.Equal(t, StageGeneratingVideos, out.Stage)

	retry, clips, err := StartGeneration(out)
	require.NoError(t, err)
	assert.Len(t, clips, 2)
	assert.False(t, retry.GenerationAllFailed)
	assert.Equal(t, out.Generation+1, retry.Generation)
	for _, p := range retry.Progress {
		assert.Equal(t, StatusPending, p.Status)
	}
}

func TestMarkAllFailedWithCompletedVideo(t *testing.T) {
	s := generatingState(t, 1)
	s, _ = CompleteClip(s, 1, "https://cdn.example.com/1.mp4", testTime)

	_, err := MarkAllFailed(s)
	assertCode(t, err, apperr.CodeWrongStage)
}

func reviewingState(t *testing.T) State {
	t.Helper()
	s := generatingState(t, 1, 2, 3)
	s, _ = CompleteClip(s, 1, "https://cdn.example.com/1.mp4", testTime)
	s, _ = CompleteClip(s, 2, "https://cdn.example.com/2.mp4", testTime.Add(time.Millisecond))
	s, _ = CompleteClip(s, 3, "https://cdn.example.com/3.mp4", testTime.Add(2*time.Millisecond))
	s, err := AdvanceToReview(s)
	require.NoError(t, err)
	return s
}

func TestReviewVideo(t *testing.T) {
	s := reviewingState(t)
	id := s.Videos[0].ID

	s, err := ReviewVideo(s, id, true)
	require.NoError(t, err)
	require.NotNil(t, s.Videos[0].Approved)
	assert.True(t, *s.Videos[0].Approved)
	assert.Equal(t, VideoApproved, s.Videos[0].Status)

	s, err = ReviewVideo(s, id, false)
	require.NoError(t, err)
	assert.False(t, *s.Videos[0].Approved)
	assert.Equal(t, VideoRejected, s.Videos[0].Status)

	_, err = ReviewVideo(s, "vid-missing", true)
	assert.ErrorIs(t, err, ErrVideoNotFound)
}

func TestRegenerate(t *testing.T) {
	s := reviewingState(t)

	out, err := Regenerate(s, s.Videos[0].ID)
	assert.ErrorIs(t, err, ErrRegenerateUnsupported)
	assert.Equal(t, s, out)

	_, err = Regenerate(s, "vid-missing")
	assert.ErrorIs(t, err, ErrVideoNotFound)
}

func TestAssemble(t *testing.T) {
	s := reviewingState(t)

	_, _, err := Assemble(s)
	assert.ErrorIs(t, err, ErrNoApprovedVideos)

	s, _ = ReviewVideo(s, s.Videos[0].ID, true)
	s, _ = ReviewVideo(s, s.Videos[1].ID, false)
	s, _ = ReviewVideo(s, s.Videos[2].ID, true)

	out, approved, err := Assemble(s)
	require.NoError(t, err)
	assert.Equal(t, StageAssembling, out.Stage)
	require.Len(t, approved, 2)
	assert.Equal(t, s.Videos[0].ID, approved[0].ID)
	assert.Equal(t, s.Videos[2].ID, approved[1].ID)
}

func TestResetFromAnyStage(t *testing.T) {
	states := map[string]State{
		"describing":        NewState(),
		"reviewing_script":  scriptedState(t),
		"generating_videos": generatingState(t, 1),
		"reviewing_videos":  reviewingState(t),
	}
	for name, s := range states {
		t.Run(name, func(t *testing.T) {
			out := Reset(s)
			assert.Equal(t, StageDescribing, out.Stage)
			assert.Empty(t, out.Concept)
			assert.Empty(t, out.Clips)
			assert.Empty(t, out.Progress)
			assert.Empty(t, out.Videos)
			assert.Greater(t, out.Generation, s.Generation)
		})
	}
}

func TestRecover(t *testing.T) {
	s := generatingState(t, 1, 2)
	s, _ = CompleteClip(s, 1, "https://cdn.example.com/1.mp4", testTime)
	s, _ = MarkGenerating(s, 2)
	s.ScriptLoading = true

	out := Recover(s, "interrupted")
	assert.False(t, out.ScriptLoading)
	assert.Equal(t, StatusCompleted, out.Progress[0].Status)
	assert.Equal(t, StatusError, out.Progress[1].Status)
	assert.Equal(t, "interrupted", out.Progress[1].Error)
	assert.Equal(t, StatusError, out.Clips[1].Status)
	assert.True(t, out.Settled())
}

func TestDogOnABeachWalkthrough(t *testing.T) {
	s := NewState()
	s, err := ApplyScript(s, "a dog on a beach", dogScript())
	require.NoError(t, err)

	s, _ = ToggleClip(s, 1)
	s, _ = ToggleClip(s, 2)

	s, clips, err := StartGeneration(s)
	require.NoError(t, err)
	require.Len(t, clips, 2)

	s, _ = CompleteClip(s, 1, "https://cdn.example.com/dog-1.mp4", testTime)
	s, _ = CompleteClip(s, 2, "https://cdn.example.com/dog-2.mp4", testTime.Add(time.Second))
	s, err = AdvanceToReview(s)
	require.NoError(t, err)
	require.Len(t, s.Videos, 2)

	s, _ = ReviewVideo(s, s.Videos[0].ID, true)
	s, _ = ReviewVideo(s, s.Videos[1].ID, false)

	s, approved, err := Assemble(s)
	require.NoError(t, err)
	assert.Equal(t, StageAssembling, s.Stage)
	require.Len(t, approved, 1)
	assert.Equal(t, "https://cdn.example.com/dog-1.mp4", approved[0].VideoURL)
}

func TestWrongStageError(t *testing.T) {
	err := errWrongStage("assembling", StageDescribing, StageReviewingVideos)

	var e *apperr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, apperr.CodeWrongStage, e.Code)
	assert.Contains(t, e.Message, "describing")
}
