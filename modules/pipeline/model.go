package pipeline

import (
	"fmt"
	"time"
)

// Stage - one of the five wizard steps
type Stage int

const (
	StageDescribing       Stage = 1
	StageReviewingScript  Stage = 2
	StageGeneratingVideos Stage = 3
	StageReviewingVideos  Stage = 4
	StageAssembling       Stage = 5
)

func (s Stage) String() string {
	switch s {
	case StageDescribing:
		return "describing"
	case StageReviewingScript:
		return "reviewing_script"
	case StageGeneratingVideos:
		return "generating_videos"
	case StageReviewingVideos:
		return "reviewing_videos"
	case StageAssembling:
		return "assembling"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ClipStatus - generation status of a clip / progress item
type ClipStatus string

const (
	StatusPending    ClipStatus = "pending"
	StatusGenerating ClipStatus = "generating"
	StatusCompleted  ClipStatus = "completed"
	StatusError      ClipStatus = "error"
)

// Terminal reports whether no further transition is expected
func (s ClipStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// VideoStatus - review status of a generated video
type VideoStatus string

const (
	VideoReviewing VideoStatus = "reviewing"
	VideoApproved  VideoStatus = "approved"
	VideoRejected  VideoStatus = "rejected"
)

const (
	// ClipCount - clips per script
	ClipCount = 3
	// ClipDurationSeconds - fixed length of every clip
	ClipDurationSeconds = 8
)

// Clip - one script segment
type Clip struct {
	ID       int        `json:"id"`
	Text     string     `json:"text"`
	Duration int        `json:"duration"`
	Approved bool       `json:"approved"`
	Status   ClipStatus `json:"status"`
}

// ProgressItem - per-clip tracking record while videos are generated
type ProgressItem struct {
	ClipID   int        `json:"clipId"`
	ClipText string     `json:"clipText"`
	Status   ClipStatus `json:"status"`
	Error    string     `json:"error,omitempty"`
}

// GeneratedVideo - a successful generation awaiting review.
// Approved is nil until the user reviews it.
type GeneratedVideo struct {
	ID       string      `json:"id"`
	ClipID   int         `json:"clipId"`
	ClipText string      `json:"clipText"`
	VideoURL string      `json:"videoUrl"`
	Approved *bool       `json:"approved"`
	Status   VideoStatus `json:"status"`
}

// State - whole pipeline value. Transitions return a new State and never
// mutate the slices of the one they were given.
type State struct {
	Stage               Stage            `json:"stage"`
	StageName           string           `json:"stageName"`
	Concept             string           `json:"concept"`
	Clips               []Clip           `json:"clips"`
	Progress            []ProgressItem   `json:"progress"`
	Videos              []GeneratedVideo `json:"videos"`
	ScriptLoading       bool             `json:"scriptLoading"`
	GenerationAllFailed bool             `json:"generationAllFailed"`
	Generation          int              `json:"generation"`
}

// NewVideoID derives a video id from the clip and the creation time
func NewVideoID(clipID int, at time.Time) string {
	return fmt.Sprintf("vid-%d-%d", at.UnixMilli(), clipID)
}

// ApprovedClips returns the clips the user approved, in script order
func (s State) ApprovedClips() []Clip {
	out := make([]Clip, 0, len(s.Clips))
	for _, c := range s.Clips {
		if c.Approved {
			out = append(out, c)
		}
	}
	return out
}

// ApprovedVideos returns the videos with approved === true
func (s State) ApprovedVideos() []GeneratedVideo {
	out := make([]GeneratedVideo, 0, len(s.Videos))
	for _, v := range s.Videos {
		if v.Approved != nil && *v.Approved {
			out = append(out, v)
		}
	}
	return out
}

// Tally counts progress items by outcome
func (s State) Tally() (completed, failed, pending int) {
	for _, p := range s.Progress {
		switch p.Status {
		case StatusCompleted:
			completed++
		case StatusError:
			failed++
		default:
			pending++
		}
	}
	return completed, failed, pending
}

// Settled - every progress item reached a terminal status
func (s State) Settled() bool {
	if len(s.Progress) == 0 {
		return false
	}
	_, _, pending := s.Tally()
	return pending == 0
}

// clone deep-copies the slices so a transition can edit freely
func (s State) clone() State {
	out := s
	out.Clips = append([]Clip(nil), s.Clips...)
	out.Progress = append([]ProgressItem(nil), s.Progress...)
	out.Videos = make([]GeneratedVideo, len(s.Videos))
	for i, v := range s.Videos {
		if v.Approved != nil {
			approved := *v.Approved
			v.Approved = &approved
		}
		out.Videos[i] = v
	}
	return out
}

// Clone returns a deep copy, safe to hand to other goroutines
func (s State) Clone() State {
	return s.clone()
}
