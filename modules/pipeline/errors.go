package pipeline

import (
	"fmt"

	"clip-wizard-server/modules/common/apperr"
)

var (
	ErrNoApprovedClips       = apperr.New(apperr.CodePreconditionFailed, "approve at least one clip before generating videos")
	ErrNoApprovedVideos      = apperr.New(apperr.CodePreconditionFailed, "approve at least one video before assembling")
	ErrNotSettled            = apperr.New(apperr.CodePreconditionFailed, "video generation is still running")
	ErrNothingCompleted      = apperr.New(apperr.CodePreconditionFailed, "no video was generated successfully")
	ErrEmptyScript           = apperr.New(apperr.CodeScriptDecodeFailed, "script contains no clips")
	ErrClipNotFound          = apperr.New(apperr.CodeNotFound, "clip not found")
	ErrVideoNotFound         = apperr.New(apperr.CodeNotFound, "video not found")
	ErrEmptyClipText         = apperr.New(apperr.CodeBadRequest, "clip text must not be empty")
	ErrNoVideoURL            = apperr.New(apperr.CodeGenerationFailed, "video service response contains no video url")
	ErrRegenerateUnsupported = apperr.New(apperr.CodeNotImplemented, "regenerating a video is not available yet")
)

// errWrongStage reports an action attempted outside the stage that allows it
func errWrongStage(action string, current Stage, allowed ...Stage) error {
	return &apperr.Error{
		Code:    apperr.CodeWrongStage,
		Message: fmt.Sprintf("%s is not allowed while %s (allowed: %v)", action, current, allowed),
	}
}
