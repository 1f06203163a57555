package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSentinel = New(CodePreconditionFailed, "approve at least one clip")

func TestIs_MatchesByCodeAndMessage(t *testing.T) {
	wrapped := fmt.Errorf("start generation: %w", errSentinel)

	assert.True(t, errors.Is(wrapped, errSentinel))
	assert.True(t, errors.Is(wrapped, &Error{Code: CodePreconditionFailed}))
	assert.False(t, errors.Is(wrapped, New(CodePreconditionFailed, "other")))
	assert.False(t, errors.Is(wrapped, New(CodeNotFound, "")))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"default for code", New(CodeWrongStage, "x"), http.StatusConflict},
		{"explicit status", Upstream(http.StatusTooManyRequests, "busy", nil), http.StatusTooManyRequests},
		{"wrapped", fmt.Errorf("ctx: %w", New(CodeNotFound, "x")), http.StatusNotFound},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestWrap_Unwraps(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(CodeScriptGenerationFailed, "script service unreachable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "dial tcp")
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, Upstream(http.StatusBadRequest, "video service returned an error", json.RawMessage(`{"code":1201}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, CodeUpstreamError, resp.Code)
	assert.Equal(t, "video service returned an error", resp.Error)
	assert.JSONEq(t, `{"code":1201}`, string(resp.Details))
}
