package counseling

import (
	"context"
	"errors"

	"github.com/zhouzirui/voicecounsel/internal/api"
	"github.com/zhouzirui/voicecounsel/internal/media"
)

// UserMessage maps any error of the flow to the text shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, media.ErrPermissionDenied):
		return "Microphone access was denied."
	case errors.Is(err, media.ErrNotAcquired):
		return "The microphone is not ready. Please allow microphone access."
	case errors.Is(err, media.ErrNoAudio):
		return "No audio was recorded. Please try again."
	case errors.Is(err, media.ErrPlayback):
		return "The reply could not be played."
	case errors.Is(err, ErrFlowEnded), errors.Is(err, context.Canceled):
		return "The counseling session has ended."
	case errors.Is(err, ErrFallbackUnavailable):
		return "Audio files cannot be sent right now."
	default:
		return api.UserMessage(err)
	}
}
