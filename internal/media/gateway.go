// Package media abstracts microphone, speaker and camera access for the counseling
// and photo flows. Every operation ends in exactly one result: success or an error.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/voicecounsel/internal/model/counseling"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrCameraDenied      = errors.New("camera permission denied")
	ErrNotAcquired       = errors.New("media device not acquired")
	ErrNotRecording      = errors.New("not recording")
	ErrAlreadyRecording  = errors.New("already recording")
	ErrNoAudio           = errors.New("no audio recorded")
	ErrMalformedAudio    = errors.New("malformed audio payload")
	ErrUnsupportedAudio  = errors.New("unsupported audio format")
	ErrPlayback          = errors.New("audio playback failed")
	ErrLiveAudioDisabled = errors.New("live audio support not compiled in (build with -tags portaudio)")
)

// Gateway is the microphone and speaker side of a counseling session.
type Gateway interface {
	// AcquireMicrophone asks for microphone access. Denial is reported as ErrPermissionDenied
	// and is never retried.
	AcquireMicrophone(ctx context.Context) error
	// StartRecording begins capturing. The microphone must have been acquired.
	StartRecording(ctx context.Context) error
	// StopRecording finalizes the capture. ErrNotRecording when nothing is being recorded.
	StopRecording(ctx context.Context) (counseling.Recording, error)
	// Play decodes a base64 payload and blocks until playback finished or failed.
	Play(ctx context.Context, payload string) error
	// Release stops every acquired track. It is safe to call more than once.
	Release() error
}

// NewRecording stamps encoded audio with an id and a MIME type, sniffing the type when empty.
func NewRecording(data []byte, mime string) counseling.Recording {
	if mime == "" {
		mime = SniffMIME(data)
	}
	return counseling.Recording{
		ID:        uuid.NewString(),
		Data:      data,
		MIMEType:  mime,
		CreatedAt: time.Now().UTC(),
	}
}

// LoadRecordingFile reads an already encoded audio file, the fallback input when
// no microphone is available.
func LoadRecordingFile(path string) (counseling.Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return counseling.Recording{}, fmt.Errorf("read audio file: %w", err)
	}
	if len(data) == 0 {
		return counseling.Recording{}, fmt.Errorf("%s: %w", path, ErrNoAudio)
	}
	return NewRecording(data, MIMEFromFilename(path)), nil
}
