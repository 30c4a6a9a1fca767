package media

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/zhouzirui/voicecounsel/internal/model/counseling"
)

// FileGateway stands in for a microphone and speaker with files: each recording is the next
// queued audio file and each reply is written into an output directory.
type FileGateway struct {
	mu        sync.Mutex
	queue     []string
	outDir    string
	acquired  bool
	recording bool
	played    []string
}

// NewFileGateway creates a gateway that answers recordings from inputs in order.
func NewFileGateway(outDir string, inputs ...string) *FileGateway {
	return &FileGateway{
		queue:  append([]string(nil), inputs...),
		outDir: outDir,
	}
}

// Enqueue appends more input files.
func (g *FileGateway) Enqueue(paths ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queue = append(g.queue, paths...)
}

// Pending returns how many input files are left.
func (g *FileGateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// Played lists the reply files written so far.
func (g *FileGateway) Played() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.played...)
}

func (g *FileGateway) AcquireMicrophone(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	g.acquired = true
	g.mu.Unlock()
	return nil
}

func (g *FileGateway) StartRecording(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.acquired {
		return ErrNotAcquired
	}
	if g.recording {
		return ErrAlreadyRecording
	}
	g.recording = true
	return nil
}

func (g *FileGateway) StopRecording(ctx context.Context) (counseling.Recording, error) {
	g.mu.Lock()
	if !g.recording {
		g.mu.Unlock()
		return counseling.Recording{}, ErrNotRecording
	}
	g.recording = false
	if len(g.queue) == 0 {
		g.mu.Unlock()
		return counseling.Recording{}, ErrNoAudio
	}
	next := g.queue[0]
	g.queue = g.queue[1:]
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return counseling.Recording{}, err
	}
	return LoadRecordingFile(next)
}

func (g *FileGateway) Play(ctx context.Context, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	audio, err := DecodeAudio(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlayback, err)
	}

	g.mu.Lock()
	index := len(g.played) + 1
	g.mu.Unlock()

	if err := os.MkdirAll(g.outDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrPlayback, err)
	}
	path := filepath.Join(g.outDir, fmt.Sprintf("reply-%03d%s", index, ExtensionForMIME(SniffMIME(audio))))
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrPlayback, err)
	}

	g.mu.Lock()
	g.played = append(g.played, path)
	g.mu.Unlock()

	log.Printf("[media] reply audio written to %s (%d bytes)", path, len(audio))
	return nil
}

func (g *FileGateway) Release() error {
	g.mu.Lock()
	g.acquired = false
	g.recording = false
	g.mu.Unlock()
	return nil
}
