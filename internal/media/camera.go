package media

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/zhouzirui/voicecounsel/internal/model/photo"
)

// Camera is the still-image side of the gateway used by the photo flow.
type Camera interface {
	// Open acquires the camera facing the given direction ("environment" or "user").
	Open(ctx context.Context, facingMode string) error
	// Capture grabs one JPEG frame from the open camera.
	Capture(ctx context.Context) (photo.Photo, error)
	// Release stops the video track. It is safe to call more than once.
	Release() error
}

// FileCamera serves an image file in place of a camera frame.
type FileCamera struct {
	mu     sync.Mutex
	path   string
	open   bool
	facing string
}

// NewFileCamera returns a camera whose every capture is the file at path.
func NewFileCamera(path string) *FileCamera {
	return &FileCamera{path: path}
}

// FacingMode returns the direction requested by the last Open.
func (c *FileCamera) FacingMode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.facing
}

func (c *FileCamera) Open(ctx context.Context, facingMode string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(c.path); err != nil {
		return fmt.Errorf("%w: %v", ErrCameraDenied, err)
	}
	c.mu.Lock()
	c.open = true
	c.facing = facingMode
	c.mu.Unlock()
	return nil
}

func (c *FileCamera) Capture(ctx context.Context) (photo.Photo, error) {
	if err := ctx.Err(); err != nil {
		return photo.Photo{}, err
	}
	c.mu.Lock()
	open := c.open
	c.mu.Unlock()
	if !open {
		return photo.Photo{}, ErrNotAcquired
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return photo.Photo{}, fmt.Errorf("read image: %w", err)
	}
	return photo.Photo{
		Data:     data,
		MIMEType: http.DetectContentType(data),
		FileName: filepath.Base(c.path),
	}, nil
}

func (c *FileCamera) Release() error {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	return nil
}
