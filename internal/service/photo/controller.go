// Package photo drives the capture-and-analyse flow: open the camera, take one frame,
// upload it and show what the backend says about it.
package photo

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/zhouzirui/voicecounsel/internal/api"
	"github.com/zhouzirui/voicecounsel/internal/auth"
	"github.com/zhouzirui/voicecounsel/internal/media"
	"github.com/zhouzirui/voicecounsel/internal/model/photo"
)

// State is the phase of the photo flow.
type State string

const (
	StatePermission State = "permission"
	StateReady      State = "ready"
	StateCaptured   State = "captured"
	StateSending    State = "sending"
	StateResult     State = "result"
)

var ErrWrongState = errors.New("operation not allowed in the current state")

// Uploader sends a photo to the backend for analysis.
type Uploader interface {
	UploadPhoto(ctx context.Context, session auth.Session, p photo.Photo) (photo.UploadResult, error)
}

// Controller holds one photo flow. The mutex guards state only; camera and network calls run unlocked.
type Controller struct {
	camera     media.Camera
	uploader   Uploader
	account    auth.Session
	facingMode string

	mu       sync.Mutex
	state    State
	captured photo.Photo
	result   photo.UploadResult
	lastErr  error
}

// NewController creates a flow in the permission state. An empty facingMode means "environment".
func NewController(camera media.Camera, uploader Uploader, account auth.Session, facingMode string) *Controller {
	if facingMode == "" {
		facingMode = "environment"
	}
	return &Controller{
		camera:     camera,
		uploader:   uploader,
		account:    account,
		facingMode: facingMode,
		state:      StatePermission,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Photo returns the captured frame, empty before Capture and after Retake.
func (c *Controller) Photo() photo.Photo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captured
}

// Result returns the analysis of the last successful Send.
func (c *Controller) Result() photo.UploadResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Message is the user-facing text for Err.
func (c *Controller) Message() string {
	return UserMessage(c.Err())
}

// RequestCamera opens the camera. On denial the flow stays in permission.
func (c *Controller) RequestCamera(ctx context.Context) error {
	if err := c.enter(StatePermission); err != nil {
		return err
	}

	if err := c.camera.Open(ctx, c.facingMode); err != nil {
		log.Printf("[photo] camera unavailable: %v", err)
		c.settle(StatePermission, err)
		return err
	}
	c.settle(StateReady, nil)
	return nil
}

// Capture takes one frame. The camera is released whether or not it succeeds.
func (c *Controller) Capture(ctx context.Context) (photo.Photo, error) {
	if err := c.enter(StateReady); err != nil {
		return photo.Photo{}, err
	}

	shot, err := c.camera.Capture(ctx)
	if releaseErr := c.camera.Release(); releaseErr != nil {
		log.Printf("[photo] release camera: %v", releaseErr)
	}
	if err != nil {
		log.Printf("[photo] capture failed: %v", err)
		c.settle(StatePermission, err)
		return photo.Photo{}, err
	}

	c.mu.Lock()
	c.captured = shot
	c.state = StateCaptured
	c.lastErr = nil
	c.mu.Unlock()
	return shot, nil
}

// Retake drops the captured frame and goes back to the permission step.
func (c *Controller) Retake() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCaptured {
		return ErrWrongState
	}
	c.captured = photo.Photo{}
	c.lastErr = nil
	c.state = StatePermission
	return nil
}

// Send uploads the captured frame. A failure keeps the frame so the user can resend.
func (c *Controller) Send(ctx context.Context) (photo.UploadResult, error) {
	c.mu.Lock()
	if c.state != StateCaptured {
		c.mu.Unlock()
		return photo.UploadResult{}, ErrWrongState
	}
	shot := c.captured
	c.state = StateSending
	c.lastErr = nil
	c.mu.Unlock()

	result, err := c.uploader.UploadPhoto(ctx, c.account, shot)
	if err != nil {
		log.Printf("[photo] upload failed: %v", err)
		c.settle(StateCaptured, err)
		return photo.UploadResult{}, err
	}

	c.mu.Lock()
	c.result = result
	c.state = StateResult
	c.mu.Unlock()
	return result, nil
}

// TakeNew clears the result and starts over.
func (c *Controller) TakeNew() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateResult {
		return ErrWrongState
	}
	c.captured = photo.Photo{}
	c.result = photo.UploadResult{}
	c.lastErr = nil
	c.state = StatePermission
	return nil
}

// Close releases the camera when the flow is left.
func (c *Controller) Close() error {
	return c.camera.Release()
}

func (c *Controller) enter(want State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != want {
		return ErrWrongState
	}
	c.lastErr = nil
	return nil
}

func (c *Controller) settle(state State, err error) {
	c.mu.Lock()
	c.state = state
	c.lastErr = err
	c.mu.Unlock()
}

// UserMessage maps errors of the photo flow to user-facing text.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, media.ErrCameraDenied):
		return "Camera access was denied. Please allow the camera and try again."
	case errors.Is(err, media.ErrNotAcquired):
		return "The camera is not ready."
	case errors.Is(err, ErrWrongState):
		return "That action is not available right now."
	default:
		return api.UserMessage(err)
	}
}
