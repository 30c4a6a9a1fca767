// Package counseling drives one voice-counseling conversation: microphone permission,
// recording, the exchange with the backend and playback of the reply.
package counseling

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/voicecounsel/internal/auth"
	"github.com/zhouzirui/voicecounsel/internal/media"
	"github.com/zhouzirui/voicecounsel/internal/model/counseling"
)

// State is the phase of the counseling flow.
type State string

const (
	StatePermission State = "permission"
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StatePlaying    State = "playing"
)

var (
	// ErrFlowEnded is returned once the conversation was completed or closed.
	ErrFlowEnded = errors.New("counseling flow has ended")
	// ErrFallbackUnavailable is returned by Submit when file input is not allowed right now.
	ErrFallbackUnavailable = errors.New("audio file input is not available")
)

// 订阅通道缓冲大小，慢消费者会丢事件
const eventBuffer = 32

// Exchanger sends one recording to the backend and returns the validated reply.
type Exchanger interface {
	SendVoice(ctx context.Context, session auth.Session, rec counseling.Recording, sessionID string) (counseling.ExchangeResult, error)
}

// Options switch the optional behaviours of the flow.
type Options struct {
	// OfferFileFallback lets Submit take an audio file when the microphone was denied.
	OfferFileFallback bool
	// AutoStop stops a recording after this long. Zero waits for Stop.
	AutoStop time.Duration
}

// Event is published on every state change.
type Event struct {
	State    State              `json:"state"`
	Session  counseling.Session `json:"session"`
	Err      error              `json:"-"`
	Message  string             `json:"message,omitempty"`
	Fallback bool               `json:"fallback,omitempty"`
	Complete bool               `json:"complete,omitempty"`
	At       time.Time          `json:"at"`
}

// Controller is the session controller. All methods are safe for concurrent use; the state
// machine guarantees at most one recording and one exchange in flight.
type Controller struct {
	gateway   media.Gateway
	exchanger Exchanger
	account   auth.Session
	opts      Options

	lifetime context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu              sync.Mutex
	state           State
	session         counseling.Session
	micReady        bool
	fallbackOffered bool
	lastErr         error
	complete        bool
	ended           bool
	closing         bool
	// starting 在 StartRecording 返回前非空，Stop 需等它关闭
	starting        chan struct{}
	autoStop        chan struct{}
	subscribers     []chan Event

	done      chan struct{}
	closeOnce sync.Once
}

// NewController creates a controller in the permission state.
func NewController(gateway media.Gateway, exchanger Exchanger, account auth.Session, opts Options) *Controller {
	lifetime, cancel := context.WithCancel(context.Background())
	return &Controller{
		gateway:   gateway,
		exchanger: exchanger,
		account:   account,
		opts:      opts,
		lifetime:  lifetime,
		cancel:    cancel,
		state:     StatePermission,
		done:      make(chan struct{}),
	}
}

// Subscribe returns a channel receiving every later event. It is closed by Close.
func (c *Controller) Subscribe() <-chan Event {
	ch := make(chan Event, eventBuffer)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		close(ch)
		return ch
	}
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// State returns the current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the conversation id and exchange count.
func (c *Controller) Session() counseling.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Err returns the error of the last failed operation, cleared by the next successful one.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Message is the user-facing text for Err.
func (c *Controller) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messageLocked(c.lastErr)
}

// FallbackOffered reports whether Submit accepts an audio file in the permission state.
func (c *Controller) FallbackOffered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fallbackOffered
}

// Complete reports whether the server ended the conversation.
func (c *Controller) Complete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.complete
}

// Done is closed when the flow is left, either by completion or Close.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// RequestPermission acquires the microphone. It only acts in the permission state.
// A denial keeps the permission state and, when configured, offers the file fallback.
func (c *Controller) RequestPermission(ctx context.Context) error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return ErrFlowEnded
	}
	if c.state != StatePermission {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ctx, release := c.bind(ctx)
	defer release()

	if err := c.gateway.AcquireMicrophone(ctx); err != nil {
		c.mu.Lock()
		if errors.Is(err, media.ErrPermissionDenied) && c.opts.OfferFileFallback {
			c.fallbackOffered = true
		}
		c.failLocked(err)
		c.mu.Unlock()
		log.Printf("[counseling] microphone unavailable: %v", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return ErrFlowEnded
	}
	c.micReady = true
	c.lastErr = nil
	c.setStateLocked(StateIdle)
	return nil
}

// Start begins a recording. Outside the idle state it does nothing.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return ErrFlowEnded
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.lastErr = nil
	starting := make(chan struct{})
	c.starting = starting
	c.setStateLocked(StateRecording)
	c.mu.Unlock()

	ctx, release := c.bind(ctx)
	defer release()

	err := c.gateway.StartRecording(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting = nil
	close(starting)
	if err != nil {
		c.failLocked(err)
		log.Printf("[counseling] start recording failed: %v", err)
		return err
	}
	if c.state == StateRecording {
		c.armAutoStopLocked()
	}
	return nil
}

// Stop finishes the recording and runs the exchange: upload, then playback of the reply.
// Outside the recording state it does nothing and returns a zero result.
func (c *Controller) Stop(ctx context.Context) (counseling.ExchangeResult, error) {
	c.mu.Lock()
	for c.starting != nil && c.state == StateRecording && !c.ended {
		// 录音尚未被确认开始，等 StartRecording 返回后再停止
		starting := c.starting
		c.mu.Unlock()
		select {
		case <-starting:
		case <-ctx.Done():
			return counseling.ExchangeResult{}, ctx.Err()
		case <-c.lifetime.Done():
			return counseling.ExchangeResult{}, ErrFlowEnded
		}
		c.mu.Lock()
	}
	if c.state != StateRecording || c.ended {
		c.mu.Unlock()
		return counseling.ExchangeResult{}, nil
	}
	c.disarmAutoStopLocked()
	c.setStateLocked(StateProcessing)
	c.mu.Unlock()

	ctx, release := c.bind(ctx)
	defer release()

	rec, err := c.gateway.StopRecording(ctx)
	if err != nil {
		c.mu.Lock()
		c.failLocked(err)
		c.mu.Unlock()
		log.Printf("[counseling] stop recording failed: %v", err)
		return counseling.ExchangeResult{}, err
	}
	return c.exchange(ctx, rec)
}

// Submit runs an exchange with an already encoded recording instead of the microphone.
// It is accepted in the idle state, and in the permission state once the fallback was offered.
func (c *Controller) Submit(ctx context.Context, rec counseling.Recording) (counseling.ExchangeResult, error) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return counseling.ExchangeResult{}, ErrFlowEnded
	}
	switch {
	case c.state == StateIdle:
	case c.state == StatePermission && c.fallbackOffered:
	default:
		c.mu.Unlock()
		return counseling.ExchangeResult{}, ErrFallbackUnavailable
	}
	if rec.Empty() {
		c.failLocked(media.ErrNoAudio)
		c.mu.Unlock()
		return counseling.ExchangeResult{}, media.ErrNoAudio
	}
	c.lastErr = nil
	c.setStateLocked(StateProcessing)
	c.mu.Unlock()

	ctx, release := c.bind(ctx)
	defer release()
	return c.exchange(ctx, rec)
}

// Close leaves the flow: in-flight work is cancelled, the microphone released and
// subscribers closed. It is safe to call more than once.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()
		c.cancel()
		c.wg.Wait()

		err = c.gateway.Release()

		c.mu.Lock()
		c.endLocked()
		for _, ch := range c.subscribers {
			close(ch)
		}
		c.subscribers = nil
		c.mu.Unlock()
	})
	return err
}

// exchange sends rec and plays the reply. The state is processing on entry.
func (c *Controller) exchange(ctx context.Context, rec counseling.Recording) (counseling.ExchangeResult, error) {
	c.mu.Lock()
	sessionID := c.session.ID
	c.mu.Unlock()

	log.Printf("[counseling] sending %d bytes of %s (session=%q)", len(rec.Data), rec.MIMEType, sessionID)
	result, err := c.exchanger.SendVoice(ctx, c.account, rec, sessionID)
	if err != nil {
		c.mu.Lock()
		c.failLocked(err)
		c.mu.Unlock()
		log.Printf("[counseling] exchange failed: %v", err)
		return counseling.ExchangeResult{}, err
	}

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return result, ErrFlowEnded
	}
	if result.SessionID != "" {
		c.session.ID = result.SessionID
	}
	c.session.ExchangeCount++
	c.setStateLocked(StatePlaying)
	c.mu.Unlock()

	playErr := c.gateway.Play(ctx, result.AudioPayload)
	if playErr != nil {
		log.Printf("[counseling] playback failed: %v", playErr)
	}

	if result.IsComplete {
		log.Printf("[counseling] session %s complete after %d exchange(s)", result.SessionID, c.Session().ExchangeCount)
		c.finish(playErr)
		return result, playErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if playErr != nil {
		c.failLocked(playErr)
		return result, playErr
	}
	if !c.ended {
		c.setStateLocked(c.restStateLocked())
	}
	return result, nil
}

// finish exits the flow after the server signalled completion.
func (c *Controller) finish(playErr error) {
	if err := c.gateway.Release(); err != nil {
		log.Printf("[counseling] release media: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.complete = true
	c.lastErr = playErr
	c.micReady = false
	c.state = StateIdle
	c.emitLocked()
	c.endLocked()
}

// bind derives a context that is also cancelled when the controller closes.
func (c *Controller) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.lifetime, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *Controller) restStateLocked() State {
	if c.micReady {
		return StateIdle
	}
	return StatePermission
}

func (c *Controller) failLocked(err error) {
	c.disarmAutoStopLocked()
	c.lastErr = err
	if c.ended {
		return
	}
	c.setStateLocked(c.restStateLocked())
}

func (c *Controller) setStateLocked(state State) {
	c.state = state
	c.emitLocked()
}

func (c *Controller) emitLocked() {
	event := Event{
		State:    c.state,
		Session:  c.session,
		Err:      c.lastErr,
		Message:  c.messageLocked(c.lastErr),
		Fallback: c.fallbackOffered,
		Complete: c.complete,
		At:       time.Now().UTC(),
	}
	for _, ch := range c.subscribers {
		select {
		case ch <- event:
		default:
			log.Printf("[counseling] subscriber is slow, dropping %s event", event.State)
		}
	}
}

func (c *Controller) endLocked() {
	if c.ended {
		return
	}
	c.ended = true
	c.disarmAutoStopLocked()
	close(c.done)
}

func (c *Controller) armAutoStopLocked() {
	if c.opts.AutoStop <= 0 || c.closing || c.lifetime.Err() != nil {
		return
	}
	stop := make(chan struct{})
	c.autoStop = stop
	after := c.opts.AutoStop

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		timer := time.NewTimer(after)
		defer timer.Stop()

		select {
		case <-timer.C:
			log.Printf("[counseling] recording reached %s, stopping", after)
			if _, err := c.Stop(c.lifetime); err != nil {
				log.Printf("[counseling] automatic stop: %v", err)
			}
		case <-stop:
		case <-c.lifetime.Done():
		}
	}()
}

func (c *Controller) disarmAutoStopLocked() {
	if c.autoStop != nil {
		close(c.autoStop)
		c.autoStop = nil
	}
}

func (c *Controller) messageLocked(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, media.ErrPermissionDenied) && c.fallbackOffered {
		return fmt.Sprintf("%s You can send an audio file instead.", UserMessage(err))
	}
	return UserMessage(err)
}
