package counseling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/zhouzirui/voicecounsel/internal/media"
	"github.com/zhouzirui/voicecounsel/internal/model/counseling"
)

// Browser commands sent by the gateway.
const (
	cmdAcquireMicrophone = "acquire_microphone"
	cmdStartRecording    = "start_recording"
	cmdStopRecording     = "stop_recording"
	cmdPlay              = "play"
	cmdRelease           = "release"
)

// Browser replies; each command is answered by exactly one of its replies.
const (
	replyPermission       = "permission"
	replyRecordingStarted = "recording_started"
	replyRecordingError   = "recording_error"
	replyAudio            = "audio"
	replyAudioError       = "audio_error"
	replyPlaybackEnded    = "playback_ended"
	replyPlaybackError    = "playback_error"
)

var errGatewayBusy = errors.New("another media operation is in progress")

type permissionReply struct {
	Granted bool   `json:"granted"`
	Message string `json:"message,omitempty"`
}

type audioReply struct {
	AudioBase64 string `json:"audioBase64"`
	MIMEType    string `json:"mimeType"`
}

type errorReply struct {
	Message string `json:"message"`
}

type playCommand struct {
	AudioBase64 string `json:"audioBase64"`
}

// remoteGateway runs the media operations in the browser on the other end of a WebSocket.
// Each operation sends one command and waits for the first matching reply; replies nobody
// waits for are dropped.
type remoteGateway struct {
	send func(outgoingMessage) error

	mu      sync.Mutex
	waiting []string
	reply   chan inboundMessage
}

func newRemoteGateway(send func(outgoingMessage) error) *remoteGateway {
	return &remoteGateway{send: send}
}

// deliver hands a browser reply to the pending operation. It reports false when the
// reply was not expected.
func (g *remoteGateway) deliver(msg inboundMessage) bool {
	g.mu.Lock()
	if g.reply == nil || !slices.Contains(g.waiting, msg.Type) {
		g.mu.Unlock()
		return false
	}
	ch := g.reply
	g.reply = nil
	g.waiting = nil
	g.mu.Unlock()

	ch <- msg
	return true
}

func (g *remoteGateway) expect(ctx context.Context, command outgoingMessage, kinds ...string) (inboundMessage, error) {
	ch := make(chan inboundMessage, 1)

	g.mu.Lock()
	if g.reply != nil {
		g.mu.Unlock()
		return inboundMessage{}, errGatewayBusy
	}
	g.reply = ch
	g.waiting = kinds
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.reply == ch {
			g.reply = nil
			g.waiting = nil
		}
		g.mu.Unlock()
	}()

	if err := g.send(command); err != nil {
		return inboundMessage{}, fmt.Errorf("send %s: %w", command.Type, err)
	}

	select {
	case msg := <-ch:
		return msg, nil
	case <-ctx.Done():
		return inboundMessage{}, ctx.Err()
	}
}

func (g *remoteGateway) AcquireMicrophone(ctx context.Context) error {
	msg, err := g.expect(ctx, newCommand(cmdAcquireMicrophone, nil), replyPermission)
	if err != nil {
		return err
	}

	var reply permissionReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("invalid permission payload: %w", err)
	}
	if !reply.Granted {
		if reply.Message != "" {
			return fmt.Errorf("%w: %s", media.ErrPermissionDenied, reply.Message)
		}
		return media.ErrPermissionDenied
	}
	return nil
}

func (g *remoteGateway) StartRecording(ctx context.Context) error {
	msg, err := g.expect(ctx, newCommand(cmdStartRecording, nil), replyRecordingStarted, replyRecordingError)
	if err != nil {
		return err
	}
	if msg.Type == replyRecordingError {
		return fmt.Errorf("start recording: %s", replyMessage(msg))
	}
	return nil
}

func (g *remoteGateway) StopRecording(ctx context.Context) (counseling.Recording, error) {
	msg, err := g.expect(ctx, newCommand(cmdStopRecording, nil), replyAudio, replyAudioError)
	if err != nil {
		return counseling.Recording{}, err
	}
	if msg.Type == replyAudioError {
		return counseling.Recording{}, fmt.Errorf("%w: %s", media.ErrNoAudio, replyMessage(msg))
	}
	return decodeAudioReply(msg.Data)
}

func (g *remoteGateway) Play(ctx context.Context, payload string) error {
	msg, err := g.expect(ctx, newCommand(cmdPlay, playCommand{AudioBase64: payload}), replyPlaybackEnded, replyPlaybackError)
	if err != nil {
		return err
	}
	if msg.Type == replyPlaybackError {
		return fmt.Errorf("%w: %s", media.ErrPlayback, replyMessage(msg))
	}
	return nil
}

func (g *remoteGateway) Release() error {
	if err := g.send(newCommand(cmdRelease, nil)); err != nil {
		log.Printf("[websocket] release command not delivered: %v", err)
	}
	return nil
}

func decodeAudioReply(raw json.RawMessage) (counseling.Recording, error) {
	var reply audioReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return counseling.Recording{}, fmt.Errorf("%w: %v", media.ErrMalformedAudio, err)
	}
	data, err := media.DecodeAudio(reply.AudioBase64)
	if err != nil {
		return counseling.Recording{}, err
	}
	return media.NewRecording(data, reply.MIMEType), nil
}

func replyMessage(msg inboundMessage) string {
	var reply errorReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil || reply.Message == "" {
		return "browser reported an error"
	}
	return reply.Message
}
