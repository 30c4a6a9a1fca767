//go:build portaudio

package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/zhouzirui/voicecounsel/internal/model/counseling"
)

const (
	captureSampleRate = 16000
	captureChannels   = 1
	// 100ms of audio at 16kHz
	captureFrames  = 1600
	playbackFrames = 960
)

// liveGateway records from the default input device and plays on the default output device.
type liveGateway struct {
	mu        sync.Mutex
	stream    *portaudio.Stream
	in        []int16
	pcm       bytes.Buffer
	recording bool
	stop      chan struct{}
	done      chan error
}

// OpenLiveGateway initializes PortAudio. The returned closer terminates it.
func OpenLiveGateway() (Gateway, func() error, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	g := &liveGateway{}
	closer := func() error {
		g.Release()
		return portaudio.Terminate()
	}
	return g, closer, nil
}

func (g *liveGateway) AcquireMicrophone(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stream != nil {
		return nil
	}

	in := make([]int16, captureFrames*captureChannels)
	stream, err := portaudio.OpenDefaultStream(captureChannels, 0, captureSampleRate, captureFrames, in)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	g.stream = stream
	g.in = in
	log.Printf("[media] microphone opened: %dHz, %d channel(s)", captureSampleRate, captureChannels)
	return nil
}

func (g *liveGateway) StartRecording(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stream == nil {
		return ErrNotAcquired
	}
	if g.recording {
		return ErrAlreadyRecording
	}
	if err := g.stream.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}

	g.pcm.Reset()
	g.stop = make(chan struct{})
	g.done = make(chan error, 1)
	g.recording = true

	go g.captureLoop(g.stream, g.in, g.stop, g.done)
	return nil
}

func (g *liveGateway) captureLoop(stream *portaudio.Stream, in []int16, stop <-chan struct{}, done chan<- error) {
	frame := make([]byte, len(in)*2)
	for {
		select {
		case <-stop:
			done <- nil
			return
		default:
		}

		if err := stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
			done <- err
			return
		}

		for i, s := range in {
			binary.LittleEndian.PutUint16(frame[i*2:], uint16(s))
		}
		g.mu.Lock()
		g.pcm.Write(frame)
		g.mu.Unlock()
	}
}

func (g *liveGateway) StopRecording(ctx context.Context) (counseling.Recording, error) {
	g.mu.Lock()
	if !g.recording {
		g.mu.Unlock()
		return counseling.Recording{}, ErrNotRecording
	}
	g.recording = false
	stop, done, stream := g.stop, g.done, g.stream
	g.mu.Unlock()

	close(stop)
	var loopErr error
	select {
	case loopErr = <-done:
	case <-ctx.Done():
		loopErr = ctx.Err()
	}
	if err := stream.Stop(); err != nil {
		log.Printf("[media] stop input stream: %v", err)
	}
	if loopErr != nil {
		return counseling.Recording{}, fmt.Errorf("capture audio: %w", loopErr)
	}

	g.mu.Lock()
	pcm := append([]byte(nil), g.pcm.Bytes()...)
	g.pcm.Reset()
	g.mu.Unlock()

	if len(pcm) == 0 {
		return counseling.Recording{}, ErrNoAudio
	}

	wav := WrapPCMAsWAV(pcm, WAVFormat{SampleRate: captureSampleRate, Channels: captureChannels, BitsPerSample: 16})
	return NewRecording(wav, "audio/wav"), nil
}

func (g *liveGateway) Play(ctx context.Context, payload string) error {
	audio, err := DecodeAudio(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlayback, err)
	}
	format, pcm, err := ParseWAV(audio)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlayback, err)
	}
	if format.BitsPerSample != 16 || format.Channels < 1 {
		return fmt.Errorf("%w: %d-bit %d channel audio", ErrPlayback, format.BitsPerSample, format.Channels)
	}

	out := make([]int16, playbackFrames*format.Channels)
	stream, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), playbackFrames, out)
	if err != nil {
		return fmt.Errorf("%w: open output stream: %v", ErrPlayback, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("%w: start output stream: %v", ErrPlayback, err)
	}
	defer stream.Stop()

	frameBytes := len(out) * 2
	for offset := 0; offset < len(pcm); offset += frameBytes {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := range out {
			pos := offset + i*2
			if pos+1 < len(pcm) {
				out[i] = int16(binary.LittleEndian.Uint16(pcm[pos:]))
			} else {
				out[i] = 0
			}
		}
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("%w: %v", ErrPlayback, err)
		}
	}
	return nil
}

func (g *liveGateway) Release() error {
	g.mu.Lock()
	recording, stop, done, stream := g.recording, g.stop, g.done, g.stream
	g.recording = false
	g.stream = nil
	g.mu.Unlock()

	if recording {
		close(stop)
		<-done
	}
	if stream == nil {
		return nil
	}
	if recording {
		stream.Stop()
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("close input stream: %w", err)
	}
	log.Printf("[media] microphone released")
	return nil
}
