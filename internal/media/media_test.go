package media

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func sampleWAV() []byte {
	pcm := make([]byte, 3200)
	for i := range pcm {
		pcm[i] = byte(i * 7)
	}
	return WrapPCMAsWAV(pcm, WAVFormat{SampleRate: 16000, Channels: 1, BitsPerSample: 16})
}

func TestEncodeDecodeAudioRoundTrip(t *testing.T) {
	original := sampleWAV()

	decoded, err := DecodeAudio(EncodeAudio(original))
	if err != nil {
		t.Fatalf("DecodeAudio err: %v", err)
	}
	if !bytes.Equal(decoded, original) {
		t.Fatal("round trip changed audio bytes")
	}
}

func TestDecodeAudioStripsDataURL(t *testing.T) {
	original := []byte("voice")
	decoded, err := DecodeAudio("data:audio/wav;base64," + EncodeAudio(original))
	if err != nil {
		t.Fatalf("DecodeAudio err: %v", err)
	}
	if !bytes.Equal(decoded, original) {
		t.Fatalf("unexpected payload: %q", decoded)
	}
}

func TestDecodeAudioRejectsMalformed(t *testing.T) {
	for _, payload := range []string{"", "   ", "%%%not-base64%%%"} {
		if _, err := DecodeAudio(payload); !errors.Is(err, ErrMalformedAudio) {
			t.Fatalf("DecodeAudio(%q): expected ErrMalformedAudio, got %v", payload, err)
		}
	}
}

func TestParseWAVReturnsFormatAndSamples(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	wav := WrapPCMAsWAV(pcm, WAVFormat{SampleRate: 24000, Channels: 2, BitsPerSample: 16})

	format, samples, err := ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV err: %v", err)
	}
	if format.SampleRate != 24000 || format.Channels != 2 || format.BitsPerSample != 16 {
		t.Fatalf("unexpected format: %+v", format)
	}
	if !bytes.Equal(samples, pcm) {
		t.Fatalf("unexpected samples: %v", samples)
	}
}

func TestParseWAVRejectsOtherContainers(t *testing.T) {
	if _, _, err := ParseWAV([]byte("ID3\x03\x00rest-of-mp3")); !errors.Is(err, ErrUnsupportedAudio) {
		t.Fatalf("expected ErrUnsupportedAudio, got %v", err)
	}
}

func TestSniffMIME(t *testing.T) {
	cases := []struct {
		data []byte
		want string
	}{
		{data: sampleWAV(), want: "audio/wav"},
		{data: []byte("OggS\x00\x02"), want: "audio/ogg"},
		{data: []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}, want: "audio/webm"},
		{data: []byte("ID3\x04"), want: "audio/mpeg"},
		{data: []byte{0xFF, 0xFB, 0x90}, want: "audio/mpeg"},
		{data: []byte("plain"), want: "application/octet-stream"},
	}
	for _, tc := range cases {
		if got := SniffMIME(tc.data); got != tc.want {
			t.Fatalf("SniffMIME = %s, want %s", got, tc.want)
		}
	}
}

func TestMIMEFromFilename(t *testing.T) {
	cases := map[string]string{
		"a.mp3":  "audio/mpeg",
		"b.WAV":  "audio/wav",
		"c.webm": "audio/webm",
		"d.m4a":  "audio/mp4",
		"e.txt":  "",
	}
	for name, want := range cases {
		if got := MIMEFromFilename(name); got != want {
			t.Fatalf("MIMEFromFilename(%s) = %q, want %q", name, got, want)
		}
	}
}

func TestFileGatewayRecordsQueuedFilesAndWritesReplies(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "hello.wav")
	if err := os.WriteFile(input, sampleWAV(), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}

	ctx := context.Background()
	gw := NewFileGateway(filepath.Join(dir, "out"), input)

	if err := gw.StartRecording(ctx); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired before acquisition, got %v", err)
	}
	if _, err := gw.StopRecording(ctx); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}

	if err := gw.AcquireMicrophone(ctx); err != nil {
		t.Fatalf("AcquireMicrophone err: %v", err)
	}
	if err := gw.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording err: %v", err)
	}
	if err := gw.StartRecording(ctx); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}

	rec, err := gw.StopRecording(ctx)
	if err != nil {
		t.Fatalf("StopRecording err: %v", err)
	}
	if rec.MIMEType != "audio/wav" || rec.ID == "" {
		t.Fatalf("unexpected recording: %+v", rec)
	}

	if err := gw.Play(ctx, EncodeAudio(rec.Data)); err != nil {
		t.Fatalf("Play err: %v", err)
	}
	played := gw.Played()
	if len(played) != 1 || filepath.Ext(played[0]) != ".wav" {
		t.Fatalf("unexpected played files: %v", played)
	}
	written, err := os.ReadFile(played[0])
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if !bytes.Equal(written, rec.Data) {
		t.Fatal("reply file differs from payload")
	}

	if err := gw.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording err: %v", err)
	}
	if _, err := gw.StopRecording(ctx); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio when queue is empty, got %v", err)
	}
}

func TestFileGatewayPlayRejectsBadPayload(t *testing.T) {
	gw := NewFileGateway(t.TempDir())
	if err := gw.Play(context.Background(), "***"); !errors.Is(err, ErrPlayback) {
		t.Fatalf("expected ErrPlayback, got %v", err)
	}
}

func TestFileCamera(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	if err := os.WriteFile(path, jpeg, 0o600); err != nil {
		t.Fatalf("write image: %v", err)
	}

	ctx := context.Background()
	cam := NewFileCamera(path)
	if _, err := cam.Capture(ctx); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	if err := cam.Open(ctx, "environment"); err != nil {
		t.Fatalf("Open err: %v", err)
	}
	shot, err := cam.Capture(ctx)
	if err != nil {
		t.Fatalf("Capture err: %v", err)
	}
	if shot.MIMEType != "image/jpeg" || shot.FileName != "photo.jpg" {
		t.Fatalf("unexpected photo: %+v", shot)
	}

	missing := NewFileCamera(filepath.Join(dir, "missing.jpg"))
	if err := missing.Open(ctx, "user"); !errors.Is(err, ErrCameraDenied) {
		t.Fatalf("expected ErrCameraDenied, got %v", err)
	}
}
