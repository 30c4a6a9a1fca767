package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/voicecounsel/internal/media"
	counselingsvc "github.com/zhouzirui/voicecounsel/internal/service/counseling"
)

func newTalkCmd(a *app) *cobra.Command {
	var (
		live  bool
		audio []string
	)
	cmd := &cobra.Command{
		Use:   "talk",
		Short: "Run a voice counseling session",
		Long: `talk runs a counseling session. Each turn records what you say, sends it
to the counselor and plays the spoken reply.

With --live the microphone and speaker are used (requires a build with
-tags portaudio). With --audio each given file is sent as one turn and the
replies are written to PLAYBACK_DIR. When the microphone is unavailable the
--audio files are used as a fallback.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !live && len(audio) == 0 {
				return errors.New("either --live or --audio is required")
			}
			session, err := a.session()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			gateway, closeGateway, liveActive, err := a.openGateway(out, live, audio)
			if err != nil {
				return err
			}
			defer closeGateway()

			ctrl := counselingsvc.NewController(gateway, a.client, session, counselingsvc.Options{
				OfferFileFallback: a.cfg.Media.OfferFileFallback && len(audio) > 0,
				AutoStop:          a.cfg.Media.AutoStop,
			})
			events := ctrl.Subscribe()
			printed := make(chan struct{})
			go func() {
				defer close(printed)
				printEvents(out, events)
			}()
			defer func() {
				_ = ctrl.Close()
				<-printed
			}()

			return runTalk(cmd.Context(), ctrl, talkInput{live: liveActive, audio: audio, in: cmd.InOrStdin(), out: out})
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "use the microphone and speaker")
	cmd.Flags().StringSliceVarP(&audio, "audio", "a", nil, "audio file to send as one turn (repeatable)")
	return cmd
}

// openGateway picks the live devices when asked for and available, the file
// gateway otherwise. The returned flag tells whether the live devices are in use.
func (a *app) openGateway(out io.Writer, live bool, audio []string) (media.Gateway, func(), bool, error) {
	if live {
		gateway, closeDevices, err := media.OpenLiveGateway()
		if err == nil {
			return gateway, func() { _ = closeDevices() }, true, nil
		}
		if len(audio) == 0 {
			return nil, nil, false, err
		}
		fmt.Fprintf(out, "Live audio unavailable (%v), using the audio files instead.\n", err)
	}
	return media.NewFileGateway(a.cfg.Media.PlaybackDir, audio...), func() {}, false, nil
}

type talkInput struct {
	live  bool
	audio []string
	in    io.Reader
	out   io.Writer
}

func runTalk(ctx context.Context, ctrl *counselingsvc.Controller, input talkInput) error {
	if err := ctrl.RequestPermission(ctx); err != nil {
		if ctrl.FallbackOffered() && len(input.audio) > 0 {
			return submitFiles(ctx, ctrl, input.audio)
		}
		return errors.New(ctrl.Message())
	}

	if input.live {
		return talkLive(ctx, ctrl, input.in, input.out)
	}
	return talkFiles(ctx, ctrl, len(input.audio))
}

// talkFiles drives one record/stop cycle per queued file.
func talkFiles(ctx context.Context, ctrl *counselingsvc.Controller, turns int) error {
	for i := 0; i < turns; i++ {
		if err := ctrl.Start(ctx); err != nil {
			if errors.Is(err, counselingsvc.ErrFlowEnded) {
				return nil
			}
			continue
		}
		if _, err := ctrl.Stop(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if ctrl.Complete() {
			return nil
		}
	}
	return nil
}

// submitFiles sends each file directly, the path taken when the microphone was denied.
func submitFiles(ctx context.Context, ctrl *counselingsvc.Controller, files []string) error {
	for _, path := range files {
		rec, err := media.LoadRecordingFile(path)
		if err != nil {
			return err
		}
		if _, err := ctrl.Submit(ctx, rec); err != nil {
			if errors.Is(err, counselingsvc.ErrFlowEnded) || ctx.Err() != nil {
				return nil
			}
		}
		if ctrl.Complete() {
			return nil
		}
	}
	return nil
}

func talkLive(ctx context.Context, ctrl *counselingsvc.Controller, in io.Reader, out io.Writer) error {
	lines := readLines(in)
	events := ctrl.Subscribe()

	for {
		fmt.Fprintln(out, "Press Enter to speak, q + Enter to leave.")
		select {
		case line, ok := <-lines:
			if !ok || strings.EqualFold(strings.TrimSpace(line), "q") {
				return nil
			}
		case <-ctrl.Done():
			return nil
		case <-ctx.Done():
			return nil
		}

		if err := ctrl.Start(ctx); err != nil {
			if errors.Is(err, counselingsvc.ErrFlowEnded) {
				return nil
			}
			continue
		}
		fmt.Fprintln(out, "Recording... press Enter to send.")

	recording:
		for ctrl.State() == counselingsvc.StateRecording {
			select {
			case <-lines:
				break recording
			case _, ok := <-events:
				if !ok {
					return nil
				}
			case <-ctx.Done():
				return nil
			}
		}

		// 自动停止时 Stop 为空操作
		_, _ = ctrl.Stop(ctx)
		if !awaitRest(ctx, ctrl, events) {
			return nil
		}
	}
}

// awaitRest blocks until the controller is back in a resting state. It reports false
// once the flow is over.
func awaitRest(ctx context.Context, ctrl *counselingsvc.Controller, events <-chan counselingsvc.Event) bool {
	for {
		switch ctrl.State() {
		case counselingsvc.StateIdle, counselingsvc.StatePermission:
			select {
			case <-ctrl.Done():
				return false
			default:
				return true
			}
		}
		select {
		case _, ok := <-events:
			if !ok {
				return false
			}
		case <-ctrl.Done():
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func printEvents(out io.Writer, events <-chan counselingsvc.Event) {
	var (
		lastState   counselingsvc.State
		lastMessage string
	)
	for ev := range events {
		if ev.State != lastState {
			fmt.Fprintf(out, "· %s\n", ev.State)
			lastState = ev.State
		}
		if ev.Message != "" && ev.Message != lastMessage {
			fmt.Fprintf(out, "! %s\n", ev.Message)
		}
		lastMessage = ev.Message
		if ev.Complete {
			fmt.Fprintf(out, "Counseling complete after %d exchanges. Thank you.\n", ev.Session.ExchangeCount)
		}
	}
}
