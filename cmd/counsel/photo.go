package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/voicecounsel/internal/media"
	photosvc "github.com/zhouzirui/voicecounsel/internal/service/photo"
)

func newPhotoCmd(a *app) *cobra.Command {
	var (
		image  string
		facing string
	)
	cmd := &cobra.Command{
		Use:   "photo",
		Short: "Upload a photo for analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := a.session()
			if err != nil {
				return err
			}
			if facing == "" {
				facing = a.cfg.Media.FacingMode
			}

			ctrl := photosvc.NewController(media.NewFileCamera(image), a.client, session, facing)
			defer ctrl.Close()

			ctx := cmd.Context()
			if err := ctrl.RequestCamera(ctx); err != nil {
				return errors.New(ctrl.Message())
			}
			shot, err := ctrl.Capture(ctx)
			if err != nil {
				return errors.New(ctrl.Message())
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sending %s (%s, %d bytes)...\n", shot.FileName, shot.MIMEType, len(shot.Data))
			result, err := ctrl.Send(ctx)
			if err != nil {
				return errors.New(ctrl.Message())
			}

			if result.ImageURL != "" {
				fmt.Fprintf(out, "Image: %s\n", result.ImageURL)
			}
			fmt.Fprintln(out, result.Text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&image, "image", "i", "", "image file to send (required)")
	cmd.Flags().StringVar(&facing, "facing", "", "camera facing mode: environment or user")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}
