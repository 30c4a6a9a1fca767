// Command counsel runs the counseling and photo flows from a terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/voicecounsel/internal/api"
	"github.com/zhouzirui/voicecounsel/internal/auth"
	"github.com/zhouzirui/voicecounsel/internal/config"
)

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	client  *api.Client
	store   *auth.FileStore
	verbose bool
	now     func() time.Time
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{now: time.Now}

	root := &cobra.Command{
		Use:   "counsel",
		Short: "Voice counseling client",
		Long: `counsel signs in to the counseling service, runs voice counseling
sessions and uploads photos for analysis.

Configuration is read from the environment (and a .env file when present):
  API_SERVER_URL  backend base URL
  SESSION_FILE    where the login token is kept`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "show request logs")

	root.AddCommand(
		newLoginCmd(a),
		newSignupCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newStatusCmd(a),
		newTalkCmd(a),
		newPhotoCmd(a),
	)
	return root
}

func (a *app) load() error {
	// .env 可选
	_ = godotenv.Load()

	if !a.verbose {
		log.SetOutput(io.Discard)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg
	a.client = api.NewClientFromConfig(cfg.API, cfg.Auth)
	a.store = auth.NewFileStore(cfg.Auth.SessionFile)
	return nil
}

// session loads the stored login and rejects it when it can no longer be used.
func (a *app) session() (auth.Session, error) {
	session, err := a.store.Load()
	if err == nil {
		err = session.Valid(a.now())
	}
	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, auth.ErrNoToken):
		return auth.Session{}, errors.New("not signed in, run `counsel login` first")
	case errors.Is(err, auth.ErrExpired):
		_ = a.store.Clear()
		return auth.Session{}, errors.New("your session expired, run `counsel login` again")
	default:
		_ = a.store.Clear()
		return auth.Session{}, fmt.Errorf("stored session is unusable (%v), run `counsel login` again", err)
	}
}
