package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MatusOllah/slogcolor"
	"github.com/kabili207/discord-member-export/pkg/config"
	"github.com/kabili207/discord-member-export/pkg/console"
	"github.com/kabili207/discord-member-export/pkg/discord"
	"github.com/kabili207/discord-member-export/pkg/extract"
	"github.com/kabili207/discord-member-export/pkg/notes"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	_ extract.Session = (*discord.GatewaySession)(nil)
	_ extract.Session = (*discord.RESTSession)(nil)
)

var (
	logger *slog.Logger

	rootCmd = &cobra.Command{
		Use:   "member-export",
		Short: "Export the members of a Discord channel as Markdown notes",
		Long: `Logs into Discord with a user token, walks the members that can see the
configured channel and asks, member by member, whether to write a note.

Reads DISCORD_USER_TOKEN, DISCORD_GUILD_ID and OUTPUT_DIR from the
environment or from a .env file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
)

func init() {
	logger = slog.New(slogcolor.NewHandler(os.Stdout, slogcolor.DefaultOptions))
	slog.SetDefault(logger)
	discord.RouteLogs(logger)

	rootCmd.Flags().StringP("config", "c", "", "The path to an optional config file")
	rootCmd.Flags().String("env-file", config.DefaultEnvFile, "The path to a .env file")
	rootCmd.Flags().String("backend", "gateway", "Session backend, gateway or rest")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	v := viper.New()
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	backend := v.GetString("backend")

	cfg, err := config.Load(v, v.GetString("env_file"), v.GetString("config"))
	if err != nil {
		return err
	}

	store, err := notes.New(afero.NewOsFs(), cfg.OutputDir, logger)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("failed to start client", "error", err, "error_type", extract.ErrorType(err))
		return err
	}
	logger.Info("token loaded", "token_length", len(cfg.Token), "backend", backend)

	sess, err := newSession(backend, cfg.Token)
	if err != nil {
		return err
	}

	return extract.Execute(ctx, extract.Options{
		Config:   cfg,
		Session:  sess,
		Operator: console.NewOperator(os.Stdin, os.Stdout),
		Notes:    store,
		Out:      os.Stdout,
		Log:      logger,
	})
}

// bindFlags makes the command line flags readable through v.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, flag := range map[string]string{
		"config":   "config",
		"env_file": "env-file",
		"backend":  "backend",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return errors.Wrapf(err, "binding flag %q", flag)
		}
	}
	return nil
}

func newSession(backend, token string) (extract.Session, error) {
	switch backend {
	case "gateway":
		return discord.NewGateway(token)
	case "rest":
		return discord.NewREST(&http.Client{}, token)
	default:
		return nil, errors.Errorf("unknown session backend %q", backend)
	}
}
