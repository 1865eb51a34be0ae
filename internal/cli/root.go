package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Options are the process-wide flags; each can also be set as QUIZLIVE_<FLAG>.
type Options struct {
	Port       string
	ConfigPath string
	Verbose    bool
	Profile    bool
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd(&Options{}).Execute()
}

func newRootCmd(opts *Options) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIZLIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "quiz-live",
		Short: "Live multi-player quiz sessions over HTTP and WebSocket",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(opts.Verbose)
		},
		SilenceUsage: true,
	}

	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVar(&opts.Port, "port", "", "port to listen on, overrides server.port (env: QUIZLIVE_PORT)")
	fs.StringVar(&opts.ConfigPath, "config", "config/config.yaml", "path to YAML config (env: QUIZLIVE_CONFIG)")
	fs.BoolVarP(&opts.Verbose, "verbose", "v", false, "log at debug level (env: QUIZLIVE_VERBOSE)")
	fs.BoolVar(&opts.Profile, "profile", false, "register pprof handlers under /debug/pprof (env: QUIZLIVE_PROFILE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(NewStartCmd(opts))
	cmd.AddCommand(NewMigrateCmd(opts))
	return cmd
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
