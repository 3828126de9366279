package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CodeMonkeyCybersecurity/idorenum/internal/config"
	"github.com/CodeMonkeyCybersecurity/idorenum/internal/logger"
)

// Version is set at build time via -ldflags "-X github.com/CodeMonkeyCybersecurity/idorenum/cmd.Version=..."
var Version = "0.1.0"

var rootCmd = NewRootCommand(os.Stdin, os.Stdout)

// NewRootCommand builds the idorenum command. The operator gate reads from stdin and results go to stdout.
func NewRootCommand(stdin io.Reader, stdout io.Writer) *cobra.Command {
	v := viper.New()

	var (
		cfg *config.Config
		log *logger.Logger
	)

	cmd := &cobra.Command{
		Use:   "idorenum",
		Short: "Walk sequential object IDs to probe for insecure direct object references",
		Long: `idorenum - sequential ID enumeration for IDOR testing

Requests <endpoint>1, <endpoint>2, ... one at a time, pretty-prints each JSON
response and waits for Enter before requesting the next ID. The index is
appended to the endpoint verbatim, so include any trailing separator yourself.

Any failure (transport error, non-JSON body, closed stdin) stops the run.

EXAMPLES:
  idorenum -e https://api.example.com/orders/ -s id
  idorenum -e https://api.example.com/orders/ -s id -n session -i 4f2a...
  idorenum -e https://api.example.com/orders/ -s id --record-dsn postgres://...`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// cobra checks required flags after this hook; report them first
			if err := cmd.ValidateRequiredFlags(); err != nil {
				return err
			}

			var err error
			cfg, err = initConfig(v)
			if err != nil {
				return fmt.Errorf("failed to initialize config: %w", err)
			}

			log, err = logger.New(cfg.Logger)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnumeration(cmd.Context(), cfg, log, stdin, stdout)
		},
	}

	flags := cmd.Flags()

	// Target and session. Flag-only; not read from the environment.
	flags.StringP("endpoint", "e", "", "base URL; the numeric ID is appended directly")
	flags.StringP("selector", "s", "", "name of the identifier being enumerated (recorded, not sent)")
	flags.StringP("session-cookie-name", "n", "", "session cookie name (requires --session-id)")
	flags.StringP("session-id", "i", "", "session cookie value (requires --session-cookie-name)")
	_ = cmd.MarkFlagRequired("endpoint")
	_ = cmd.MarkFlagRequired("selector")
	v.BindPFlag("target.endpoint", flags.Lookup("endpoint"))
	v.BindPFlag("target.selector", flags.Lookup("selector"))
	v.BindPFlag("session.cookie_name", flags.Lookup("session-cookie-name"))
	v.BindPFlag("session.id", flags.Lookup("session-id"))

	// Logging configuration
	flags.String("log-level", "error", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (json, console)")
	v.BindPFlag("logger.level", flags.Lookup("log-level"))
	v.BindPFlag("logger.format", flags.Lookup("log-format"))
	v.BindEnv("logger.level", "IDORENUM_LOG_LEVEL")
	v.BindEnv("logger.format", "IDORENUM_LOG_FORMAT")

	// HTTP client
	flags.Duration("timeout", 0, "per-request timeout (0 disables)")
	v.BindPFlag("http.timeout", flags.Lookup("timeout"))
	v.BindEnv("http.timeout", "IDORENUM_TIMEOUT")

	// Pacing
	flags.Float64("rate-limit", 0, "maximum requests per second (0 disables)")
	flags.Int("rate-burst", 1, "rate limiter burst size")
	v.BindPFlag("rate_limit.requests_per_second", flags.Lookup("rate-limit"))
	v.BindPFlag("rate_limit.burst_size", flags.Lookup("rate-burst"))
	v.BindEnv("rate_limit.requests_per_second", "IDORENUM_RATE_LIMIT")

	// Probe recording
	flags.String("record-dsn", "", "PostgreSQL DSN; when set every probe is recorded")
	v.BindPFlag("recorder.dsn", flags.Lookup("record-dsn"))
	v.BindEnv("recorder.dsn", "IDORENUM_RECORD_DSN")

	// Telemetry
	flags.Bool("telemetry", false, "export traces over OTLP/HTTP")
	flags.String("telemetry-endpoint", "localhost:4318", "OTLP/HTTP collector host:port")
	v.BindPFlag("telemetry.enabled", flags.Lookup("telemetry"))
	v.BindPFlag("telemetry.endpoint", flags.Lookup("telemetry-endpoint"))
	v.BindEnv("telemetry.enabled", "IDORENUM_TELEMETRY")
	v.BindEnv("telemetry.endpoint", "IDORENUM_TELEMETRY_ENDPOINT")

	return cmd
}

// Execute runs the root command until it fails or SIGINT/SIGTERM arrives.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func initConfig(v *viper.Viper) (*config.Config, error) {
	// No config files - flags plus explicitly bound env vars only
	cfg := config.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
