// Command encode-llama answers questions about the GENCODE annotation with a language model
// that calls a small set of query functions.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	llama "github.com/gamazeps/encode-llama"
	_ "github.com/gamazeps/encode-llama/backend/together"
	_ "github.com/gamazeps/encode-llama/backend/vllm"
	"github.com/gamazeps/encode-llama/dispatch"
	"github.com/gamazeps/encode-llama/importer"
	"github.com/gamazeps/encode-llama/postgres"
	"github.com/gamazeps/encode-llama/query"
	"github.com/gamazeps/encode-llama/transcript"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// separator precedes the transcript printed at the end of a session.
const separator = "--------------------------------"

var separatorStyle = lipgloss.NewStyle().Faint(true)

// loadTokenCounter fetches the BPE ranks on first use; tests swap it out.
var loadTokenCounter = func() (dispatch.TokenCounter, error) {
	return dispatch.NewTiktokenCounter(dispatch.DefaultEncoding)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}

	var fatal *dispatch.FatalError
	if errors.As(err, &fatal) {
		fmt.Fprint(os.Stdout, fatal.Conversation)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	llama.SetDefaults(v)
	var configFile, logLevel string

	root := &cobra.Command{
		Use:           "encode-llama",
		Short:         "Ask questions about the GENCODE annotation in plain English",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := llama.LoadConfig(v, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML config file")
	pf.StringVar(&logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	pf.String("data-dir", "data", "directory holding the annotation cache")
	pf.Int("gencode-version", 40, "GENCODE release to load")

	f := root.Flags()
	f.String("backend", "vllm", "completion backend (vllm or together)")
	f.Int("max-tokens", 512, "maximum tokens per completion")
	f.String("query", "", "question to answer; starts an interactive session when empty")
	f.String("debug", "high", "high echoes the raw model exchange, low only shows answers")
	f.String("dataset-dir", "dataset", "directory receiving session transcripts")
	f.String("output-csv", "output.csv", "file written by tabular displays")
	f.String("database-url", "", "PostgreSQL URL for archiving sessions and requests")
	f.String("together-token-file", "tokens/together", "file holding the Together API key")
	f.String("vllm-url", "", "vLLM completions endpoint")

	bindFlags(v, pf, f)
	root.AddCommand(newImportCmd(v, &configFile))
	return root
}

// bindFlags maps dashed flag names to the underscored config keys.
func bindFlags(v *viper.Viper, sets ...*pflag.FlagSet) {
	for _, set := range sets {
		set.VisitAll(func(fl *pflag.Flag) {
			if fl.Name == "config" || fl.Name == "log-level" {
				return
			}
			if err := v.BindPFlag(strings.ReplaceAll(fl.Name, "-", "_"), fl); err != nil {
				log.Warn().Err(err).Str("flag", fl.Name).Msg("encode-llama: bind flag")
			}
		})
	}
}

func setupLogging(level string) error {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("encode-llama: log level: %w", err)
	}
	zerolog.SetGlobalLevel(l)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	return nil
}

func run(ctx context.Context, cfg llama.AppConfig, in io.Reader, out io.Writer) error {
	sinks := []llama.TranscriptSink{transcript.NewFileSink(cfg.DatasetDir)}
	opts := cfg.BackendOptions()
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("encode-llama: connect database: %w", err)
		}
		defer pool.Close()

		archive := postgres.New(pool)
		if err := archive.CreateSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, archive)
		opts.Logger = archive
	}

	backend, err := llama.NewBackend(cfg.Backend, opts)
	if err != nil {
		return err
	}

	store, err := importer.Load(ctx, importer.Options{Version: cfg.GencodeVersion, DataDir: cfg.DataDir})
	if err != nil {
		return err
	}
	engine, err := query.NewEngine(store, &query.CSVSink{Path: cfg.OutputCSV})
	if err != nil {
		return err
	}

	tokens, err := loadTokenCounter()
	if err != nil {
		log.Warn().Err(err).Msg("encode-llama: token accounting disabled")
		tokens = nil
	}

	prompter := dispatch.NewLinePrompter(in, out)
	question := cfg.Query
	if question == "" {
		question, err = prompter.ReadTurn(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}

	loop := dispatch.New(backend, engine, dispatch.Config{
		Mode:          cfg.Mode(),
		MaxTokens:     cfg.MaxTokens,
		Verbose:       cfg.Verbose(),
		MaxRounds:     cfg.MaxRounds,
		ContextWindow: cfg.ContextWindow,
		Out:           out,
		Input:         prompter,
		Sinks:         sinks,
		Tokens:        tokens,
	})

	runErr := loop.Run(ctx, question)
	session := loop.Session()
	log.Info().Str("session_id", session.ID).Str("backend", session.Backend).Str("mode", string(session.Mode)).
		Int("turns", len(loop.Conversation().Turns())).Err(runErr).Msg("session ended")
	var fatal *dispatch.FatalError
	if errors.As(runErr, &fatal) {
		return runErr
	}

	fmt.Fprintln(out, separatorStyle.Render(separator))
	fmt.Fprint(out, loop.Conversation().String())
	return runErr
}

func newImportCmd(v *viper.Viper, configFile *string) *cobra.Command {
	var refresh bool
	var url string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Download and cache a GENCODE release",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := llama.LoadConfig(v, *configFile)
			if err != nil {
				return err
			}
			store, err := importer.Load(cmd.Context(), importer.Options{
				Version: cfg.GencodeVersion,
				DataDir: cfg.DataDir,
				URL:     url,
				Refresh: refresh,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "GENCODE v%s: %d records cached in %s\n",
				store.Version(), store.Len(), importer.CachePath(cfg.DataDir, cfg.GencodeVersion))
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "download even when the release is cached")
	cmd.Flags().StringVar(&url, "url", "", "override the download URL")
	return cmd
}
