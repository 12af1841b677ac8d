package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stepviz/stepviz/pkg/compiler"
	"github.com/stepviz/stepviz/pkg/config"
	"github.com/stepviz/stepviz/pkg/server"
	"github.com/stepviz/stepviz/pkg/session"
	"github.com/stepviz/stepviz/pkg/synth"
	"github.com/stepviz/stepviz/pkg/tracer"
	"github.com/stepviz/stepviz/pkg/version"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "stepviz",
		Short: "Step-by-step C/C++ execution tracer",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	root.AddCommand(serveCmd(), runCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func loadConfig() config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	return cfg
}

func buildOrchestrator(cfg config.Config) *session.Orchestrator {
	comp, err := compiler.New(compiler.Options{
		CC:        cfg.Compiler.CC,
		CXX:       cfg.Compiler.CXX,
		Timeout:   cfg.Compiler.Timeout.Duration,
		CacheDir:  cfg.Compiler.CacheDir,
		CacheSize: cfg.Compiler.CacheSize,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("initializing compiler")
	}
	return session.NewOrchestrator(comp, tracer.NewHookTracer(), session.Options{
		WorkRoot:     cfg.Execution.WorkRoot,
		ExecTimeout:  cfg.Execution.Timeout.Duration,
		InputTimeout: cfg.Execution.InputTimeout.Duration,
		Workers:      cfg.Execution.Workers,
		MaxSteps:     cfg.Trace.MaxSteps,
		ChunkSize:    cfg.Trace.ChunkSize,
		ArchiveDir:   cfg.Trace.ArchiveDir,
		Debug:        cfg.Debug,
	})
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the trace pipeline over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			srv := server.New(buildOrchestrator(cfg))
			log.Info().Str("addr", cfg.Listen).Msg("listening")
			return http.ListenAndServe(cfg.Listen, srv.Mux())
		},
	}
}

func runCmd() *cobra.Command {
	var lang string
	var outPath string
	cmd := &cobra.Command{
		Use:   "run <source-file>",
		Short: "Trace one program and print its steps as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			code, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if lang == "" {
				lang = langFromExt(args[0])
			}

			cl := &cliListener{done: make(chan error, 1), stdin: bufio.NewReader(os.Stdin)}
			buildOrchestrator(cfg).Submit(cmd.Context(), session.Submission{
				Code:     string(code),
				Language: lang,
			}, cl)
			if err := <-cl.done; err != nil {
				return err
			}

			out := os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(cl.steps)
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "source language: c or cpp (default from extension)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write steps to file instead of stdout")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.GetVersionInfo())
		},
	}
}

func langFromExt(path string) string {
	if filepath.Ext(path) == ".c" {
		return "c"
	}
	return "cpp"
}

// cliListener collects a one-shot run's steps and answers input requests
// from the terminal.
type cliListener struct {
	steps []synth.Step
	stdin *bufio.Reader
	done  chan error
}

func (c *cliListener) Progress(stage string, percent int, message string) {
	log.Info().Str("stage", stage).Int("percent", percent).Msg(message)
}

func (c *cliListener) Chunk(chunk synth.Chunk) {
	c.steps = append(c.steps, chunk.Steps...)
}

func (c *cliListener) Completed(totalSteps int) {
	c.done <- nil
}

func (c *cliListener) Errored(message, details string) {
	if details != "" {
		c.done <- fmt.Errorf("%s: %s", message, details)
		return
	}
	c.done <- fmt.Errorf("%s", message)
}

func (c *cliListener) RequestInput(req tracer.InputRequest) (string, error) {
	fmt.Fprintf(os.Stderr, "input for %s (line %d): ", req.Name, req.Line)
	line, err := c.stdin.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
