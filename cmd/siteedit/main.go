// Command siteedit drives a headless editing session against the API: it
// logs in, loads the couple's site, applies a YAML edit script through the
// inline canvas and the settings form, saves and optionally renders the page.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"wedsite/internal/config"
	"wedsite/internal/metrics"
	"wedsite/internal/notice"
	"wedsite/internal/persist"
	"wedsite/internal/render"
	"wedsite/internal/session"
	"wedsite/internal/studio"
	"wedsite/internal/upload"
)

type options struct {
	apiURL   string
	username string
	password string
	themeDir string
	verbose  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "siteedit",
		Short:        "Edit a wedding site from the command line",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.apiURL, "api", "", "API base URL (default EDITOR_API_BASE_URL)")
	root.PersistentFlags().StringVarP(&opts.username, "username", "u", os.Getenv("SITEEDIT_USERNAME"), "account username")
	root.PersistentFlags().StringVar(&opts.password, "password", os.Getenv("SITEEDIT_PASSWORD"), "account password")
	root.PersistentFlags().StringVar(&opts.themeDir, "themes", "", "directory of extra theme manifests")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	var runOut, renderOut string
	run := &cobra.Command{
		Use:   "run SCRIPT",
		Short: "Apply a YAML edit script and save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := LoadScript(args[0])
			if err != nil {
				return err
			}
			if runOut != "" {
				script.Output = runOut
			}
			return runScript(cmd.Context(), opts, script, filepath.Dir(args[0]))
		},
	}
	run.Flags().StringVarP(&runOut, "out", "o", "", "write the rendered page to this file (overrides the script)")

	show := &cobra.Command{
		Use:   "render",
		Short: "Render the saved site to a file or stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScript(cmd.Context(), opts, &Script{Output: renderOut}, ".")
		},
	}
	show.Flags().StringVarP(&renderOut, "out", "o", "-", "output file, - for stdout")

	root.AddCommand(run, show)
	return root
}

func runScript(parent context.Context, opts *options, script *Script, dir string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.LoadEditor()
	if err != nil {
		return err
	}
	apiURL := opts.apiURL
	if apiURL == "" {
		apiURL = cfg.APIBaseURL
	}
	if opts.username == "" || opts.password == "" {
		return errors.New("username and password are required")
	}

	src, err := session.NewHTTPSource(apiURL, logger)
	if err != nil {
		return err
	}
	if err := src.Login(ctx, opts.username, opts.password); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	writer := persist.NewHTTPWriter(apiURL, src.Client())
	token, err := src.GetSession(ctx)
	if err != nil {
		return err
	}
	rec, err := writer.Load(ctx, token)
	if err != nil {
		return fmt.Errorf("load site: %w", err)
	}

	themes, err := render.NewThemeStyles(opts.themeDir)
	if err != nil {
		return fmt.Errorf("load themes: %w", err)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	redirect := session.RedirectFunc(func(reason string) {
		cancel(fmt.Errorf("login required: %s", reason))
	})
	sess := studio.Open(rec, studio.Deps{
		Writer:     writer,
		Sessions:   src,
		Uploader:   upload.NewHTTPUploader(apiURL, src.Client(), src, upload.WithRedirector(redirect)),
		Themes:     themes,
		Notifier:   notice.Log{Logger: logger},
		Redirector: redirect,
		Metrics:    metrics.NewSaveMetrics(prometheus.NewRegistry()),
		Logger:     logger,
		Delay:      cfg.AutosaveDelay,
		Timeout:    cfg.SaveTimeout,
	})
	defer sess.Close()

	if err := script.Apply(ctx, sess, dir); err != nil {
		return err
	}

	dirty := sess.State().HasUnsavedChanges
	if script.Submit {
		err = sess.Form.Submit(ctx)
	} else {
		err = sess.Client.Flush(ctx)
	}
	if err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
		return fmt.Errorf("save: %w", err)
	}
	if dirty || script.Submit {
		logger.Info("site saved", slog.Any("last_saved_at", sess.State().LastSavedAt))
	} else {
		logger.Info("no changes to save")
	}

	if script.Output == "" {
		return nil
	}
	return writePage(ctx, sess, themes, logger, script.Output)
}

func writePage(ctx context.Context, sess *studio.Session, themes *render.ThemeStyles, logger *slog.Logger, out string) error {
	rec, _ := sess.Store.Snapshot()
	var page bytes.Buffer
	if _, err := render.New(logger).Site(ctx, &page, rec, themes, render.Options{}); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if out == "-" {
		_, err := os.Stdout.Write(page.Bytes())
		return err
	}
	return os.WriteFile(out, page.Bytes(), 0o644)
}
