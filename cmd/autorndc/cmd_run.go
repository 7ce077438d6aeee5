package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"autorndc/cmd/autorndc/ui"
	"autorndc/internal/batch"
	"autorndc/internal/browser"
	"autorndc/internal/checkpoint"
	"autorndc/internal/control"
	"autorndc/internal/credentials"
	"autorndc/internal/engine"
	"autorndc/internal/eventlog"
	"autorndc/internal/fields"
	"autorndc/internal/history"
	"autorndc/internal/input"
	"autorndc/internal/logging"
	"autorndc/internal/portal"
	"autorndc/internal/recovery"
	"autorndc/internal/update"
)

var (
	runFile     string
	runColumn   int
	runTUI      bool
	runHeadless bool
	runEngine   string
)

// runCmd processes every code in a file
var runCmd = &cobra.Command{
	Use:       "run remesas|manifiestos",
	Short:     "Cumplir los documentos listados en un archivo",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"remesas", "manifiestos"},
	RunE:      runBatch,
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "Tab-separated export with the document codes (required)")
	runCmd.Flags().IntVar(&runColumn, "column", 0, "0-based code column (default 9 for remesas, 8 for manifiestos)")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the terminal UI")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run the browser without a window")
	runCmd.Flags().StringVar(&runEngine, "engine", "", "Browser engine: rod or playwright")
	runCmd.MarkFlagRequired("file")
}

// applyRunFlags folds command-line overrides into cfg and returns the input
// column to read.
func applyRunFlags(cmd *cobra.Command, kind fields.Kind) int {
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = runHeadless
	}
	if runEngine != "" {
		cfg.Browser.Engine = runEngine
	}
	if cmd.Flags().Changed("column") {
		return runColumn
	}
	if kind == fields.KindManifest {
		return cfg.Manifiestos.Column
	}
	return cfg.Remesas.Column
}

func runBatch(cmd *cobra.Command, args []string) error {
	kind, err := fields.ParseKind(args[0])
	if err != nil {
		return err
	}
	column := applyRunFlags(cmd, kind)
	if err := cfg.Validate(); err != nil {
		return err
	}

	codes, err := input.ReadFile(runFile, column)
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		return fmt.Errorf("%s: no codes in column %d", runFile, column)
	}
	creds, err := credentials.Resolve()
	if err != nil {
		return err
	}

	ctl := batch.NewControl()
	ctx, hard, release := interrupts(ctl)
	defer release()

	reg, err := logging.NewRegistry(logger, cfg.LoggingOptions())
	if err != nil {
		return err
	}
	defer reg.Close()
	boot := reg.Get(logging.CategoryBoot)
	boot.Info("%d %s from %s, credentials %s", len(codes), kind.Slug(), runFile, creds)

	if cfg.Update.CheckOnStart {
		checkForUpdate(ctx, boot)
	}

	events, files, err := openEvents(kind, time.Now())
	if err != nil {
		return err
	}
	defer events.Close()

	store, err := checkpoint.Open(checkpoint.Backend(cfg.Checkpoint.Backend), cfg.Paths.CheckpointDir, kind.Slug())
	if err != nil {
		return err
	}
	defer store.Close()

	var journal batch.Journal
	if cfg.History.Enabled {
		h, err := history.NewStore(cfg.History.Path)
		if err != nil {
			reg.Get(logging.CategoryStore).Warn("history disabled: %v", err)
		} else {
			defer h.Close()
			journal = h
		}
	}

	browserLog := reg.Get(logging.CategoryBrowser)
	drv, err := browser.Open(ctx, cfg.BrowserSettings(), browserLog)
	if err != nil {
		return err
	}
	session := portal.NewSession(drv, cfg.Portal, cfg.PortalTimeouts(), browserLog)
	defer func() {
		if err := session.Driver.Close(); err != nil {
			browserLog.Warn("closing browser: %v", err)
		}
	}()

	if err := session.Login(ctx, creds.User, creds.Password); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	eng := newEngine(kind, session, reg, events, ctl)

	sup := recovery.NewSupervisor(recovery.NewHTTPProber(cfg.ProbeURL()), reg.Get(logging.CategoryRecovery))
	sup.Interval = cfg.RecoveryInterval()
	sup.MaxAttempts = cfg.Recovery.MaxAttempts

	runner := &batch.Runner{
		Processor:        eng,
		Checkpoint:       store,
		Control:          ctl,
		Recoverer:        sup,
		Reconnect:        reconnect(session, creds, browserLog),
		DocumentAttempts: cfg.Recovery.DocumentAttempts,
		Log:              reg.Get(logging.CategoryBatch),
		Events:           events,
		Journal:          journal,
		Abort:            hard,
	}

	title := fmt.Sprintf("autorndc · %s · %s", kind.Slug(), runFile)
	rep, runErr := execute(ctx, hard, runner, ctl, codes, title, reg)

	fmt.Println(renderMarkdown(reportMarkdown(rep, events.Stats(), kind, files)))
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func newEngine(kind fields.Kind, session *portal.Session, reg *logging.Registry, events *eventlog.Recorder, gate engine.Gate) *engine.Engine {
	env := engine.Env{
		Session: session,
		Log:     reg.Get(logging.CategoryEngine),
		Events:  events,
		Gate:    gate,
	}
	if kind == fields.KindManifest {
		form := engine.NewManifestForm(env, cfg.CorrectionOptions())
		return engine.New(env, form, cfg.EngineOptions(cfg.Manifiestos.MaxRetries))
	}
	form := engine.NewRemesaForm(env, cfg.CorrectionOptions(), cfg.Remesas.FormLoadAttempts)
	return engine.New(env, form, cfg.EngineOptions(cfg.Remesas.MaxRetries))
}

// reconnect replaces the session's browser and logs in again.
func reconnect(session *portal.Session, creds credentials.Credentials, log *logging.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := session.Driver.Close(); err != nil {
			log.Debug("closing lost browser: %v", err)
		}
		drv, err := browser.Open(ctx, cfg.BrowserSettings(), log)
		if err != nil {
			return err
		}
		session.Driver = drv
		return session.Login(ctx, creds.User, creds.Password)
	}
}

func openEvents(kind fields.Kind, now time.Time) (*eventlog.Recorder, []string, error) {
	csvPath, jsonPath, snapPath := eventlog.Paths(cfg.Paths.LogDir, kind.Slug(), now)
	csvSink, err := eventlog.OpenCSV(csvPath)
	if err != nil {
		return nil, nil, err
	}
	rec := eventlog.NewRecorder(kind, csvSink, eventlog.NewJSON(jsonPath)).
		WithSnapshots(eventlog.NewFieldsCSV(snapPath))
	return rec, []string{csvPath, jsonPath, snapPath}, nil
}

// interrupts maps the first SIGINT or SIGTERM to a cancel at the next
// document boundary and the second to an abort of the document in flight.
// run ends on the first signal, hard on the second.
func interrupts(ctl *batch.Control) (run, hard context.Context, release func()) {
	hard, abort := context.WithCancel(context.Background())
	run, cancel := context.WithCancel(hard)

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		for first := true; ; first = false {
			select {
			case <-sigs:
			case <-done:
				return
			}
			if !first {
				abort()
				return
			}
			fmt.Fprintln(os.Stderr, "Cancelando al terminar el documento actual. Interrumpa de nuevo para abortar.")
			ctl.Cancel()
			cancel()
		}
	}()

	return run, hard, func() {
		signal.Stop(sigs)
		close(done)
		cancel()
		abort()
	}
}

// execute runs the batch alongside the control-file watcher and, with
// --tui, the terminal UI. ctx stops the batch at the next document
// boundary; hard also tears down the UI.
func execute(ctx, hard context.Context, runner *batch.Runner, ctl *batch.Control, codes []string, title string, reg *logging.Registry) (batch.Report, error) {
	g, gctx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gctx)
	defer stopWatch()

	if cfg.Control.File != "" {
		log := reg.Get(logging.CategoryBatch)
		w := control.NewWatcher(cfg.Control.File, ctl, log)
		g.Go(func() error {
			if err := w.Run(watchCtx); err != nil {
				log.Warn("control file %s no longer watched: %v", cfg.Control.File, err)
			}
			return nil
		})
	}

	updates := make(chan tea.Msg, 256)
	send := func(msg tea.Msg) {
		select {
		case updates <- msg:
		case <-gctx.Done():
		}
	}

	if runTUI {
		runner.OnStatus = func(s batch.Status) { send(ui.StatusMsg(s)) }
		ctl.OnHold = func(reason string) { send(ui.HoldMsg{Reason: reason}) }
		model := ui.NewRunModel(title, ctl, updates, ui.DefaultStyles())
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(hard))
		g.Go(func() error {
			_, err := p.Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				ctl.Cancel()
				return fmt.Errorf("terminal UI: %w", err)
			}
			return nil
		})
	} else {
		runner.OnStatus = func(s batch.Status) {
			fmt.Printf("%s %s\n", s.Time.Format("15:04:05"), s.Message)
		}
		ctl.OnHold = func(reason string) {
			fmt.Printf("EN PAUSA: %s\n", reason)
			if cfg.Control.File != "" {
				fmt.Printf("Escriba \"reanudar\" en %s para continuar.\n", cfg.Control.File)
			}
		}
	}

	var rep batch.Report
	var runErr error
	g.Go(func() error {
		defer stopWatch()
		rep, runErr = runner.Run(gctx, codes)
		send(ui.DoneMsg{Report: rep, Err: runErr})
		return nil
	})

	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	return rep, runErr
}

func checkForUpdate(ctx context.Context, log *logging.Logger) {
	res, err := update.NewChecker(cfg.Update.URL).Check(ctx, version)
	if err != nil {
		log.Debug("update check: %v", err)
		return
	}
	if res.Available {
		fmt.Fprintf(os.Stderr, "Nueva versión disponible: %s (actual %s)\n%s\n", res.Latest, res.Current, res.URL)
	}
}
