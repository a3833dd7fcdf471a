package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/LiquorXR/gemini-synapse/internal/adminapi"
	"github.com/LiquorXR/gemini-synapse/internal/callback"
	"github.com/LiquorXR/gemini-synapse/internal/dashboard"
	"github.com/LiquorXR/gemini-synapse/internal/publisher"
	"github.com/LiquorXR/gemini-synapse/internal/tui"
	"github.com/LiquorXR/gemini-synapse/internal/validation"
)

var (
	validateList  string
	validateIDs   string
	validateYes   bool
	validatePlain bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run a batch validation session with live progress",
	Long: `Validate keys against the upstream service and follow progress live.

Use --list to validate every key currently in the valid or invalid list, or
--ids to validate specific keys. The key pool is refreshed when the session
completes. Press q to cancel a running session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (validateList == "") == (validateIDs == "") {
			return fmt.Errorf("exactly one of --list or --ids is required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := mustAuth(ctx)
		if err != nil {
			return err
		}
		app, err := newValidationApp(client, tui.NewNotifier(os.Stderr), false)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.store.Refresh(ctx); err != nil {
			return err
		}

		interactive := stdoutIsTerminal() && stdinIsTerminal() && !validatePlain
		var confirmer validation.Confirmer = validation.Preconfirmed(validateYes)
		if !validateYes && interactive {
			confirmer = tui.Prompt{}
		}
		sup := app.supervisor.WithConfirmer(confirmer)

		var start tui.StartFunc
		if validateIDs != "" {
			ids, err := validation.ParseKeyIDs(validateIDs)
			if err != nil {
				return err
			}
			if err := app.store.SetSelection(ids); err != nil {
				return err
			}
			start = sup.ValidateSelected
		} else {
			list, err := validation.ParseList(validateList)
			if err != nil {
				return err
			}
			start = func(ctx context.Context) (validation.Snapshot, error) {
				return sup.ValidateAllInList(ctx, list)
			}
		}

		var last validation.Snapshot
		if interactive {
			last, err = tui.RunProgress(ctx, app.machine, start, nil, nil)
		} else {
			last, err = runPlain(ctx, app.machine, start)
		}
		if errors.Is(err, validation.ErrDeclined) {
			if !validateYes && !interactive {
				return fmt.Errorf("confirmation required: pass --yes when not on a terminal")
			}
			fmt.Println("Cancelled.")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Println(tui.Summary(last))
		if data, _, err := app.store.Data(); err == nil {
			ks := data.Stats.KeyStats
			fmt.Printf("Pool: %s, %s\n",
				color.GreenString("%d valid", ks.ValidKeys),
				color.RedString("%d invalid", ks.InvalidKeys))
		}
		if last.Phase != validation.PhaseDone {
			return fmt.Errorf("validation %s", last.Phase)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateList, "list", "", "validate every key in this list: valid or invalid")
	validateCmd.Flags().StringVar(&validateIDs, "ids", "", "comma separated key ids to validate")
	validateCmd.Flags().BoolVarP(&validateYes, "yes", "y", false, "do not ask for confirmation")
	validateCmd.Flags().BoolVar(&validatePlain, "plain", false, "print one line per update instead of the progress display")
}

// validationApp is the set of components behind one validation machine.
type validationApp struct {
	store      *dashboard.Store
	machine    *validation.Machine
	supervisor *validation.Supervisor
	publisher  *publisher.Publisher
	reporter   *callback.Reporter
}

// newValidationApp wires a machine to the admin API. Successful sessions stay
// visible for validation.done_dwell before returning to idle. With
// requireEvents a broker that cannot be reached is an error instead of a warning.
func newValidationApp(client *adminapi.Client, notifier validation.Notifier, requireEvents bool) (*validationApp, error) {
	store := dashboard.New(client, logger)
	transport := validation.NewSSETransport(client, cfg.Validation.MaxQueryBytes, logger)
	machine := validation.NewMachine(transport, validation.MachineOptions{
		Reconciler:  validation.Trigger{Refresher: store, Selection: store},
		IdleTimeout: cfg.Validation.IdleTimeout,
		Logger:      logger,
	})
	machine.AddListener(validation.NewDweller(machine, cfg.Validation.DoneDwell))

	app := &validationApp{store: store, machine: machine}

	if cfg.Events.Enabled {
		pub, err := publisher.New(cfg.Events.URL, cfg.Events.Exchange, logger)
		if err != nil {
			if requireEvents {
				return nil, fmt.Errorf("failed to initialize publisher: %w", err)
			}
			logger.Warnw("Lifecycle events disabled", "error", err)
		} else {
			app.publisher = pub
			machine.AddListener(pub)
		}
	}

	if cfg.Callback.Enabled() {
		app.reporter = callback.NewReporter(cfg.Callback, logger)
		machine.AddListener(app.reporter)
	}

	app.supervisor = validation.NewSupervisor(machine, store, store, nil, notifier, logger)
	return app, nil
}

// Close flushes pending callbacks and releases the publisher connection.
func (a *validationApp) Close() {
	if a.reporter != nil {
		a.reporter.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logger.Warnw("Failed to close publisher", "error", err)
		}
	}
}

// runPlain follows a session with line output until it returns to idle.
func runPlain(ctx context.Context, m *validation.Machine, start tui.StartFunc) (validation.Snapshot, error) {
	idle := make(chan validation.Snapshot, 1)
	var last validation.Snapshot
	m.AddListener(&tui.LineListener{Out: os.Stdout})
	m.AddListener(validation.ListenerFunc(func(s validation.Snapshot) {
		if s.Phase != validation.PhaseIdle {
			last = s
			return
		}
		if last.ID != "" {
			select {
			case idle <- last:
			default:
			}
		}
	}))

	if _, err := start(ctx); err != nil {
		return validation.Snapshot{}, err
	}

	select {
	case s := <-idle:
		return s, nil
	case <-ctx.Done():
		m.Abort()
		return <-idle, nil
	}
}

// confirmYesNo asks a yes/no question on the terminal. Without a terminal
// the answer is no.
func confirmYesNo(question string) bool {
	if !stdinIsTerminal() {
		return false
	}
	ok, err := tui.Prompt{}.Confirm(context.Background(), validation.Confirmation{Title: question})
	return err == nil && ok
}
