package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/phasing/internal/dateparse"
	"github.com/aristath/phasing/internal/events"
	"github.com/aristath/phasing/internal/playback"
	"github.com/aristath/phasing/internal/report"
	"github.com/aristath/phasing/internal/schedule"
	"github.com/aristath/phasing/internal/session"
	"github.com/aristath/phasing/internal/tui"
)

// newRootCommand builds the command tree. stop restores default signal
// handling once shutdown has begun.
func newRootCommand(stop context.CancelFunc) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "phasing",
		Short: "Replay a construction schedule over a model, day by day",
		Long: "phasing builds tasks from the properties of model elements, " +
			"classifies them against a moving reference date and plays the " +
			"schedule back. Without a subcommand it starts the terminal viewer.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts, stop)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "project config file (default .phasing/config.json)")
	flags.StringVarP(&opts.sourcePath, "source", "s", "", "element property dump (.json or .csv)")
	flags.StringVar(&opts.store, "store", "", "snapshot backend: memory, sqlite or disk")
	flags.StringVar(&opts.storePath, "store-path", "", "snapshot database file or directory")

	addTUI(root, opts, stop)
	addBuild(root, opts)
	addExport(root, opts)
	addSimulate(root, opts)
	addSnapshot(root, opts)
	addProperties(root, opts)
	addInspect(root, opts)
	return root
}

func printer(cmd *cobra.Command, e *env) *report.Printer {
	return &report.Printer{Out: cmd.OutOrStdout(), Colorize: e.cfg.Display.Colorize}
}

func addTUI(root *cobra.Command, opts *globalOptions, stop context.CancelFunc) {
	root.AddCommand(&cobra.Command{
		Use:   "tui",
		Short: "Start the terminal viewer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts, stop)
		},
	})
}

func runTUI(cmd *cobra.Command, opts *globalOptions, stop context.CancelFunc) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx, opts, false)
	if err != nil {
		return err
	}
	defer e.Close()

	var properties []string
	if e.table != nil {
		properties = e.table.PropertyCatalog(0).Names
		if len(e.session.RequiredFieldsMissing()) == 0 {
			if _, err := e.session.Build(ctx); err != nil {
				log.Printf("WARNING: initial build failed: %v", err)
			}
		}
	}

	model := tui.New(e.session, e.bus, e.cfg, properties, e.globalPath, e.projectPath)

	// Start Bubble Tea program in a goroutine so we can handle shutdown
	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		// Restore default signal handling so a second Ctrl+C forces exit
		stop()
		log.Println("Shutdown signal received, cleaning up...")

		e.session.Pause()
		p.Quit()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		select {
		case err := <-errChan:
			if err != nil {
				log.Printf("TUI exit error: %v", err)
			}
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded, forcing exit")
		}
	}

	log.Println("Shutdown complete")
	return nil
}

// parseDay parses a command-line date in the configured timezone.
func parseDay(e *env, text string) (time.Time, error) {
	loc, err := e.cfg.Location()
	if err != nil {
		return time.Time{}, err
	}
	t, ok := dateparse.ParseIn(text, loc)
	if !ok {
		return time.Time{}, fmt.Errorf("unrecognized date %q", text)
	}
	return t, nil
}

// build runs a build and reports it, failing when no tasks were produced.
func build(cmd *cobra.Command, e *env, quick string, days int) error {
	start := time.Now()
	result, err := e.buildTasks(cmd.Context(), quick, days)
	if err != nil {
		return err
	}
	printer(cmd, e).Build(result, time.Since(start))
	return result.Err()
}

func addBuild(root *cobra.Command, opts *globalOptions) {
	var at, exportPath, quick string
	var days int

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build tasks from element properties and print their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := build(cmd, e, quick, days); err != nil {
				return err
			}

			if at != "" {
				ref, err := parseDay(e, at)
				if err != nil {
					return err
				}
				if err := e.session.Seek(ref); err != nil {
					return err
				}
			}

			p := printer(cmd, e)
			statuses, ref, ok := e.session.Statuses()
			p.Status(e.session.Tasks(), statuses, ref, ok)
			p.Summary(statuses)

			if exportPath != "" {
				return exportTo(e, exportPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "reference date for the status (default earliest start)")
	cmd.Flags().StringVarP(&exportPath, "export", "o", "", "also write the tasks as CSV to this file")
	cmd.Flags().StringVar(&quick, "quick", "", "build from a single date property instead of the mapping")
	cmd.Flags().IntVar(&days, "days", 0, "task length in days for --quick (default from config)")
	root.AddCommand(cmd)
}

func exportTo(e *env, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return e.session.Export(f)
}

func addExport(root *cobra.Command, opts *globalOptions) {
	var snapshotName string

	cmd := &cobra.Command{
		Use:   "export [FILE]",
		Short: "Write the tasks as CSV",
		Long:  "Builds the tasks, or loads a snapshot with --snapshot, and writes them as CSV to FILE or stdout.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts, snapshotName == "")
			if err != nil {
				return err
			}
			defer e.Close()

			if snapshotName != "" {
				err = e.session.LoadSnapshot(cmd.Context(), snapshotName)
			} else {
				err = buildQuietly(cmd.Context(), e)
			}
			if err != nil {
				return err
			}

			if len(args) == 1 {
				return exportTo(e, args[0])
			}
			return e.session.Export(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&snapshotName, "snapshot", "", "export a saved snapshot instead of building")
	root.AddCommand(cmd)
}

func buildQuietly(ctx context.Context, e *env) error {
	result, err := e.session.Build(ctx)
	if err != nil {
		return err
	}
	return result.Err()
}

// tickerEvery replaces the speed-derived tick cadence with a fixed one.
type tickerEvery struct {
	*time.Ticker
}

func (t tickerEvery) Chan() <-chan time.Time { return t.C }

func addSimulate(root *cobra.Command, opts *globalOptions) {
	var speed, frames int
	var from, to string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play the schedule back and print one line per day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var tweaks []func(*session.Config)
			if interval > 0 {
				tweaks = append(tweaks, func(c *session.Config) {
					c.NewTicker = func(time.Duration) playback.Ticker {
						return tickerEvery{time.NewTicker(interval)}
					}
				})
			}
			e, err := openEnv(cmd.Context(), opts, true, tweaks...)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := buildQuietly(cmd.Context(), e); err != nil {
				return err
			}
			if speed > 0 {
				if err := e.session.SetSpeed(speed); err != nil {
					return err
				}
			}
			if from != "" || to != "" {
				if err := applyRange(e, from, to); err != nil {
					return err
				}
			}
			return simulate(cmd.Context(), e, printer(cmd, e), frames)
		},
	}

	cmd.Flags().IntVar(&speed, "speed", 0, "playback speed: 1, 2, 3, 4, 8 or 16 (default from config)")
	cmd.Flags().StringVar(&from, "from", "", "start of the playback range")
	cmd.Flags().StringVar(&to, "to", "", "end of the playback range")
	cmd.Flags().IntVarP(&frames, "frames", "n", 0, "stop after this many days (default until the end)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "fixed delay between days, overriding the speed")
	root.AddCommand(cmd)
}

// applyRange restricts playback. A missing end defaults to the task bounds.
func applyRange(e *env, from, to string) error {
	tl, err := e.session.Timeline(1)
	if err != nil {
		return err
	}
	start, end := tl.Bounds.Min, tl.Bounds.Max
	if from != "" {
		if start, err = parseDay(e, from); err != nil {
			return err
		}
	}
	if to != "" {
		if end, err = parseDay(e, to); err != nil {
			return err
		}
	}
	return e.session.SetRange(start, end)
}

// simulate plays the clock and prints every transition until the clock
// stops by itself, frames days have passed, or ctx is cancelled.
func simulate(ctx context.Context, e *env, p *report.Printer, frames int) error {
	tasks := e.session.Tasks()
	sub := e.bus.Subscribe(256, events.TopicPlayback)
	defer e.bus.Unsubscribe(sub)

	show := func(frame playback.Frame) {
		var statuses map[string]schedule.TaskStatus
		if frame.HasRef {
			statuses = schedule.ClassifyAll(tasks, frame.Reference)
		}
		p.Frame(frame, statuses)
	}

	first := e.session.Frame()
	show(first)
	if err := e.session.Play(); err != nil {
		return err
	}

	seen := 0
	prev := first
	for {
		select {
		case <-ctx.Done():
			e.session.Pause()
			return nil
		case ev, ok := <-sub:
			if !ok {
				return errors.New("event bus closed")
			}
			pe, ok := ev.(events.PlaybackEvent)
			if !ok || pe.Frame.Seq <= prev.Seq {
				continue
			}
			frame := pe.Frame
			tick := isTick(prev, frame)
			prev = frame
			if frame.State == playback.Stopped {
				show(frame)
				return nil
			}
			if !tick {
				continue
			}
			show(frame)
			seen++
			if frames > 0 && seen >= frames {
				e.session.Pause()
				return nil
			}
		}
	}
}

// isTick reports whether next moved the reference of a running clock, as
// opposed to the transition into running or a speed change. Wrapping back to
// the start of a range counts.
func isTick(prev, next playback.Frame) bool {
	return next.State == playback.Running && !next.Reference.Equal(prev.Reference)
}

func addSnapshot(root *cobra.Command, opts *globalOptions) {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save, list and show named task sets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "save [NAME]",
		Short: "Build the tasks and save them (default name is the week of the earliest start)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := buildQuietly(cmd.Context(), e); err != nil {
				return err
			}
			name := session.WeekLabel(time.Now())
			if frame := e.session.Frame(); frame.HasRef {
				name = session.WeekLabel(frame.Reference)
			}
			if len(args) == 1 {
				name = args[0]
			}
			if err := e.session.SaveSnapshot(cmd.Context(), name); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Saved %q (%d tasks)\n", name, len(e.session.Tasks()))
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer e.Close()

			names, err := e.session.Snapshots(cmd.Context())
			if err != nil {
				return err
			}
			printer(cmd, e).Snapshots(names, e.store.ActiveName())
			return nil
		},
	})

	var at string
	show := &cobra.Command{
		Use:   "show NAME",
		Short: "Print the tasks of a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.session.LoadSnapshot(cmd.Context(), args[0]); err != nil {
				return err
			}
			if at != "" {
				ref, err := parseDay(e, at)
				if err != nil {
					return err
				}
				if err := e.session.Seek(ref); err != nil {
					return err
				}
			}
			p := printer(cmd, e)
			statuses, ref, ok := e.session.Statuses()
			p.Status(e.session.Tasks(), statuses, ref, ok)
			p.Summary(statuses)
			return nil
		},
	}
	show.Flags().StringVar(&at, "at", "", "reference date for the status")
	cmd.AddCommand(show)

	root.AddCommand(cmd)
}

func addProperties(root *cobra.Command, opts *globalOptions) {
	var sample int

	cmd := &cobra.Command{
		Use:   "properties",
		Short: "List the element properties available for mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			printer(cmd, e).Properties(e.table.PropertyCatalog(sample))
			return nil
		},
	}
	cmd.Flags().IntVar(&sample, "sample", 0, "only scan the first N elements (default all)")
	root.AddCommand(cmd)
}

func addInspect(root *cobra.Command, opts *globalOptions) {
	root.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "Check task dependencies for unknown predecessors and cycles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := buildQuietly(cmd.Context(), e); err != nil {
				return err
			}
			printer(cmd, e).Dependencies(e.session.DependencyReport())
			return nil
		},
	})
}
