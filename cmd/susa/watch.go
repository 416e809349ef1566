package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/susa-must-flow/internal/cli"
	"github.com/Veraticus/susa-must-flow/internal/config"
	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/notify"
	"github.com/Veraticus/susa-must-flow/internal/poller"
	"github.com/Veraticus/susa-must-flow/internal/push"
	"github.com/Veraticus/susa-must-flow/internal/tui"
)

func (a *app) newPushClient(opts ...push.Option) (*push.Client, error) {
	base := []push.Option{
		push.WithReconnectDelay(a.cfg.Hub.ReconnectInitial, a.cfg.Hub.ReconnectMax),
		push.WithLogger(slog.Default()),
	}
	return push.New(a.cfg.Hub.URL, a.sessions, append(base, opts...)...)
}

// follow feeds job events and periodic reconciliation into the coordinator
// until the returned stop function is called.
func (a *app) follow(ctx context.Context, pc *push.Client) (stop func() error) {
	ctx, cancel := context.WithCancel(ctx)
	pc.OnJobUpdate(func(ev model.JobUpdate) {
		a.coord.HandleJobUpdate(ctx, ev)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pc.Run(gctx) })
	g.Go(func() error { return poller.New(a.coord, a.cfg.PollEvery, slog.Default()).Run(gctx) })

	return func() error {
		cancel()
		return g.Wait()
	}
}

// waitForStatus follows project id until done accepts its listed status.
func waitForStatus(ctx context.Context, a *app, id int64, timeout time.Duration, done func(model.ProjectStatus) bool) (model.ProjectStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pc, err := a.newPushClient()
	if err != nil {
		return "", err
	}
	stop := a.follow(ctx, pc)
	defer func() { _ = stop() }()

	var last model.ProjectStatus
	check := func() (model.ProjectStatus, bool) {
		p, ok := model.FindProject(a.coord.Snapshot().Projects, id)
		if !ok {
			return "", false
		}
		if p.Status != last {
			last = p.Status
			slog.Info("Project status", "project_id", id, "status", p.Status)
		}
		return p.Status, done(p.Status)
	}

	if status, ok := check(); ok {
		return status, nil
	}
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return last, fmt.Errorf("gave up waiting for project %d after %s (status: %s)", id, timeout, last)
			}
			return last, ctx.Err()
		case <-a.coord.Changes():
			if status, ok := check(); ok {
				return status, nil
			}
		}
	}
}

func watchCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream job status events",
		Long: `Connect to the job hub and print every JobUpdate event until interrupted.
The connection is re-established automatically when it drops.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			errOut := cmd.ErrOrStderr()
			pc, err := a.newPushClient(push.WithStateListener(func(s push.State) {
				fmt.Fprintln(errOut, cli.SubtleStyle.Render("hub: "+string(s)))
			}))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			pc.OnJobUpdate(func(ev model.JobUpdate) {
				if asJSON {
					_ = enc.Encode(ev)
					return
				}
				fmt.Fprintln(out, formatJobUpdate(time.Now(), ev))
			})

			return pc.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per event")

	return cmd
}

func formatJobUpdate(at time.Time, ev model.JobUpdate) string {
	line := fmt.Sprintf("%s  job %-6d %s", at.Format("15:04:05"), ev.JobID, cli.FormatStatus(ev.Status))
	if ev.Error != "" {
		line += "  " + cli.ErrorStyle.Render(ev.Error)
	}
	return line
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "dashboard",
		Aliases: []string{"ui"},
		Short:   "Open the interactive dashboard",
		Long: `Open the full-screen dashboard: the project list, mapping forms, KPI
reports and live job status in one place. Logs go to logging.file while it runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := setupLogging(cfg.Logging.File); err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}

			sink := notify.NewSink(cfg.NotifyTTL)
			defer sink.Close()

			a, err := newAppWithConfig(ctx, cfg, sink)
			if err != nil {
				return err
			}
			defer a.Close()

			dl, err := a.newDownloader(nil)
			if err != nil {
				return err
			}
			pc, err := a.newPushClient()
			if err != nil {
				return err
			}
			stop := a.follow(ctx, pc)

			runErr := tui.Run(ctx, a.coord,
				tui.WithNotifications(sink),
				tui.WithDownloader(dl, cfg.DownloadDir),
				tui.WithConnection(pc.State),
				tui.WithLogger(slog.Default()),
			)
			return errors.Join(runErr, stop())
		},
	}
}
