package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"RegimeSentinel/internal/api"
	"RegimeSentinel/internal/model"
	"RegimeSentinel/internal/scheduler"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "sentinel",
		Short:         "Daily macro regime classification and allocation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", defaultPath, "path to the YAML config (env CONFIG_PATH)")

	withApp := func(fn func(ctx context.Context, a *app, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return fn(ctx, a, cmd)
		}
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, HTTP API and Telegram commands",
		RunE:  withApp(runServe),
	}
	serveCmd.Flags().Bool("run-on-start", os.Getenv("RUN_ON_START") == "true", "run the daily pipeline immediately")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Compute today's snapshot once, publish it and print it",
		RunE:  withApp(runOnce),
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Print merged snapshot history as JSON lines",
		RunE:  withApp(runHistory),
	}
	historyCmd.Flags().String("from", "", "first date, YYYY-MM-DD")
	historyCmd.Flags().String("to", "", "last date, YYYY-MM-DD")
	historyCmd.Flags().Int("limit", 0, "keep only the newest N rows")

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Print recent pipeline runs",
		RunE:  withApp(runRuns),
	}
	runsCmd.Flags().Int("limit", 20, "number of runs")

	root.AddCommand(serveCmd, runCmd, historyCmd, runsCmd)
	return root
}

func runServe(ctx context.Context, a *app, cmd *cobra.Command) error {
	sched := scheduler.NewScheduler(ctx, a.engine, a.publisher, a.location(), a.log.With().Str("component", "scheduler").Logger())
	if err := sched.Register(a.cfg.Schedule.DailyCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	srv := api.NewServer(api.NewHandler(a.engine, a.recorder), a.registry, a.cfg.HTTP.Addr, a.log.With().Str("component", "http").Logger())
	srv.Start()

	if a.telegram != nil {
		go a.telegram.StartPolling(ctx, sched.HandleCommand)
		a.log.Info().Msg("telegram polling started")
	}
	if runNow, _ := cmd.Flags().GetBool("run-on-start"); runNow {
		go sched.RunDaily(ctx)
	}

	a.log.Info().Msg("RegimeSentinel is running")
	<-ctx.Done()
	a.log.Info().Msg("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func runOnce(ctx context.Context, a *app, cmd *cobra.Command) error {
	sched := scheduler.NewScheduler(ctx, a.engine, a.publisher, a.location(), a.log)
	res, err := sched.RunDaily(ctx)
	if err != nil {
		return err
	}
	a.log.Info().Str("outcome", string(res.Outcome)).Msg("run complete")
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res.Snapshot)
}

func runHistory(ctx context.Context, a *app, cmd *cobra.Command) error {
	var from, to time.Time
	for name, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		v, _ := cmd.Flags().GetString(name)
		if v == "" {
			continue
		}
		d, err := model.ParseDate(v)
		if err != nil {
			return fmt.Errorf("--%s: %w", name, err)
		}
		*dst = d
	}
	rows, err := a.engine.History(ctx, from, to)
	if err != nil {
		return err
	}
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func runRuns(ctx context.Context, a *app, cmd *cobra.Command) error {
	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := a.recorder.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %-8s %-10s %s %s\n",
			r.StartedAt.Format(time.RFC3339), r.AsOf.Format(model.DateLayout), r.Outcome, r.Regime, r.StaleReason, r.Error)
	}
	return nil
}
