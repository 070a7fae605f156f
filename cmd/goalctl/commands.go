package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/saulo-duarte/chronos-goals/internal/auth"
	"github.com/saulo-duarte/chronos-goals/internal/config"
	"github.com/saulo-duarte/chronos-goals/internal/container"
	"github.com/saulo-duarte/chronos-goals/internal/goal"
)

var (
	withScheduler bool
	tokenRole     string
	tokenTTL      time.Duration

	rootCmd = &cobra.Command{
		Use:           "goalctl",
		Short:         "Run and operate the goals service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the goals HTTP API",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE:  runMigrate,
	}

	recalcCmd = &cobra.Command{
		Use:   "recalc [goal-id]",
		Short: "Recalculate one goal, or run a full scheduler pass when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRecalc,
	}

	schedulerCmd = &cobra.Command{
		Use:   "scheduler",
		Short: "Run the recalculation scheduler until interrupted",
		RunE:  runScheduler,
	}

	tokenCmd = &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a signed API token for a user",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}
)

func init() {
	serveCmd.Flags().BoolVar(&withScheduler, "with-scheduler", true, "also run the recalculation scheduler")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "user", "role claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(serveCmd, migrateCmd, recalcCmd, schedulerCmd, tokenCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := container.New(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Migrate(); err != nil {
		return err
	}

	if withScheduler {
		if err := c.Scheduler.Start(ctx); err != nil {
			return err
		}
		defer c.Scheduler.Stop()
	}

	srv := &http.Server{
		Addr:              c.Settings.HTTPAddr,
		Handler:           c.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		config.WithContext(ctx).WithField("addr", srv.Addr).Info("Goals API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	config.WithContext(shutdownCtx).Info("Shutting down goals API")
	return srv.Shutdown(shutdownCtx)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	c, err := container.New(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Migrate(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
	return nil
}

func runRecalc(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := container.New(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if len(args) == 1 {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid goal id %q: %w", args[0], err)
		}
		g, err := c.GoalContainer.Service.RecalculateProgress(ctx, id, goal.SystemUser)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s (%s%%) %s\n",
			g.ID, g.CurrentValue, g.TargetValue, g.ProgressPercent, g.Status)
		return nil
	}

	report, err := c.Scheduler.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d succeeded=%d failed=%d skipped=%d retried=%d\n",
		report.Scanned, report.Succeeded, report.Failed, report.Skipped, report.Retried)
	for _, id := range report.FailedGoals {
		fmt.Fprintf(cmd.OutOrStdout(), "failed %s\n", id)
	}
	return nil
}

func runScheduler(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	c, err := container.New(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Scheduler.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	c.Scheduler.Stop()
	config.WithContext(context.Background()).Info("Goal scheduler stopped")
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	if _, err := uuid.Parse(args[0]); err != nil {
		return fmt.Errorf("invalid user id %q: %w", args[0], err)
	}
	if _, err := config.Load(); err != nil {
		return err
	}
	auth.Init()

	token, err := auth.GenerateJWT(args[0], tokenRole, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
