package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"f0oster/adsweep/activedirectory"
	"f0oster/adsweep/archive"
	"f0oster/adsweep/config"
	"f0oster/adsweep/lifecycle"
	"f0oster/adsweep/mailer"
	"f0oster/adsweep/schedule"
	"f0oster/adsweep/sweep"
	"f0oster/adsweep/web"
)

// app carries the state shared between subcommands: flag values, the
// resolved configuration and the logger.
type app struct {
	envPath    string
	policyPath string
	debug      bool

	cfg    *config.Config
	logger *zap.Logger
}

func (a *app) initLogger() (err error) {
	if a.debug {
		a.logger, err = zap.NewDevelopment()
	} else {
		a.logger, err = zap.NewProduction()
	}
	return err
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.envPath, a.policyPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) connectDirectory() (*activedirectory.Directory, error) {
	dir := activedirectory.New(a.cfg.LDAP.URL, a.cfg.LDAP.BaseDN, a.cfg.LDAP.PageSize, a.logger)
	if err := dir.Connect(a.cfg.LDAP.Username, a.cfg.LDAP.Password); err != nil {
		return nil, err
	}
	return dir, nil
}

// openArchive connects the archive store, or returns nil when no DSN is
// configured. Sweeping without an archive is allowed; user removals are then
// refused at apply time.
func (a *app) openArchive(ctx context.Context) (*archive.Store, error) {
	if a.cfg.Archive.DSN == "" {
		return nil, nil
	}
	return archive.Connect(ctx, a.cfg.Archive.DSN, a.logger)
}

func (a *app) newRunner(dir *activedirectory.Directory, store *archive.Store) *sweep.Runner {
	var archiver sweep.Archiver
	if store != nil {
		archiver = store
	}
	var sender sweep.Sender
	if a.cfg.Mail.Enabled() {
		sender = mailer.New(mailer.Settings{
			Host:       a.cfg.Mail.Host,
			Port:       a.cfg.Mail.Port,
			Username:   a.cfg.Mail.Username,
			Password:   a.cfg.Mail.Password,
			From:       a.cfg.Mail.From,
			Recipients: a.cfg.Mail.Recipients,
			Subject:    a.cfg.Mail.Subject,
		}, a.logger)
	}
	return sweep.NewRunner(dir, archiver, sender, a.logger)
}

func (a *app) kindPolicy(kind lifecycle.Kind) config.KindPolicy {
	if kind == lifecycle.KindUser {
		return a.cfg.Sweep.Users
	}
	return a.cfg.Sweep.Computers
}

func (a *app) optionsFor(kind lifecycle.Kind, dryRun bool) sweep.Options {
	pol := a.kindPolicy(kind)
	return sweep.Options{
		Kind:               kind,
		Policy:             pol.Policy(),
		SearchBases:        pol.SearchBases,
		DryRun:             dryRun,
		DeleteAfterArchive: a.cfg.Sweep.DeleteAfterArchive,
		Parallelism:        a.cfg.Sweep.Parallelism,
		RetentionDays:      a.cfg.Archive.RetentionDays,
	}
}

func parseKind(value string) (lifecycle.Kind, error) {
	switch value {
	case "computer", "computers":
		return lifecycle.KindComputer, nil
	case "user", "users":
		return lifecycle.KindUser, nil
	}
	return 0, fmt.Errorf("unknown kind %q, want computer or user", value)
}

func parseKinds(value string) ([]lifecycle.Kind, error) {
	if value == "all" {
		return []lifecycle.Kind{lifecycle.KindComputer, lifecycle.KindUser}, nil
	}
	kind, err := parseKind(value)
	if err != nil {
		return nil, fmt.Errorf("unknown kind %q, want computer, user or all", value)
	}
	return []lifecycle.Kind{kind}, nil
}

func newRunCmd(a *app) *cobra.Command {
	var (
		dryRun   bool
		kindFlag = "all"
	)
	c := cobra.Command{
		Use:   "run",
		Short: "Run one sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := parseKinds(kindFlag)
			if err != nil {
				return err
			}
			if err := a.loadConfig(); err != nil {
				return err
			}

			ctx := cmd.Context()
			dir, err := a.connectDirectory()
			if err != nil {
				return err
			}
			defer dir.Close()

			store, err := a.openArchive(ctx)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			runner := a.newRunner(dir, store)
			failed := 0
			for _, kind := range kinds {
				outcome, err := runner.Run(ctx, a.optionsFor(kind, dryRun))
				if err != nil {
					return errors.Wrapf(err, "%s sweep", kind)
				}
				failed += outcome.Failed
				fmt.Fprintln(cmd.OutOrStdout(), outcome.Report.Subject())
			}
			if failed > 0 {
				return fmt.Errorf("%d account(s) failed, see the log", failed)
			}
			return nil
		},
	}
	c.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "classify and report without touching the directory")
	c.Flags().StringVarP(&kindFlag, "kind", "k", kindFlag, "account kind to sweep (computer|user|all)")
	return &c
}

func newDaemonCmd(a *app) *cobra.Command {
	var (
		dryRun   bool
		kindFlag = "all"
	)
	c := cobra.Command{
		Use:   "daemon",
		Short: "Sweep on a schedule and serve the status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := parseKinds(kindFlag)
			if err != nil {
				return err
			}
			if err := a.loadConfig(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dir, err := a.connectDirectory()
			if err != nil {
				return err
			}
			defer dir.Close()

			store, err := a.openArchive(ctx)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				if err := store.InitSchema(ctx); err != nil {
					return err
				}
			}

			runner := a.newRunner(dir, store)
			sweepAll := func(ctx context.Context) error {
				for _, kind := range kinds {
					if _, err := runner.Run(ctx, a.optionsFor(kind, dryRun)); err != nil {
						return errors.Wrapf(err, "%s sweep", kind)
					}
				}
				return nil
			}

			var source web.RunSource
			if store != nil {
				source = store
			}
			daemon := schedule.NewDaemon(a.cfg.Daemon.Interval, sweepAll, a.logger)
			status := web.NewServer(a.cfg.Daemon.StatusAddr, source, a.logger)

			group, gctx := errgroup.WithContext(ctx)
			group.Go(func() error { return daemon.Run(gctx) })
			group.Go(func() error { return status.Run(gctx) })
			return group.Wait()
		},
	}
	c.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "classify and report without touching the directory")
	c.Flags().StringVarP(&kindFlag, "kind", "k", kindFlag, "account kind to sweep (computer|user|all)")
	return &c
}

func newCheckCmd(a *app) *cobra.Command {
	c := cobra.Command{
		Use:   "check <computer|user> <name>",
		Short: "Show what a sweep would do with one account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			if err := a.loadConfig(); err != nil {
				return err
			}

			dir, err := a.connectDirectory()
			if err != nil {
				return err
			}
			defer dir.Close()

			snap, err := dir.FetchAccount(kind, args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:        %s\n", snap.Name)
			fmt.Fprintf(out, "dn:          %s\n", snap.DN)
			fmt.Fprintf(out, "enabled:     %t\n", snap.Enabled)
			fmt.Fprintf(out, "last logon:  %s\n", formatLogon(snap.LastLogonDate))
			if !snap.WhenCreated.IsZero() {
				fmt.Fprintf(out, "created:     %s\n", snap.WhenCreated.Format("2006-01-02"))
			}
			if snap.OperatingSystem != "" {
				fmt.Fprintf(out, "os:          %s\n", snap.OperatingSystem)
			}
			if snap.Description != "" {
				fmt.Fprintf(out, "description: %s\n", snap.Description)
			}

			res, ok := lifecycle.Classify(snap, a.kindPolicy(kind).Policy(), time.Now().UTC())
			if !ok {
				fmt.Fprintf(out, "action:      skipped (server or unknown OS)\n")
				return nil
			}
			fmt.Fprintf(out, "action:      %s\n", res.Action)
			return nil
		},
	}
	return &c
}

func newInitDBCmd(a *app) *cobra.Command {
	c := cobra.Command{
		Use:   "initdb",
		Short: "Create the archive tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			if a.cfg.Archive.DSN == "" {
				return fmt.Errorf("ARCHIVE_DSN is not configured")
			}

			ctx := cmd.Context()
			store, err := archive.Connect(ctx, a.cfg.Archive.DSN, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.InitSchema(ctx)
		},
	}
	return &c
}

func newTaskCmd(a *app) *cobra.Command {
	c := cobra.Command{
		Use:   "task",
		Short: "Manage the Windows scheduled task",
	}

	var startTime string
	register := cobra.Command{
		Use:   "register",
		Short: "Create or replace the daily sweep task",
		RunE: func(cmd *cobra.Command, args []string) error {
			binary, err := os.Executable()
			if err != nil {
				return err
			}
			envPath, err := filepath.Abs(a.envPath)
			if err != nil {
				return err
			}
			policyPath, err := filepath.Abs(a.policyPath)
			if err != nil {
				return err
			}
			taskArgs := []string{"run", "--env", envPath, "--config", policyPath}
			return schedule.NewTaskManager(a.logger).Register(binary, taskArgs, startTime)
		},
	}
	register.Flags().StringVar(&startTime, "start-time", "03:00", "daily start time, 24h HH:MM")

	unregister := cobra.Command{
		Use:   "unregister",
		Short: "Delete the sweep task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return schedule.NewTaskManager(a.logger).Unregister()
		},
	}

	c.AddCommand(&register, &unregister)
	return &c
}

func formatLogon(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format("2006-01-02")
}
