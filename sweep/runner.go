// Package sweep runs one hygiene pass over a directory: enumerate accounts,
// classify each against the policy, apply the resulting actions, archive
// removed users and send the summary report.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"f0oster/adsweep/activedirectory"
	"f0oster/adsweep/archive"
	"f0oster/adsweep/lifecycle"
	"f0oster/adsweep/report"
)

// Directory is the slice of the LDAP layer the runner needs.
type Directory interface {
	FetchAccounts(kind lifecycle.Kind, searchBase string) ([]lifecycle.AccountSnapshot, error)
	DisableAccount(dn, description string) error
	DeleteAccount(dn string) error
}

// Archiver persists removed users and run summaries. Ping acts as the
// precondition probe: user removals only start after it succeeds.
type Archiver interface {
	Ping(ctx context.Context) error
	ArchiveAccount(ctx context.Context, runID uuid.UUID, res lifecycle.Result) error
	RecordRun(ctx context.Context, run archive.Run) error
	PruneExpired(ctx context.Context, keepDays int) error
}

// Sender delivers the rendered report.
type Sender interface {
	Send(subject, htmlBody string) error
}

type Options struct {
	Kind               lifecycle.Kind
	Policy             lifecycle.Policy
	SearchBases        []string
	DryRun             bool
	DeleteAfterArchive bool
	Parallelism        int
	RetentionDays      int
}

// Outcome summarizes one sweep.
type Outcome struct {
	RunID    uuid.UUID
	Report   *report.Report
	Examined int
	Skipped  int
	Disabled int
	Removed  int
	Failed   int
	Notices  []string
}

type Runner struct {
	directory Directory
	archiver  Archiver
	sender    Sender
	logger    *zap.Logger
	now       func() time.Time
}

// NewRunner wires a runner. archiver and sender may be nil when the archive
// store or mail delivery is not configured.
func NewRunner(directory Directory, archiver Archiver, sender Sender, logger *zap.Logger) *Runner {
	return &Runner{
		directory: directory,
		archiver:  archiver,
		sender:    sender,
		logger:    logger,
		now:       time.Now,
	}
}

// Run performs one sweep for one account kind. Enumeration failures abort the
// run; failures applying an action to a single account are counted and the
// run continues.
func (r *Runner) Run(ctx context.Context, opts Options) (*Outcome, error) {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	now := r.now().UTC()
	started := now

	outcome := &Outcome{RunID: uuid.New()}

	snapshots, err := r.enumerate(opts)
	if err != nil {
		return nil, err
	}

	var results []lifecycle.Result
	for _, snap := range snapshots {
		res, ok := lifecycle.Classify(snap, opts.Policy, now)
		if !ok {
			outcome.Skipped++
			continue
		}
		results = append(results, res)
	}
	outcome.Examined = len(results)

	r.logger.Info("classified accounts",
		zap.Stringer("kind", opts.Kind),
		zap.Int("examined", outcome.Examined),
		zap.Int("skipped", outcome.Skipped),
		zap.Bool("dry_run", opts.DryRun),
	)

	if !opts.DryRun {
		r.applyDisables(ctx, results, now, opts, outcome)
		r.applyRemovals(ctx, results, opts, outcome)
	}

	rep := report.Build(opts.Kind, results, opts.DryRun, now)
	rep.Failed = outcome.Failed
	rep.Notices = outcome.Notices
	outcome.Report = rep
	r.deliverReport(rep)

	finished := r.now().UTC()
	r.recordRun(ctx, opts, outcome, started, finished)

	return outcome, nil
}

// enumerate fetches accounts from every configured search base, deduplicating
// objects that appear under overlapping bases.
func (r *Runner) enumerate(opts Options) ([]lifecycle.AccountSnapshot, error) {
	bases := opts.SearchBases
	if len(bases) == 0 {
		bases = []string{""}
	}

	seen := make(map[string]bool)
	var snapshots []lifecycle.AccountSnapshot
	for _, base := range bases {
		fetched, err := r.directory.FetchAccounts(opts.Kind, base)
		if err != nil {
			return nil, err
		}
		for _, snap := range fetched {
			if seen[snap.DN] {
				continue
			}
			seen[snap.DN] = true
			snapshots = append(snapshots, snap)
		}
	}
	return snapshots, nil
}

type applyResult int

const (
	applyOK applyResult = iota
	applyMissing
	applyFailed
)

// applyDisables pushes the disable mutations, bounded by the configured
// parallelism. The directory connection multiplexes requests, so concurrent
// modifies against one connection are fine.
func (r *Runner) applyDisables(ctx context.Context, results []lifecycle.Result, now time.Time, opts Options, outcome *Outcome) {
	var toDisable []lifecycle.Result
	for _, res := range results {
		if res.Action == lifecycle.ActionDisable {
			toDisable = append(toDisable, res)
		}
	}
	if len(toDisable) == 0 {
		return
	}

	states := make([]applyResult, len(toDisable))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(opts.Parallelism)
	for i, res := range toDisable {
		i, res := i, res
		group.Go(func() error {
			if ctx.Err() != nil {
				states[i] = applyFailed
				return nil
			}
			description := lifecycle.EncodeDisabledDescription(res.Description, now)
			states[i] = r.gradeApplyError(res, r.directory.DisableAccount(res.DN, description))
			return nil
		})
	}
	group.Wait()

	for _, state := range states {
		switch state {
		case applyOK:
			outcome.Disabled++
		case applyFailed:
			outcome.Failed++
		}
	}
}

// applyRemovals handles accounts past their removal window. Computers are
// deleted outright. Users are archived first, and only deleted when
// delete-after-archive is switched on; if the archive store is unreachable
// no user removal starts at all.
func (r *Runner) applyRemovals(ctx context.Context, results []lifecycle.Result, opts Options, outcome *Outcome) {
	var toRemove []lifecycle.Result
	for _, res := range results {
		if res.Action == lifecycle.ActionRemove {
			toRemove = append(toRemove, res)
		}
	}
	if len(toRemove) == 0 {
		return
	}

	if opts.Kind == lifecycle.KindUser {
		if r.archiver == nil {
			r.logger.Error("no archive store configured, refusing to remove users",
				zap.Int("pending", len(toRemove)))
			outcome.Failed += len(toRemove)
			outcome.Notices = append(outcome.Notices,
				fmt.Sprintf("No archive store is configured; %d user removal(s) were skipped.", len(toRemove)))
			return
		}
		if err := r.archiver.Ping(ctx); err != nil {
			r.logger.Error("archive store unreachable, skipping user removals",
				zap.Int("pending", len(toRemove)),
				zap.Error(err),
			)
			outcome.Failed += len(toRemove)
			outcome.Notices = append(outcome.Notices,
				fmt.Sprintf("The archive store is unreachable; %d user removal(s) were skipped.", len(toRemove)))
			return
		}
	}

	states := make([]applyResult, len(toRemove))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(opts.Parallelism)
	for i, res := range toRemove {
		i, res := i, res
		group.Go(func() error {
			if gctx.Err() != nil {
				states[i] = applyFailed
				return nil
			}
			states[i] = r.removeOne(gctx, res, opts, outcome.RunID)
			return nil
		})
	}
	group.Wait()

	for _, state := range states {
		switch state {
		case applyOK:
			outcome.Removed++
		case applyFailed:
			outcome.Failed++
		}
	}
}

func (r *Runner) removeOne(ctx context.Context, res lifecycle.Result, opts Options, runID uuid.UUID) applyResult {
	if res.Kind == lifecycle.KindComputer {
		return r.gradeApplyError(res, r.directory.DeleteAccount(res.DN))
	}

	if err := r.archiver.ArchiveAccount(ctx, runID, res); err != nil {
		r.logger.Error("failed to archive account, leaving it in place",
			zap.String("dn", res.DN),
			zap.Error(err),
		)
		return applyFailed
	}
	if !opts.DeleteAfterArchive {
		return applyOK
	}
	return r.gradeApplyError(res, r.directory.DeleteAccount(res.DN))
}

// gradeApplyError sorts a mutation error into the three per-account
// outcomes. An account that vanished mid-sweep is logged and skipped, any
// other failure is counted against the run.
func (r *Runner) gradeApplyError(res lifecycle.Result, err error) applyResult {
	switch {
	case err == nil:
		return applyOK
	case activedirectory.IsNotFound(err):
		r.logger.Warn("account vanished during sweep",
			zap.String("name", res.Name),
			zap.String("dn", res.DN),
		)
		return applyMissing
	default:
		r.logger.Error("failed to apply action",
			zap.Stringer("action", res.Action),
			zap.String("dn", res.DN),
			zap.Error(err),
		)
		return applyFailed
	}
}

func (r *Runner) deliverReport(rep *report.Report) {
	if r.sender == nil {
		return
	}
	html, err := rep.HTML()
	if err != nil {
		r.logger.Error("failed to render report", zap.Error(err))
		return
	}
	if err := r.sender.Send(rep.Subject(), html); err != nil {
		r.logger.Error("failed to send report mail", zap.Error(err))
	}
}

func (r *Runner) recordRun(ctx context.Context, opts Options, outcome *Outcome, started, finished time.Time) {
	if r.archiver == nil {
		return
	}

	run := archive.Run{
		ID:         outcome.RunID,
		Kind:       opts.Kind.String(),
		DryRun:     opts.DryRun,
		StartedAt:  started,
		FinishedAt: finished,
		Examined:   outcome.Examined,
		Disabled:   outcome.Disabled,
		Removed:    outcome.Removed,
		Failed:     outcome.Failed,
	}
	if err := r.archiver.RecordRun(ctx, run); err != nil {
		r.logger.Error("failed to record run", zap.Error(err))
		return
	}

	if !opts.DryRun && opts.RetentionDays > 0 {
		if err := r.archiver.PruneExpired(ctx, opts.RetentionDays); err != nil {
			r.logger.Error("failed to prune archive", zap.Error(err))
		}
	}
}
