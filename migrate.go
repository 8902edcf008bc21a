package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Migrator runs a whole migration: preflight, reset, parallel table copies
// and the deferred constraints phase.
type Migrator struct {
	source   SourceDB
	target   TargetDB
	mappings Mappings
	opts     MigrationOptions
	hooks    *hookRunner
	log      *logrus.Logger
}

// RunReport lists the outcome of every selected table, in source order.
type RunReport struct {
	Tables             []string
	Results            []*MigrationResult // nil where the table failed
	Failures           []error            // *TableError, nil where the table succeeded
	ConstraintFailures []error
	Elapsed            time.Duration
}

func (r *RunReport) failed() int {
	n := 0
	for _, err := range r.Failures {
		if err != nil {
			n++
		}
	}
	return n
}

func NewMigrator(source SourceDB, target TargetDB, mappings Mappings, opts MigrationOptions, hooks *hookRunner, log *logrus.Logger) *Migrator {
	if opts.MaxConcurrentTables < 1 {
		opts.MaxConcurrentTables = 1
	}
	return &Migrator{
		source:   source,
		target:   target,
		mappings: mappings,
		opts:     opts,
		hooks:    hooks,
		log:      log,
	}
}

// Run returns a fatal error when preflight, table listing, reset or the
// before_data hook fails. Per-table failures are collected in the report and
// surface as a *RunError, joined with any after_all hook error.
func (m *Migrator) Run(ctx context.Context) (*RunReport, error) {
	start := time.Now()

	if err := m.preflight(ctx); err != nil {
		return nil, err
	}

	tables, err := m.selectTables(ctx)
	if err != nil {
		return nil, err
	}
	m.log.Infof("migrating %d table(s) from %s to %s", len(tables), m.source.Name(), m.target.Name())

	if err := m.reset(ctx, tables); err != nil {
		return nil, err
	}
	if err := m.hooks.run(ctx, hookBeforeData); err != nil {
		return nil, err
	}

	report := m.migrateTables(ctx, tables)

	if m.opts.CreateConstraints {
		m.log.Info("creating constraints")
		report.ConstraintFailures = createConstraints(ctx, m.target, report.Results, m.opts.MaxConcurrentTables, m.log)
	}

	hookErr := m.hooks.run(ctx, hookAfterAll)

	report.Elapsed = time.Since(start)
	m.logSummary(report)
	var runErr error
	if n := report.failed(); n > 0 {
		runErr = &RunError{Failed: n, Total: len(tables)}
	}
	return report, errors.Join(hookErr, runErr)
}

// preflight checks the configured batch budget against the destination.
func (m *Migrator) preflight(ctx context.Context) error {
	allowed, err := m.target.MaxAllowedPacket(ctx)
	if err != nil {
		return fmt.Errorf("preflight: %w", err)
	}
	if m.opts.MaxPacketBytes > allowed {
		return &PacketSizeExceededError{Configured: m.opts.MaxPacketBytes, Allowed: allowed}
	}
	m.log.WithFields(logrus.Fields{
		"max_packet_bytes": humanize.IBytes(uint64(m.opts.MaxPacketBytes)),
		"server_allows":    humanize.IBytes(uint64(allowed)),
	}).Debug("preflight passed")
	return nil
}

// selectTables applies the whitelist to the source's base tables. Whitelist
// entries that match nothing are reported, not fatal.
func (m *Migrator) selectTables(ctx context.Context) ([]string, error) {
	all, err := m.source.ListBaseTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source tables: %w", err)
	}
	for _, w := range m.opts.WhitelistedTables {
		if !containsFold(all, w) {
			m.log.WithField("table", w).Warn("whitelisted table not found in source")
		}
	}
	var tables []string
	for _, t := range all {
		if m.opts.whitelisted(t) {
			tables = append(tables, t)
		}
	}
	return tables, nil
}

// reset drops or truncates the destination tables this run will write, in a
// single transaction with foreign key checks off. Destination names are
// matched case-insensitively.
func (m *Migrator) reset(ctx context.Context, tables []string) error {
	if m.opts.ResetAction == ResetNone || len(tables) == 0 {
		return nil
	}
	existing, err := m.target.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	byLower := make(map[string]string, len(existing))
	for _, t := range existing {
		byLower[strings.ToLower(t)] = t
	}
	var targets []string
	for _, t := range tables {
		if name, ok := byLower[strings.ToLower(m.opts.outputName(t))]; ok {
			targets = append(targets, name)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	stmts := m.target.Dialect().ResetStatements(targets, m.opts.ResetAction)
	m.log.WithField("tables", len(targets)).Infof("reset: %s", m.opts.ResetAction)
	if err := m.target.ExecInTransaction(ctx, TxOptions{DisableForeignKeys: true}, stmts...); err != nil {
		return fmt.Errorf("reset (%s): %w", m.opts.ResetAction, err)
	}
	return nil
}

// migrateTables runs one table migrator per table, never more than
// MaxConcurrentTables at once, and returns after all of them finished.
func (m *Migrator) migrateTables(ctx context.Context, tables []string) *RunReport {
	report := &RunReport{
		Tables:   tables,
		Results:  make([]*MigrationResult, len(tables)),
		Failures: make([]error, len(tables)),
	}
	tm := &tableMigrator{
		source:   m.source,
		target:   m.target,
		mappings: m.mappings,
		opts:     m.opts,
		encoder:  newEncoder(m.target.Dialect(), m.opts.NumericFractionPadding),
		log:      logrus.NewEntry(m.log),
	}

	sem := semaphore.NewWeighted(int64(m.opts.MaxConcurrentTables))
	var wg sync.WaitGroup
	for i, table := range tables {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(tables); j++ {
				report.Failures[j] = &TableError{Table: tables[j], Err: err}
			}
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			res, err := tm.migrate(ctx, table)
			if err != nil {
				report.Failures[i] = &TableError{Table: table, Err: err}
				return
			}
			report.Results[i] = res
		}()
	}
	wg.Wait()
	return report
}

func (m *Migrator) logSummary(r *RunReport) {
	var rows, bytes int64
	for i, table := range r.Tables {
		if err := r.Failures[i]; err != nil {
			m.log.Error(renderErrorChain(err))
			continue
		}
		res := r.Results[i]
		rows += res.Rows
		bytes += res.Bytes
		m.log.WithFields(logrus.Fields{
			"table":   table,
			"target":  res.OutputTable,
			"outcome": res.Outcome.String(),
			"rows":    res.Rows,
			"batches": res.Batches,
			"size":    humanize.IBytes(uint64(res.Bytes)),
			"elapsed": res.Elapsed.Round(time.Millisecond),
		}).Info("summary")
	}

	entry := m.log.WithFields(logrus.Fields{
		"tables":  len(r.Tables),
		"failed":  r.failed(),
		"rows":    humanize.Comma(rows),
		"size":    humanize.IBytes(uint64(bytes)),
		"elapsed": r.Elapsed.Round(time.Millisecond),
	})
	if n := len(r.ConstraintFailures); n > 0 {
		entry = entry.WithField("constraint_failures", n)
	}
	entry.Info("migration finished")
}
