package main

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yourbasic/graph"
	"golang.org/x/sync/errgroup"
)

// constraintWaves orders the tables created in this run so that a table is
// constrained only after every created table its foreign keys reference.
// Tables in one wave are independent of each other. When the references
// form a cycle, ok is false and all tables are returned as a single wave.
func constraintWaves(results []*MigrationResult) (waves [][]*MigrationResult, ok bool) {
	if len(results) == 0 {
		return nil, true
	}
	index := make(map[string]int, len(results))
	for i, r := range results {
		index[strings.ToLower(r.OutputTable)] = i
	}

	g := graph.New(len(results))
	parents := make([][]int, len(results))
	for child, r := range results {
		for _, col := range r.MappedSchema {
			fk, isFK := col.Constraint.(ForeignKey)
			if !isFK {
				continue
			}
			parent, found := index[strings.ToLower(fk.ReferencedTable)]
			if !found || parent == child {
				continue
			}
			if !g.Edge(parent, child) {
				g.Add(parent, child)
				parents[child] = append(parents[child], parent)
			}
		}
	}

	order, ok := graph.TopSort(g)
	if !ok {
		return [][]*MigrationResult{results}, false
	}

	level := make([]int, len(results))
	depth := 0
	for _, v := range order {
		for _, p := range parents[v] {
			level[v] = max(level[v], level[p]+1)
		}
		depth = max(depth, level[v])
	}
	waves = make([][]*MigrationResult, depth+1)
	for i, r := range results {
		waves[level[i]] = append(waves[level[i]], r)
	}
	return waves, true
}

// createConstraints applies the deferred constraints of every created table,
// one ALTER TABLE per table, at most limit at a time. Failures are logged and
// returned but never abort sibling tables.
func createConstraints(ctx context.Context, target TargetDB, results []*MigrationResult, limit int, log logrus.FieldLogger) []error {
	var created []*MigrationResult
	for _, r := range results {
		if r != nil && r.Created {
			created = append(created, r)
		}
	}
	waves, ok := constraintWaves(created)
	if !ok {
		log.Warn("foreign keys form a cycle, constraints are applied without dependency ordering")
	}

	var failures []error
	for _, wave := range waves {
		errs := make([]error, len(wave))
		var g errgroup.Group
		g.SetLimit(max(limit, 1))
		for i, r := range wave {
			g.Go(func() error {
				errs[i] = applyTableConstraints(ctx, target, r, log)
				return nil
			})
		}
		_ = g.Wait()
		for _, err := range errs {
			if err != nil {
				failures = append(failures, err)
			}
		}
	}
	return failures
}

func applyTableConstraints(ctx context.Context, target TargetDB, r *MigrationResult, log logrus.FieldLogger) error {
	stmt, ok := constraintsSQL(target.Dialect(), r.OutputTable, r.MappedSchema)
	if !ok {
		return nil
	}
	entry := log.WithField("table", r.OutputTable)
	if err := target.ExecInTransaction(ctx, TxOptions{DisableForeignKeys: true}, stmt); err != nil {
		cerr := &ConstraintCreationError{Table: r.OutputTable, Err: err}
		entry.Error(renderErrorChain(cerr))
		return cerr
	}
	entry.Debug("constraints created")
	return nil
}
