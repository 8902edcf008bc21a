package main

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// reservedBatchBytes is kept free below max_packet_bytes for packet framing.
const reservedBatchBytes = 10

const tupleSeparator = ", "

// batchStats accumulates what a batch loader sent for one table.
type batchStats struct {
	Rows    int64
	Batches int
	Bytes   int64
}

// batchLoader groups literal row tuples into multi-row INSERT statements that
// stay under the packet budget, executing each one as its own transaction.
type batchLoader struct {
	target   TargetDB
	table    string
	preamble string
	maxBytes int64
	timeout  time.Duration
	log      *logrus.Entry

	buf   strings.Builder
	rows  int
	stats batchStats
}

func newBatchLoader(target TargetDB, table string, cols []ColumnSchema, maxBytes int64, timeout time.Duration, log *logrus.Entry) *batchLoader {
	return &batchLoader{
		target:   target,
		table:    table,
		preamble: insertPreamble(target.Dialect(), table, cols),
		maxBytes: maxBytes,
		timeout:  timeout,
		log:      log,
	}
}

// Add appends one rendered row, flushing the pending batch first when the
// row would push it past the budget.
func (l *batchLoader) Add(ctx context.Context, row []string) error {
	tuple := "(" + strings.Join(row, tupleSeparator) + ")"

	if l.rows > 0 {
		next := int64(l.buf.Len() + len(tupleSeparator) + len(tuple) + reservedBatchBytes)
		if next <= l.maxBytes {
			l.buf.WriteString(tupleSeparator)
			l.buf.WriteString(tuple)
			l.rows++
			return nil
		}
		if err := l.Flush(ctx); err != nil {
			return err
		}
	}

	if int64(len(l.preamble)+len(tuple)+reservedBatchBytes) > l.maxBytes {
		return &BatchExecutionError{
			Table:      l.table,
			BatchBytes: len(l.preamble) + len(tuple),
			Rows:       1,
			Err:        ErrRowTooLarge,
		}
	}
	l.buf.WriteString(l.preamble)
	l.buf.WriteString(tuple)
	l.rows = 1
	return nil
}

// Flush executes the pending batch, if any. Batches of one table run strictly
// one after another.
func (l *batchLoader) Flush(ctx context.Context) error {
	if l.rows == 0 {
		return nil
	}
	stmt := l.buf.String()
	rows := l.rows
	l.buf.Reset()
	l.rows = 0

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := l.target.ExecInTransaction(ctx, TxOptions{DisableForeignKeys: true}, stmt); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			l.log.WithField("timeout", l.timeout).Warn("batch timed out")
		}
		return &BatchExecutionError{Table: l.table, BatchBytes: len(stmt), Rows: rows, Err: err}
	}

	l.stats.Rows += int64(rows)
	l.stats.Batches++
	l.stats.Bytes += int64(len(stmt))
	l.log.WithFields(logrus.Fields{
		"batch":    l.stats.Batches,
		"rows":     rows,
		"bytes":    len(stmt),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("batch committed")
	return nil
}

// loadBatches drains rows into the loader and flushes the final partial
// batch. It stops at the first row or batch error.
func loadBatches(ctx context.Context, l *batchLoader, rows iter.Seq2[[]string, error]) (batchStats, error) {
	for row, err := range rows {
		if err != nil {
			return l.stats, err
		}
		if err := ctx.Err(); err != nil {
			return l.stats, err
		}
		if err := l.Add(ctx, row); err != nil {
			return l.stats, err
		}
	}
	if err := l.Flush(ctx); err != nil {
		return l.stats, err
	}
	return l.stats, nil
}
