package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	hookBeforeData = "before_data"
	hookAfterAll   = "after_all"
)

// hookRunner executes user SQL files against the destination at fixed
// points of a run. Each file runs as one transaction.
type hookRunner struct {
	target  TargetDB
	phases  map[string][]string
	baseDir string
	log     logrus.FieldLogger
}

func newHookRunner(target TargetDB, cfg HooksConfig, baseDir string, log logrus.FieldLogger) *hookRunner {
	return &hookRunner{
		target: target,
		phases: map[string][]string{
			hookBeforeData: cfg.BeforeData,
			hookAfterAll:   cfg.AfterAll,
		},
		baseDir: baseDir,
		log:     log,
	}
}

func (h *hookRunner) run(ctx context.Context, phase string) error {
	if h == nil {
		return nil
	}
	files := h.phases[phase]
	if len(files) == 0 {
		return nil
	}
	h.log.WithField("files", len(files)).Infof("running %s hooks", phase)

	for _, f := range files {
		path := f
		if !filepath.IsAbs(path) {
			path = filepath.Join(h.baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("hook %s: read %s: %w", phase, f, err)
		}
		stmts := splitStatements(string(data))
		h.log.WithField("statements", len(stmts)).Debugf("hook %s", f)
		if len(stmts) == 0 {
			continue
		}
		if err := h.target.ExecInTransaction(ctx, TxOptions{}, stmts...); err != nil {
			return fmt.Errorf("hook %s: %s: %w", phase, f, err)
		}
	}
	return nil
}

// splitStatements splits SQL text on semicolons, ignoring semicolons inside
// quotes, comments and dollar-quoted bodies. Entries holding nothing but
// whitespace and comments are dropped.
func splitStatements(sql string) []string {
	var (
		stmts   []string
		current strings.Builder
		hasCode bool
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" && hasCode {
			stmts = append(stmts, s)
		}
		current.Reset()
		hasCode = false
	}

	for i := 0; i < len(sql); {
		c := sql[i]
		var end int
		switch {
		case strings.HasPrefix(sql[i:], "--"):
			current.WriteString(sql[i:lineCommentEnd(sql, i)])
			i = lineCommentEnd(sql, i)
			continue
		case strings.HasPrefix(sql[i:], "/*"):
			end = blockCommentEnd(sql, i)
			current.WriteString(sql[i:end])
			i = end
			continue
		case c == '\'' || c == '"':
			end = quotedEnd(sql, i, c)
		case c == '$':
			if tag, ok := parseDollarTag(sql, i); ok {
				end = dollarBodyEnd(sql, i, tag)
			} else {
				end = i + 1
			}
		case c == ';':
			flush()
			i++
			continue
		default:
			end = i + 1
		}
		if !hasCode && strings.TrimSpace(sql[i:end]) != "" {
			hasCode = true
		}
		current.WriteString(sql[i:end])
		i = end
	}
	flush()
	return stmts
}

func lineCommentEnd(sql string, i int) int {
	if j := strings.IndexByte(sql[i:], '\n'); j >= 0 {
		return i + j + 1
	}
	return len(sql)
}

// blockCommentEnd handles nested /* */ comments.
func blockCommentEnd(sql string, i int) int {
	depth := 0
	for j := i; j < len(sql)-1; j++ {
		switch sql[j : j+2] {
		case "/*":
			depth++
			j++
		case "*/":
			depth--
			j++
			if depth == 0 {
				return j + 1
			}
		}
	}
	return len(sql)
}

// quotedEnd finds the closing quote, treating a doubled quote as an escape.
func quotedEnd(sql string, i int, quote byte) int {
	for j := i + 1; j < len(sql); j++ {
		if sql[j] != quote {
			continue
		}
		if j+1 < len(sql) && sql[j+1] == quote {
			j++
			continue
		}
		return j + 1
	}
	return len(sql)
}

func dollarBodyEnd(sql string, i int, tag string) int {
	body := i + len(tag)
	if j := strings.Index(sql[body:], tag); j >= 0 {
		return body + j + len(tag)
	}
	return len(sql)
}

func parseDollarTag(sql string, i int) (string, bool) {
	if i+1 < len(sql) && sql[i+1] == '$' {
		return "$$", true
	}
	j := i + 1
	if j >= len(sql) || !isDollarTagStart(sql[j]) {
		return "", false
	}
	for j < len(sql) && isDollarTagChar(sql[j]) {
		j++
	}
	if j < len(sql) && sql[j] == '$' {
		return sql[i : j+1], true
	}
	return "", false
}

func isDollarTagStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDollarTagChar(c byte) bool {
	return isDollarTagStart(c) || (c >= '0' && c <= '9')
}
