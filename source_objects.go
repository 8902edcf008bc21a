package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// SourceObjects holds non-table source objects that are left behind.
type SourceObjects struct {
	Views    []string
	Routines []string
	Triggers []string
}

func (o *SourceObjects) empty() bool {
	return o == nil || len(o.Views)+len(o.Routines)+len(o.Triggers) == 0
}

func sourceObjectWarnings(objs *SourceObjects) []string {
	if objs.empty() {
		return nil
	}
	warnings := []string{fmt.Sprintf(
		"source contains objects that are not migrated (%d views, %d routines, %d triggers)",
		len(objs.Views), len(objs.Routines), len(objs.Triggers),
	)}
	for _, group := range []struct {
		kind  string
		names []string
	}{
		{"view", objs.Views},
		{"routine", objs.Routines},
		{"trigger", objs.Triggers},
	} {
		for _, name := range group.names {
			warnings = append(warnings, fmt.Sprintf("%s: %s", group.kind, name))
		}
	}
	return warnings
}

// reportSourceObjects logs the objects a migration will not carry over.
// Discovery failures are logged and otherwise ignored.
func reportSourceObjects(ctx context.Context, src SourceDB, log logrus.FieldLogger) {
	objs, err := src.SourceObjects(ctx)
	if err != nil {
		log.WithError(err).Warn("could not list non-table source objects")
		return
	}
	for _, w := range sourceObjectWarnings(objs) {
		log.Warn(w)
	}
}
