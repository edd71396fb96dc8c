package store

import (
	"context"
	"regexp"
	"time"

	"gorm.io/gorm"
)

const (
	tableActivationAttempts = 30
	tableActivationInterval = time.Second
)

var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validTableName(name string) bool {
	return tableNameRe.MatchString(name)
}

// waitForTable polls until the freshly created table is visible or the
// attempt budget is spent. Callers never wait forever on a table that will
// not activate.
func waitForTable(ctx context.Context, db *gorm.DB, name string) error {
	for attempt := 0; attempt < tableActivationAttempts; attempt++ {
		if db.Migrator().HasTable(name) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tableActivationInterval):
		}
	}
	return ErrTableNotActive
}
