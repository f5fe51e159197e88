package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/pauljmillar/survey-sub001/internal/database"
	"github.com/pauljmillar/survey-sub001/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// setupFileDB opens a file-backed database so that several connections can
// contend for the write lock.
func setupFileDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "points.db"))
	if err != nil {
		t.Fatalf("open file db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createPanelist(t *testing.T, db *sql.DB, userRef string) *model.Panelist {
	t.Helper()
	p, err := NewPanelistStore(db).Create(context.Background(), userRef, userRef)
	if err != nil {
		t.Fatalf("create panelist %s: %v", userRef, err)
	}
	return p
}

func credit(t *testing.T, db *sql.DB, panelistID, points int64) *model.IssueResult {
	t.Helper()
	res, err := NewLedgerStore(db).Issue(context.Background(), model.Transaction{
		PanelistID: panelistID,
		Points:     points,
		Type:       model.TxBonus,
		Title:      "Test credit",
	})
	if err != nil {
		t.Fatalf("credit %d: %v", points, err)
	}
	return res
}
