package database_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/jonesrussell/pricefeed/internal/database"
	"github.com/jonesrussell/pricefeed/internal/domain"
)

func runColumns() []string {
	return []string{
		"id", "feed_id", "trigger_kind", "status", "started_at", "finished_at",
		"rows_read", "rows_parsed", "rows_written", "quarantined", "error_count",
		"error_code", "error_detail",
	}
}

func runRow(rows *sqlmock.Rows, id, status string) *sqlmock.Rows {
	now := time.Now().UTC()
	return rows.AddRow(
		id, "feed-1", "scheduled", status, now, nil,
		10, 9, 8, 1, 1, nil, nil,
	)
}

func TestRunRepository_Create(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewRunRepository(db)
	ctx := context.Background()

	run := &domain.FeedRun{
		ID:        "run-123",
		FeedID:    "feed-1",
		Trigger:   domain.TriggerScheduled,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   bool
	}{
		{
			name: "inserts the run",
			setupMock: func() {
				mock.ExpectExec("INSERT INTO feed_runs").
					WithArgs(run.ID, run.FeedID, "scheduled", "running", run.StartedAt).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantErr: false,
		},
		{
			name: "database error returns error",
			setupMock: func() {
				mock.ExpectExec("INSERT INTO feed_runs").
					WithArgs(run.ID, run.FeedID, "scheduled", "running", run.StartedAt).
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			callErr := repo.Create(ctx, run)
			if (callErr != nil) != tc.wantErr {
				t.Errorf("Create() error = %v, wantErr %v", callErr, tc.wantErr)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestRunRepository_Finish(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewRunRepository(db)
	ctx := context.Background()

	run := &domain.FeedRun{
		ID:          "run-123",
		FeedID:      "feed-1",
		Trigger:     domain.TriggerScheduled,
		Status:      domain.RunStatusSucceeded,
		RowsRead:    10,
		RowsParsed:  9,
		RowsWritten: 8,
		Quarantined: 1,
		ErrorCount:  1,
	}

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   error
	}{
		{
			name: "finishes a running run",
			setupMock: func() {
				mock.ExpectExec("UPDATE feed_runs").
					WithArgs(run.ID, "succeeded", 10, 9, 8, 1, 1,
						run.ErrorCode, run.ErrorDetail).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "already-terminal run returns ErrRunNotTerminal",
			setupMock: func() {
				mock.ExpectExec("UPDATE feed_runs").
					WithArgs(run.ID, "succeeded", 10, 9, 8, 1, 1,
						run.ErrorCode, run.ErrorDetail).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: domain.ErrRunNotTerminal,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			callErr := repo.Finish(ctx, run)
			if tc.wantErr != nil {
				if !errors.Is(callErr, tc.wantErr) {
					t.Errorf("Finish() error = %v, want %v", callErr, tc.wantErr)
				}
			} else if callErr != nil {
				t.Errorf("Finish() error = %v", callErr)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestRunRepository_GetByID(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewRunRepository(db)
	ctx := context.Background()
	runID := "run-123"

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   error
	}{
		{
			name: "returns the run",
			setupMock: func() {
				rows := sqlmock.NewRows(runColumns())
				runRow(rows, runID, "running")
				mock.ExpectQuery("SELECT (.+) FROM feed_runs WHERE id").
					WithArgs(runID).
					WillReturnRows(rows)
			},
		},
		{
			name: "missing run maps to ErrNotFound",
			setupMock: func() {
				mock.ExpectQuery("SELECT (.+) FROM feed_runs WHERE id").
					WithArgs(runID).
					WillReturnRows(sqlmock.NewRows(runColumns()))
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			run, callErr := repo.GetByID(ctx, runID)
			if tc.wantErr != nil {
				if !errors.Is(callErr, tc.wantErr) {
					t.Errorf("GetByID() error = %v, want %v", callErr, tc.wantErr)
				}
			} else {
				if callErr != nil {
					t.Fatalf("GetByID() error = %v", callErr)
				}
				if run.ID != runID {
					t.Errorf("run.ID = %q, want %q", run.ID, runID)
				}
				if run.Trigger != domain.TriggerScheduled {
					t.Errorf("run.Trigger = %v, want scheduled", run.Trigger)
				}
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestRunRepository_ListByFeed(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewRunRepository(db)
	ctx := context.Background()

	rows := sqlmock.NewRows(runColumns())
	runRow(rows, "run-2", "succeeded")
	runRow(rows, "run-1", "failed")
	mock.ExpectQuery("SELECT (.+) FROM feed_runs").
		WithArgs("feed-1", 20).
		WillReturnRows(rows)

	runs, callErr := repo.ListByFeed(ctx, "feed-1", 20)
	if callErr != nil {
		t.Fatalf("ListByFeed() error = %v", callErr)
	}
	if len(runs) != 2 {
		t.Errorf("ListByFeed() returned %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run-2" {
		t.Errorf("runs[0].ID = %q, want run-2", runs[0].ID)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestRunRepository_HasPendingForFeed(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewRunRepository(db)
	ctx := context.Background()

	testCases := []struct {
		name        string
		setupMock   func()
		wantPending bool
		wantErr     bool
	}{
		{
			name: "running run reports pending",
			setupMock: func() {
				mock.ExpectQuery("SELECT COUNT").
					WithArgs("feed-1").
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
			},
			wantPending: true,
		},
		{
			name: "no running run reports not pending",
			setupMock: func() {
				mock.ExpectQuery("SELECT COUNT").
					WithArgs("feed-1").
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
			},
			wantPending: false,
		},
		{
			name: "database error returns error",
			setupMock: func() {
				mock.ExpectQuery("SELECT COUNT").
					WithArgs("feed-1").
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			pending, callErr := repo.HasPendingForFeed(ctx, "feed-1")
			if (callErr != nil) != tc.wantErr {
				t.Errorf("HasPendingForFeed() error = %v, wantErr %v", callErr, tc.wantErr)
			}
			if !tc.wantErr && pending != tc.wantPending {
				t.Errorf("HasPendingForFeed() = %v, want %v", pending, tc.wantPending)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestRunRepository_PruneTerminal(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewRunRepository(db)
	ctx := context.Background()
	retention := 30 * 24 * time.Hour

	// Two full batches then a partial one terminates the loop.
	mock.ExpectExec("DELETE FROM feed_runs").
		WithArgs(retention.String(), 1000).
		WillReturnResult(sqlmock.NewResult(0, 1000))
	mock.ExpectExec("DELETE FROM feed_runs").
		WithArgs(retention.String(), 1000).
		WillReturnResult(sqlmock.NewResult(0, 1000))
	mock.ExpectExec("DELETE FROM feed_runs").
		WithArgs(retention.String(), 1000).
		WillReturnResult(sqlmock.NewResult(0, 37))

	deleted, callErr := repo.PruneTerminal(ctx, retention)
	if callErr != nil {
		t.Fatalf("PruneTerminal() error = %v", callErr)
	}
	if deleted != 2037 {
		t.Errorf("PruneTerminal() deleted = %d, want 2037", deleted)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}
