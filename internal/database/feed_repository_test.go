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

func feedColumns() []string {
	return []string{
		"id", "retailer_id", "merchant_id", "name", "transport", "format",
		"schedule_frequency_hours", "next_run_at", "manual_run_pending", "status",
		"consecutive_failures", "last_content_hash", "created_at", "updated_at",
	}
}

func feedRow(rows *sqlmock.Rows, id string) *sqlmock.Rows {
	now := time.Now().UTC()
	return rows.AddRow(
		id, "r-1", nil, "Main feed",
		[]byte(`{"method":"http","url":"https://shop.test/feed.csv"}`), "auto",
		6, now, false, "enabled", 0, nil, now, now,
	)
}

func TestFeedRepository_ClaimDue(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewFeedRepository(db)
	ctx := context.Background()

	testCases := []struct {
		name      string
		setupMock func()
		wantCount int
		wantErr   bool
	}{
		{
			name: "claims due feeds",
			setupMock: func() {
				rows := sqlmock.NewRows(feedColumns())
				feedRow(rows, "feed-1")
				feedRow(rows, "feed-2")
				mock.ExpectQuery("UPDATE feeds").
					WithArgs(100).
					WillReturnRows(rows)
			},
			wantCount: 2,
			wantErr:   false,
		},
		{
			name: "no due feeds returns empty",
			setupMock: func() {
				mock.ExpectQuery("UPDATE feeds").
					WithArgs(100).
					WillReturnRows(sqlmock.NewRows(feedColumns()))
			},
			wantCount: 0,
			wantErr:   false,
		},
		{
			name: "database error returns error",
			setupMock: func() {
				mock.ExpectQuery("UPDATE feeds").
					WithArgs(100).
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			feeds, callErr := repo.ClaimDue(ctx, 100)
			if (callErr != nil) != tc.wantErr {
				t.Errorf("ClaimDue() error = %v, wantErr %v", callErr, tc.wantErr)
			}
			if !tc.wantErr && len(feeds) != tc.wantCount {
				t.Errorf("ClaimDue() returned %d feeds, want %d", len(feeds), tc.wantCount)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestFeedRepository_GetByID(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewFeedRepository(db)
	ctx := context.Background()
	feedID := "feed-123"

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   error
	}{
		{
			name: "returns the feed",
			setupMock: func() {
				rows := sqlmock.NewRows(feedColumns())
				feedRow(rows, feedID)
				mock.ExpectQuery("SELECT (.+) FROM feeds WHERE id").
					WithArgs(feedID).
					WillReturnRows(rows)
			},
		},
		{
			name: "missing feed maps to ErrNotFound",
			setupMock: func() {
				mock.ExpectQuery("SELECT (.+) FROM feeds WHERE id").
					WithArgs(feedID).
					WillReturnRows(sqlmock.NewRows(feedColumns()))
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			feed, callErr := repo.GetByID(ctx, feedID)
			if tc.wantErr != nil {
				if !errors.Is(callErr, tc.wantErr) {
					t.Errorf("GetByID() error = %v, want %v", callErr, tc.wantErr)
				}
			} else {
				if callErr != nil {
					t.Fatalf("GetByID() error = %v", callErr)
				}
				if feed.ID != feedID {
					t.Errorf("feed.ID = %q, want %q", feed.ID, feedID)
				}
				if feed.Transport.Method != domain.TransportHTTP {
					t.Errorf("Transport.Method = %v, want http", feed.Transport.Method)
				}
				if feed.ScheduleFrequency != 6*time.Hour {
					t.Errorf("ScheduleFrequency = %v, want 6h", feed.ScheduleFrequency)
				}
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestFeedRepository_SetManualPending(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewFeedRepository(db)
	ctx := context.Background()
	feedID := "feed-123"

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   bool
	}{
		{
			name: "sets the flag",
			setupMock: func() {
				mock.ExpectExec("UPDATE feeds SET manual_run_pending").
					WithArgs(feedID, true).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantErr: false,
		},
		{
			name: "missing feed returns error",
			setupMock: func() {
				mock.ExpectExec("UPDATE feeds SET manual_run_pending").
					WithArgs(feedID, true).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: true,
		},
		{
			name: "database error returns error",
			setupMock: func() {
				mock.ExpectExec("UPDATE feeds SET manual_run_pending").
					WithArgs(feedID, true).
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			callErr := repo.SetManualPending(ctx, feedID, true)
			if (callErr != nil) != tc.wantErr {
				t.Errorf("SetManualPending() error = %v, wantErr %v", callErr, tc.wantErr)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestFeedRepository_RecordRunOutcome(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewFeedRepository(db)
	ctx := context.Background()

	hash := "abc123"
	feed := &domain.Feed{
		ID:                  "feed-123",
		Status:              domain.FeedStatusFailed,
		ConsecutiveFailures: 3,
		LastContentHash:     &hash,
	}

	mock.ExpectExec("UPDATE feeds").
		WithArgs(feed.ID, "failed", 3, &hash).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if callErr := repo.RecordRunOutcome(ctx, feed); callErr != nil {
		t.Errorf("RecordRunOutcome() error = %v", callErr)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestFeedRepository_Create(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewFeedRepository(db)
	ctx := context.Background()

	feed, feedErr := domain.NewFeed("r-1", "Main feed", domain.TransportConfig{
		Method: domain.TransportHTTP,
		URL:    "https://shop.test/feed.csv",
	}, 6*time.Hour)
	if feedErr != nil {
		t.Fatalf("NewFeed() error = %v", feedErr)
	}
	feed.ID = "feed-123"

	mock.ExpectExec("INSERT INTO feeds").
		WithArgs(feed.ID, feed.RetailerID, feed.MerchantID, feed.Name,
			sqlmock.AnyArg(), "auto", 6, feed.NextRunAt, false, "enabled", 0,
			feed.CreatedAt, feed.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if callErr := repo.Create(ctx, feed); callErr != nil {
		t.Errorf("Create() error = %v", callErr)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}
