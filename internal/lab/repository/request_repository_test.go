package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestTransitionWritesWhenStatusMatches(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRequestRepository(db)

	mock.ExpectExec(`UPDATE "unified_requests" SET .* WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	err := repo.Transition(context.Background(), "req-1", entity.RequestStatusPending, entity.RequestStatusApproved, map[string]interface{}{
		"reviewed_by": "admin-1",
		"reviewed_at": now,
		"review_note": "ok",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStaleStatusIsConflict(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRequestRepository(db)

	mock.ExpectExec(`UPDATE "unified_requests" SET .* WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Transition(context.Background(), "req-1", entity.RequestStatusPending, entity.RequestStatusRejected, nil)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionPropagatesDatabaseError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRequestRepository(db)

	boom := errors.New("connection reset")
	mock.ExpectExec(`UPDATE "unified_requests"`).WillReturnError(boom)

	err := repo.Transition(context.Background(), "req-1", entity.RequestStatusApproved, entity.RequestStatusProcessing, nil)
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestUpdatePendingChecksVersion(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRequestRepository(db)

	mock.ExpectExec(`UPDATE "unified_requests" SET .* WHERE id = \$\d+ AND status = \$\d+ AND version = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := &entity.UnifiedRequest{ID: "req-2", Title: "Projector", Description: "Borrow a projector", Priority: entity.PriorityHigh}
	err := repo.UpdatePending(context.Background(), req, 3)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePendingWritesEveryEditableColumn(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRequestRepository(db)

	mock.ExpectExec(`UPDATE "unified_requests" SET "attachments"=\$1,"description"=\$2,"materials"=\$3,"priority"=\$4,"room_id"=\$5,"title"=\$6,"updated_at"=\$7,"version"=version \+ 1 WHERE id = \$8 AND status = \$9 AND version = \$10`).
		WithArgs(sqlmock.AnyArg(), "Channel 2 is dead", sqlmock.AnyArg(), sqlmock.AnyArg(), "room-9",
			"Oscilloscope repair", sqlmock.AnyArg(), "req-6", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := &entity.UnifiedRequest{
		ID:          "req-6",
		Type:        entity.RequestTypeMaterialRepair,
		Title:       "Oscilloscope repair",
		Description: "Channel 2 is dead",
		Priority:    entity.PriorityHigh,
		RoomID:      "room-9",
		Materials:   []entity.MaterialLine{{MaterialID: "mat-1", Quantity: 1}},
	}
	require.NoError(t, repo.UpdatePending(context.Background(), req, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePending(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRequestRepository(db)

	mock.ExpectExec(`DELETE FROM "unified_requests" WHERE id = \$1 AND requester_id = \$2 AND status = \$3`).
		WithArgs("req-3", "stu-1", entity.RequestStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.DeletePending(context.Background(), "req-3", "stu-1"))

	mock.ExpectExec(`DELETE FROM "unified_requests"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, errors.Is(repo.DeletePending(context.Background(), "req-3", "stu-1"), ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRequestRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "unified_requests" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFindByIDDecodesJSONColumns(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRequestRepository(db)

	rows := sqlmock.NewRows([]string{"id", "requester_id", "type", "title", "description", "priority", "status", "materials", "room_id", "version"}).
		AddRow("req-4", "stu-1", "material_repair", "Oscilloscope", "Channel 2 is dead", "high", "pending",
			[]byte(`[{"material_id":"mat-1","quantity":1,"reason":"broken"}]`), "room-7", 2)
	mock.ExpectQuery(`SELECT \* FROM "unified_requests" WHERE id = \$1`).WillReturnRows(rows)

	got, err := repo.FindByID(context.Background(), "req-4")
	require.NoError(t, err)
	assert.Equal(t, entity.RequestTypeMaterialRepair, got.Type)
	require.Len(t, got.Materials, 1)
	assert.Equal(t, "mat-1", got.Materials[0].MaterialID)
	assert.Equal(t, 1, got.Materials[0].Quantity)
	assert.Equal(t, "room-7", got.RoomID)
	assert.Equal(t, 2, got.Version)
}

func TestListScopesToRequester(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRequestRepository(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "unified_requests" WHERE requester_id = \$1 AND status = \$2`).
		WithArgs("stu-1", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM "unified_requests" WHERE requester_id = \$1 AND status = \$2 ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "requester_id", "status"}).AddRow("req-5", "stu-1", "pending"))

	items, total, err := repo.List(context.Background(), RequestFilter{RequesterID: "stu-1", Status: "pending"}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, "req-5", items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
