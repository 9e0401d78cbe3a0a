package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Async-Ng/ElecLab-sub001/internal/apperr"
	"github.com/Async-Ng/ElecLab-sub001/internal/identity"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/entity"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/testutil"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	student  = identity.Identity{UserID: "stu-1", Roles: identity.NewRoleSet("student")}
	student2 = identity.Identity{UserID: "stu-2", Roles: identity.NewRoleSet("student")}
	admin    = identity.Identity{UserID: "adm-1", Roles: identity.NewRoleSet("admin")}
	manager  = identity.Identity{UserID: "mgr-1", Roles: identity.NewRoleSet("lab_manager")}
)

const longDescription = "Need two oscilloscopes for lab 3"

var errDB = errors.New("connection reset")

func newTestService(t *testing.T, opts ...RequestServiceOption) (*RequestService, *testutil.RequestRepo, *testutil.Publisher) {
	t.Helper()
	repo := testutil.NewRequestRepo()
	pub := &testutil.Publisher{}
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	opts = append([]RequestServiceOption{WithPublisher(pub), WithNow(func() time.Time { return fixed })}, opts...)
	return NewRequestService(repo, opts...), repo, pub
}

func seed(repo *testutil.RequestRepo, id string, t entity.RequestType, status entity.RequestStatus, requester string) {
	r := entity.UnifiedRequest{
		ID:          id,
		RequesterID: requester,
		Type:        t,
		Title:       "seeded",
		Description: longDescription,
		Priority:    entity.PriorityMedium,
		Status:      status,
	}
	if t.Family() == entity.FamilyMaterial {
		r.Materials = []entity.MaterialLine{{MaterialID: "mat-1", Quantity: 1}}
		r.RoomID = "room-1"
	}
	repo.Put(r)
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

// Scenario A
func TestCreateMaterialAllocation(t *testing.T) {
	svc, repo, pub := newTestService(t)

	req, err := svc.Create(context.Background(), student, CreateRequestInput{
		Type:        entity.RequestTypeMaterialAllocation,
		Title:       "Oscilloscopes",
		Description: longDescription,
		Materials: []entity.MaterialLine{
			{MaterialID: "mat-1", Quantity: 2, Reason: "lab 3"},
			{MaterialID: "mat-2", Quantity: 1},
		},
		Attachments: []entity.Attachment{{FileName: "ignored.pdf"}},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.RequestStatusPending, req.Status)
	assert.Len(t, req.Materials, 2)
	assert.Empty(t, req.Attachments)
	assert.Equal(t, entity.PriorityMedium, req.Priority)
	assert.Equal(t, "stu-1", req.RequesterID)
	assert.Len(t, req.ID, 32)

	stored, ok := repo.Get(req.ID)
	require.True(t, ok)
	assert.Len(t, stored.Materials, 2)
	assert.Equal(t, []string{entity.ActionCreate}, pub.Actions())
}

func TestCreateGeneralDropsMaterials(t *testing.T) {
	svc, _, _ := newTestService(t)
	req, err := svc.Create(context.Background(), student, CreateRequestInput{
		Type:        entity.RequestTypeDocuments,
		Title:       "Transcript",
		Description: longDescription,
		Priority:    entity.PriorityHigh,
		Materials:   []entity.MaterialLine{{MaterialID: "mat-1", Quantity: 1}},
		Attachments: []entity.Attachment{{FileName: "form.pdf", Size: 1024, MimeType: "application/pdf"}},
	})
	require.NoError(t, err)
	assert.Empty(t, req.Materials)
	assert.Len(t, req.Attachments, 1)
	assert.Equal(t, entity.PriorityHigh, req.Priority)
	_, isGeneral := req.Payload().(entity.GeneralPayload)
	assert.True(t, isGeneral)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	base := CreateRequestInput{
		Type:        entity.RequestTypeMaterialAllocation,
		Title:       "Parts",
		Description: longDescription,
		Materials:   []entity.MaterialLine{{MaterialID: "mat-1", Quantity: 1}},
	}

	cases := map[string]func(in *CreateRequestInput){
		"unknown type":        func(in *CreateRequestInput) { in.Type = "coffee" },
		"empty title":         func(in *CreateRequestInput) { in.Title = "   " },
		"short description":   func(in *CreateRequestInput) { in.Description = "too short" },
		"bad priority":        func(in *CreateRequestInput) { in.Priority = "urgent" },
		"no materials":        func(in *CreateRequestInput) { in.Materials = nil },
		"zero quantity":       func(in *CreateRequestInput) { in.Materials = []entity.MaterialLine{{MaterialID: "mat-1"}} },
		"missing material":    func(in *CreateRequestInput) { in.Materials = []entity.MaterialLine{{Quantity: 3}} },
		"repair without room": func(in *CreateRequestInput) { in.Type = entity.RequestTypeMaterialRepair },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			_, err := svc.Create(context.Background(), student, in)
			assertKind(t, err, apperr.KindValidation)
		})
	}

	_, err := svc.Create(context.Background(), identity.Identity{}, base)
	assertKind(t, err, apperr.KindAuthentication)
}

func TestCreateDescriptionCountsRunes(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), student, CreateRequestInput{
		Type:        entity.RequestTypeOther,
		Title:       "Phòng",
		Description: "Mượn phòng",
	})
	require.NoError(t, err)

	svc, _, _ = newTestService(t, WithMinDescriptionLength(20))
	_, err = svc.Create(context.Background(), student, CreateRequestInput{
		Type:        entity.RequestTypeOther,
		Title:       "Phòng",
		Description: "Mượn phòng",
	})
	assertKind(t, err, apperr.KindValidation)
}

func TestCreatePersistenceError(t *testing.T) {
	svc, repo, pub := newTestService(t)
	repo.FailWith = errDB
	_, err := svc.Create(context.Background(), student, CreateRequestInput{
		Type:        entity.RequestTypeOther,
		Title:       "x",
		Description: longDescription,
	})
	assertKind(t, err, apperr.KindPersistence)
	assert.True(t, errors.Is(err, errDB))
	assert.Empty(t, pub.Actions())
}

// Scenario B
func TestReviewGeneralThenHandleFails(t *testing.T) {
	svc, _, pub := newTestService(t)
	seed(svc.repo.(*testutil.RequestRepo), "req-b", entity.RequestTypeDocuments, entity.RequestStatusPending, "stu-1")

	got, err := svc.Review(context.Background(), admin, "req-b", ReviewInput{Status: entity.RequestStatusApproved, ReviewNote: "ok"})
	require.NoError(t, err)
	assert.Equal(t, entity.RequestStatusApproved, got.Status)
	assert.Equal(t, "adm-1", got.ReviewedBy)
	assert.Equal(t, "ok", got.ReviewNote)

	_, err = svc.Handle(context.Background(), admin, "req-b")
	assertKind(t, err, apperr.KindValidation)
	assert.Contains(t, err.Error(), "approved -> processing")
	assert.Equal(t, []string{"review"}, pub.Actions())
}

// Scenario C
func TestHandleMaterialRepairOnce(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seed(repo, "req-c", entity.RequestTypeMaterialRepair, entity.RequestStatusApproved, "stu-1")

	got, err := svc.Handle(context.Background(), manager, "req-c")
	require.NoError(t, err)
	assert.Equal(t, entity.RequestStatusProcessing, got.Status)
	assert.Equal(t, "mgr-1", got.HandledBy)
	assert.NotNil(t, got.HandledAt)

	_, err = svc.Handle(context.Background(), manager, "req-c")
	assertKind(t, err, apperr.KindValidation)

	got, err = svc.Complete(context.Background(), manager, "req-c", CompleteInput{CompletionNote: "replaced fuse"})
	require.NoError(t, err)
	assert.Equal(t, entity.RequestStatusCompleted, got.Status)
	assert.Equal(t, "replaced fuse", got.CompletionNote)
	assert.True(t, workflow.Terminal(got.Family(), got.Status))

	acts, err := svc.ListActivities(context.Background(), student, "req-c")
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "handle", acts[0].Action)
	assert.Equal(t, "complete", acts[1].Action)
	assert.Equal(t, "processing", acts[1].FromStatus)
}

// Scenario D
func TestCreatorCannotReview(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seed(repo, "req-d", entity.RequestTypeOther, entity.RequestStatusPending, "stu-1")

	_, err := svc.Review(context.Background(), student, "req-d", ReviewInput{Status: entity.RequestStatusApproved})
	assertKind(t, err, apperr.KindAuthorization)

	stored, _ := repo.Get("req-d")
	assert.Equal(t, entity.RequestStatusPending, stored.Status)
}

func TestAuthorizationBeforeState(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seed(repo, "req-x", entity.RequestTypeOther, entity.RequestStatusCompleted, "stu-1")

	// a non-elevated caller gets 403 even though the transition is also illegal
	_, err := svc.Handle(context.Background(), student, "req-x")
	assertKind(t, err, apperr.KindAuthorization)

	_, err = svc.Review(context.Background(), admin, "missing", ReviewInput{Status: entity.RequestStatusApproved})
	assertKind(t, err, apperr.KindNotFound)
}

// Scenario E
func TestConcurrentReviewExactlyOneWins(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seed(repo, "req-e", entity.RequestTypeDocuments, entity.RequestStatusPending, "stu-1")
	repo.FindGate = testutil.NewBarrier(2)

	outcomes := []entity.RequestStatus{entity.RequestStatusApproved, entity.RequestStatusRejected}
	errs := make([]error, len(outcomes))
	var wg sync.WaitGroup
	for i, status := range outcomes {
		wg.Add(1)
		go func(i int, status entity.RequestStatus) {
			defer wg.Done()
			_, errs[i] = svc.Review(context.Background(), admin, "req-e", ReviewInput{Status: status})
		}(i, status)
	}
	wg.Wait()

	var ok, stale int
	winner := entity.RequestStatus("")
	for i, err := range errs {
		if err == nil {
			ok++
			winner = outcomes[i]
			continue
		}
		assertKind(t, err, apperr.KindValidation)
		assert.Contains(t, err.Error(), "no longer pending")
		stale++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, stale)

	stored, _ := repo.Get("req-e")
	assert.Equal(t, winner, stored.Status)
	assert.Equal(t, 2, stored.Version)
}

func TestSelfReviewPolicy(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seed(repo, "req-s", entity.RequestTypeOther, entity.RequestStatusPending, "adm-1")
	_, err := svc.Review(context.Background(), admin, "req-s", ReviewInput{Status: entity.RequestStatusRejected})
	require.NoError(t, err)

	svc, repo, _ = newTestService(t, WithPolicy(workflow.Policy{AllowSelfReview: false}))
	seed(repo, "req-s", entity.RequestTypeOther, entity.RequestStatusPending, "adm-1")
	_, err = svc.Review(context.Background(), admin, "req-s", ReviewInput{Status: entity.RequestStatusRejected})
	assertKind(t, err, apperr.KindAuthorization)
}

func TestReviewRejectsNonReviewTarget(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seed(repo, "req-r", entity.RequestTypeMaterialAllocation, entity.RequestStatusPending, "stu-1")
	_, err := svc.Review(context.Background(), admin, "req-r", ReviewInput{Status: entity.RequestStatusCompleted})
	assertKind(t, err, apperr.KindValidation)
	assert.Contains(t, err.Error(), "pending -> completed")
}

func TestUpdateOwnership(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seed(repo, "req-u", entity.RequestTypeMaterialAllocation, entity.RequestStatusPending, "stu-1")

	title := "Updated title"
	_, err := svc.Update(context.Background(), student2, "req-u", UpdateRequestInput{Title: &title})
	assertKind(t, err, apperr.KindAuthorization)

	// elevated callers are not creators either
	_, err = svc.Update(context.Background(), admin, "req-u", UpdateRequestInput{Title: &title})
	assertKind(t, err, apperr.KindAuthorization)

	got, err := svc.Update(context.Background(), student, "req-u", UpdateRequestInput{
		Title:     &title,
		Materials: []entity.MaterialLine{{MaterialID: "mat-9", Quantity: 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Updated title", got.Title)
	require.Len(t, got.Materials, 1)
	assert.Equal(t, 4, got.Materials[0].Quantity)
	assert.Equal(t, 2, got.Version)

	_, err = svc.Update(context.Background(), student, "req-u", UpdateRequestInput{
		Materials: []entity.MaterialLine{{MaterialID: "mat-9", Quantity: 0}},
	})
	assertKind(t, err, apperr.KindValidation)

	_, err = svc.Update(context.Background(), student, "req-u", UpdateRequestInput{Title: &title, Version: 1})
	assertKind(t, err, apperr.KindValidation)
}

func TestUpdateOnlyWhilePending(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seed(repo, "req-p", entity.RequestTypeOther, entity.RequestStatusApproved, "stu-1")
	desc := strings.Repeat("x", 20)
	_, err := svc.Update(context.Background(), student, "req-p", UpdateRequestInput{Description: &desc})
	assertKind(t, err, apperr.KindValidation)
}

func TestUpdateRoomOfRepairRequest(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seed(repo, "req-room", entity.RequestTypeMaterialRepair, entity.RequestStatusPending, "stu-1")

	room := " room-2 "
	got, err := svc.Update(context.Background(), student, "req-room", UpdateRequestInput{RoomID: &room})
	require.NoError(t, err)
	assert.Equal(t, "room-2", got.RoomID)
	stored, _ := repo.Get("req-room")
	assert.Equal(t, "room-2", stored.RoomID)

	blank := "   "
	_, err = svc.Update(context.Background(), student, "req-room", UpdateRequestInput{RoomID: &blank})
	assertKind(t, err, apperr.KindValidation)
	stored, _ = repo.Get("req-room")
	assert.Equal(t, "room-2", stored.RoomID)
	assert.Equal(t, 2, stored.Version)
}

func TestUpdateAttachmentsOfGeneralRequest(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seed(repo, "req-att", entity.RequestTypeDocuments, entity.RequestStatusPending, "stu-1")

	got, err := svc.Update(context.Background(), student, "req-att", UpdateRequestInput{
		Attachments: []entity.Attachment{{FileName: "transcript.pdf", Size: 2048, MimeType: "application/pdf"}},
		Materials:   []entity.MaterialLine{{MaterialID: "mat-1", Quantity: 1}},
	})
	require.NoError(t, err)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "transcript.pdf", got.Attachments[0].FileName)
	assert.Empty(t, got.Materials)

	stored, _ := repo.Get("req-att")
	require.Len(t, stored.Attachments, 1)
	assert.Empty(t, stored.Materials)

	// an empty list clears, nil keeps
	title := "Transcript copy"
	got, err = svc.Update(context.Background(), student, "req-att", UpdateRequestInput{Title: &title})
	require.NoError(t, err)
	assert.Len(t, got.Attachments, 1)

	got, err = svc.Update(context.Background(), student, "req-att", UpdateRequestInput{Attachments: []entity.Attachment{}})
	require.NoError(t, err)
	assert.Empty(t, got.Attachments)
}

func TestDelete(t *testing.T) {
	svc, repo, pub := newTestService(t)
	seed(repo, "req-del", entity.RequestTypeOther, entity.RequestStatusPending, "stu-1")
	seed(repo, "req-done", entity.RequestTypeOther, entity.RequestStatusRejected, "stu-1")

	assertKind(t, svc.Delete(context.Background(), admin, "req-del"), apperr.KindAuthorization)
	assertKind(t, svc.Delete(context.Background(), student, "req-done"), apperr.KindValidation)
	require.NoError(t, svc.Delete(context.Background(), student, "req-del"))
	assertKind(t, svc.Delete(context.Background(), student, "req-del"), apperr.KindNotFound)

	_, ok := repo.Get("req-del")
	assert.False(t, ok)
	assert.Equal(t, []string{entity.ActionDelete}, pub.Actions())
}

func TestListScopes(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seed(repo, "a", entity.RequestTypeOther, entity.RequestStatusPending, "stu-1")
	seed(repo, "b", entity.RequestTypeOther, entity.RequestStatusPending, "stu-2")
	seed(repo, "c", entity.RequestTypeMaterialRepair, entity.RequestStatusApproved, "stu-1")

	own, err := svc.List(context.Background(), student, ListRequestsInput{Scope: ScopeOwn, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(2), own.Total)
	for _, r := range own.Items {
		assert.Equal(t, "stu-1", r.RequesterID)
	}

	_, err = svc.List(context.Background(), student, ListRequestsInput{Scope: ScopeAll})
	assertKind(t, err, apperr.KindAuthorization)

	all, err := svc.List(context.Background(), admin, ListRequestsInput{Scope: ScopeAll, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)
	assert.Len(t, all.Items, 2)
	assert.Equal(t, 2, all.TotalPages)
	assert.Equal(t, 1, all.Page)

	approved, err := svc.List(context.Background(), admin, ListRequestsInput{Scope: ScopeAll, Status: "approved"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), approved.Total)
}

func TestGetVisibility(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seed(repo, "req-g", entity.RequestTypeOther, entity.RequestStatusPending, "stu-1")

	_, err := svc.Get(context.Background(), student, "req-g")
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), admin, "req-g")
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), student2, "req-g")
	assertKind(t, err, apperr.KindAuthorization)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	svc, repo, pub := newTestService(t)
	pub.Err = errors.New("broker down")
	seed(repo, "req-pf", entity.RequestTypeOther, entity.RequestStatusPending, "stu-1")

	got, err := svc.Review(context.Background(), admin, "req-pf", ReviewInput{Status: entity.RequestStatusApproved})
	require.NoError(t, err)
	assert.Equal(t, entity.RequestStatusApproved, got.Status)
}

func TestExport(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seed(repo, "a", entity.RequestTypeMaterialAllocation, entity.RequestStatusPending, "stu-1")
	seed(repo, "b", entity.RequestTypeOther, entity.RequestStatusApproved, "stu-2")

	f, name, err := svc.Export(context.Background(), admin, ListRequestsInput{Scope: ScopeAll})
	require.NoError(t, err)
	defer f.Close()
	assert.True(t, strings.HasPrefix(name, "requests_20260301"))

	rows, err := f.GetRows("Requests")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "a", rows[1][0])
	assert.Equal(t, "mat-1 x1", rows[1][6])

	_, _, err = svc.Export(context.Background(), student, ListRequestsInput{Scope: ScopeAll})
	assertKind(t, err, apperr.KindAuthorization)
}
