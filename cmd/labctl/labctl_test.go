package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Async-Ng/ElecLab-sub001/internal/lab/entity"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/events"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/handler"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/service"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type catalogStub struct{}

func (catalogStub) ListMaterials(context.Context) ([]entity.Material, error) {
	return []entity.Material{{ID: "mat-1", Code: "OSC-01", Name: "Oscilloscope", Unit: "pcs", Quantity: 4}}, nil
}

func (catalogStub) ListRooms(context.Context) ([]entity.Room, error) {
	return []entity.Room{{ID: "room-1", Code: "B1-203", Name: "Lab 3"}}, nil
}

func (catalogStub) ListUsers(context.Context) ([]entity.User, error) {
	return []entity.User{{ID: "stu-1", Name: "Student One"}}, nil
}

func newServer(t *testing.T) string {
	t.Helper()
	repo := testutil.NewRequestRepo()
	hub := events.NewHub(nil)
	svc := &service.Services{
		Request: service.NewRequestService(repo, service.WithPublisher(hub)),
		Catalog: service.NewCatalogService(catalogStub{}, nil, 0, nil),
	}
	router := testutil.SetupRouter()
	handler.RegisterRoutes(router.Group("/api/v1"), handler.NewHandlers(svc, hub), "")
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCreateReviewAndList(t *testing.T) {
	base := newServer(t)

	out, err := run(t, "--base-url", base, "--user", "stu-1", "--role", "student", "-o", "json",
		"requests", "create",
		"--type", "material_allocation",
		"--title", "Oscilloscope for lab 3",
		"--description", "Need two oscilloscopes for the signals course",
		"--room", "room-1",
		"--material", "mat-1:2:signals lab",
	)
	require.NoError(t, err, out)
	var created entity.UnifiedRequest
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, entity.RequestStatusPending, created.Status)
	require.Len(t, created.Materials, 1)
	assert.Equal(t, 2, created.Materials[0].Quantity)

	out, err = run(t, "--base-url", base, "--user", "mgr-1", "--role", "lab_manager",
		"requests", "review", created.ID, "--status", "approved", "--note", "ok")
	require.NoError(t, err, out)
	assert.Contains(t, out, "approved")

	out, err = run(t, "--base-url", base, "--user", "mgr-1", "--role", "lab_manager", "requests", "list")
	require.NoError(t, err, out)
	assert.Contains(t, out, created.ID)
	assert.Contains(t, out, "1 of 1")

	out, err = run(t, "--base-url", base, "--user", "stu-2", "--role", "student", "requests", "list")
	require.NoError(t, err, out)
	assert.NotContains(t, out, created.ID)
}

func TestUsersNeedsElevatedRole(t *testing.T) {
	base := newServer(t)

	_, err := run(t, "--base-url", base, "--user", "stu-1", "--role", "student", "users")
	assert.Error(t, err)

	out, err := run(t, "--base-url", base, "--user", "adm-1", "--role", "admin", "users")
	require.NoError(t, err)
	assert.Contains(t, out, "Student One")

	_, err = run(t, "--base-url", base, "--user", "adm-1", "--role", "admin", "--restricted", "users")
	assert.Error(t, err)
}

func TestRootRejectsBadOutput(t *testing.T) {
	_, err := run(t, "--base-url", "http://127.0.0.1:1", "--user", "u", "-o", "yaml", "rooms")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "output format"))
}

func TestParseMaterials(t *testing.T) {
	lines, err := parseMaterials([]string{"mat-1:2", " mat-2 : 1 : spare: broken probe"})
	require.NoError(t, err)
	assert.Equal(t, []entity.MaterialLine{
		{MaterialID: "mat-1", Quantity: 2},
		{MaterialID: "mat-2", Quantity: 1, Reason: "spare: broken probe"},
	}, lines)

	for _, bad := range []string{"mat-1", ":2", "mat-1:x", "mat-1:0"} {
		_, err := parseMaterials([]string{bad})
		assert.Error(t, err, bad)
	}
}
