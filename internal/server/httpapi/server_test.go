package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarerapp/wayfarer-server/internal/common"
	"github.com/wayfarerapp/wayfarer-server/internal/logging"
	"github.com/wayfarerapp/wayfarer-server/internal/server/auth"
	"github.com/wayfarerapp/wayfarer-server/internal/server/models"
	"github.com/wayfarerapp/wayfarer-server/internal/server/services"
)

const testSecret = "test-secret"

// -------- test fakes --------

type fakeSyncAPI struct {
	status    *services.SyncStatus
	statusErr error

	delta    *services.DeltaResult
	deltaErr error

	resolution *services.Resolution
	resolveErr error

	gotSince    int64
	gotIncoming []*models.Envelope
}

func (f *fakeSyncAPI) GetStatus(ctx context.Context, accountID, deviceID string) (*services.SyncStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeSyncAPI) ApplyDelta(ctx context.Context, accountID, deviceID string, sinceVersion int64, incoming []*models.Envelope) (*services.DeltaResult, error) {
	f.gotSince = sinceVersion
	f.gotIncoming = incoming
	return f.delta, f.deltaErr
}

func (f *fakeSyncAPI) ResolveConflict(ctx context.Context, accountID, deviceID, conflictID, entityID, chosenPayload string, isEncrypted bool) (*services.Resolution, error) {
	return f.resolution, f.resolveErr
}

type fakeExportAPI struct {
	job       *models.ExportJob
	reqErr    error
	statusErr error
}

func (f *fakeExportAPI) Request(ctx context.Context, accountID, deviceID, notifyEmail string) (*models.ExportJob, error) {
	return f.job, f.reqErr
}

func (f *fakeExportAPI) GetStatus(ctx context.Context, jobID, accountID string) (*models.ExportJob, error) {
	return f.job, f.statusErr
}

// -------- helpers --------

func newTestServer(sync SyncAPI, export ExportAPI) *Server {
	l := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewServer(":0", l, sync, export, testSecret)
}

func bearerFor(t *testing.T, accountID, deviceID string) string {
	t.Helper()
	token, err := auth.GenerateToken(accountID, deviceID, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func doRequest(t *testing.T, s *Server, method, target, authHeader string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, reader)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

// -------- tests --------

func TestHealth_NoAuthRequired(t *testing.T) {
	s := newTestServer(&fakeSyncAPI{}, &fakeExportAPI{})

	rec := doRequest(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSyncStatus_MissingToken(t *testing.T) {
	s := newTestServer(&fakeSyncAPI{}, &fakeExportAPI{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/sync/status?accountId=a&deviceId=d", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSyncStatus_InvalidToken(t *testing.T) {
	s := newTestServer(&fakeSyncAPI{}, &fakeExportAPI{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/sync/status?accountId=a&deviceId=d", "Bearer garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSyncStatus_Success(t *testing.T) {
	lastSync := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sync := &fakeSyncAPI{status: &services.SyncStatus{
		DeviceID: "dev-1", AccountID: "acct-1", LatestServerVersion: 12, LastSyncAt: &lastSync,
	}}
	s := newTestServer(sync, &fakeExportAPI{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/sync/status?accountId=acct-1&deviceId=dev-1",
		bearerFor(t, "acct-1", "dev-1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got SyncStatusDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(12), got.LatestServerVersion)
	require.NotNil(t, got.LastSyncAt)
}

func TestSyncStatus_ForeignAccountMasksAsNotFound(t *testing.T) {
	s := newTestServer(&fakeSyncAPI{}, &fakeExportAPI{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/sync/status?accountId=acct-2&deviceId=dev-1",
		bearerFor(t, "acct-1", "dev-1"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncDelta_Success(t *testing.T) {
	sync := &fakeSyncAPI{delta: &services.DeltaResult{
		ServerVersion: 3,
		Applied: []*models.Envelope{
			{ID: "trip-1", ServerVersion: 3, OriginDeviceID: "dev-1"},
		},
	}}
	s := newTestServer(sync, &fakeExportAPI{})

	body := SyncDeltaRequest{
		AccountID:    "acct-1",
		DeviceID:     "dev-1",
		SinceVersion: 2,
		Incoming:     []EnvelopeDTO{{ID: "trip-1", Payload: "p"}},
	}
	rec := doRequest(t, s, http.MethodPost, "/api/v1/sync/delta", bearerFor(t, "acct-1", "dev-1"), body)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, int64(2), sync.gotSince)
	require.Len(t, sync.gotIncoming, 1)
	assert.Equal(t, "acct-1", sync.gotIncoming[0].AccountID)

	var got SyncDeltaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(3), got.ServerVersion)
	require.Len(t, got.Applied, 1)
}

func TestSyncDelta_InvalidBody(t *testing.T) {
	s := newTestServer(&fakeSyncAPI{}, &fakeExportAPI{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/delta", bytes.NewReader([]byte("{broken")))
	req.Header.Set("Authorization", bearerFor(t, "acct-1", "dev-1"))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncDelta_ValidationErrorMapsTo400(t *testing.T) {
	sync := &fakeSyncAPI{deltaErr: common.ErrorValidation}
	s := newTestServer(sync, &fakeExportAPI{})

	body := SyncDeltaRequest{AccountID: "acct-1", DeviceID: "dev-1"}
	rec := doRequest(t, s, http.MethodPost, "/api/v1/sync/delta", bearerFor(t, "acct-1", "dev-1"), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncDelta_InternalErrorCarriesCorrelationID(t *testing.T) {
	sync := &fakeSyncAPI{deltaErr: errors.New("db down")}
	s := newTestServer(sync, &fakeExportAPI{})

	body := SyncDeltaRequest{AccountID: "acct-1", DeviceID: "dev-1"}
	rec := doRequest(t, s, http.MethodPost, "/api/v1/sync/delta", bearerFor(t, "acct-1", "dev-1"), body)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "internal error", got["error"])
	assert.NotEmpty(t, got["correlationId"])
	assert.NotContains(t, got["error"], "db down")
}

func TestResolveConflict_Success(t *testing.T) {
	resolvedAt := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	sync := &fakeSyncAPI{resolution: &services.Resolution{
		EntityID: "trip-1", ServerVersion: 9, ResolvedAt: resolvedAt,
	}}
	s := newTestServer(sync, &fakeExportAPI{})

	body := ConflictResolutionRequest{
		ConflictID: "conf-1", EntityID: "trip-1",
		ChosenPayload: "merged", AccountID: "acct-1", DeviceID: "dev-1",
	}
	rec := doRequest(t, s, http.MethodPost, "/api/v1/sync/resolve-conflict", bearerFor(t, "acct-1", "dev-1"), body)
	require.Equal(t, http.StatusOK, rec.Code)

	var got ConflictResolutionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(9), got.ServerVersion)
}

func TestResolveConflict_AlreadyResolvedMapsTo409(t *testing.T) {
	sync := &fakeSyncAPI{resolveErr: common.ErrConflictResolved}
	s := newTestServer(sync, &fakeExportAPI{})

	body := ConflictResolutionRequest{
		ConflictID: "conf-1", EntityID: "trip-1", AccountID: "acct-1", DeviceID: "dev-1",
	}
	rec := doRequest(t, s, http.MethodPost, "/api/v1/sync/resolve-conflict", bearerFor(t, "acct-1", "dev-1"), body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRequestExport_Accepted(t *testing.T) {
	export := &fakeExportAPI{job: &models.ExportJob{
		ID: "job-1", AccountID: "acct-1", DeviceID: "dev-1", Status: models.JobPending,
	}}
	s := newTestServer(&fakeSyncAPI{}, export)

	body := ExportRequest{AccountID: "acct-1", DeviceID: "dev-1", Email: "x@example.com"}
	rec := doRequest(t, s, http.MethodPost, "/api/v1/export", bearerFor(t, "acct-1", "dev-1"), body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var got ExportJobDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, string(models.JobPending), got.Status)
}

func TestExportStatus_NotFoundForForeignJob(t *testing.T) {
	export := &fakeExportAPI{statusErr: common.ErrorNotFound}
	s := newTestServer(&fakeSyncAPI{}, export)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/export/job-1/status?accountId=acct-1",
		bearerFor(t, "acct-1", "dev-1"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportStatus_Success(t *testing.T) {
	url := "https://s3/signed"
	expiresAt := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	export := &fakeExportAPI{job: &models.ExportJob{
		ID: "job-1", AccountID: "acct-1", DeviceID: "dev-1",
		Status: models.JobCompleted, DownloadURL: &url, ExpiresAt: &expiresAt,
	}}
	s := newTestServer(&fakeSyncAPI{}, export)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/export/job-1/status?accountId=acct-1",
		bearerFor(t, "acct-1", "dev-1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got ExportJobDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.DownloadURL)
	assert.Equal(t, url, *got.DownloadURL)
}
