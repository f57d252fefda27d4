package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liminalvillage/integral-sub001/internal/cds"
	"github.com/liminalvillage/integral-sub001/internal/cos"
	"github.com/liminalvillage/integral-sub001/internal/frs"
	"github.com/liminalvillage/integral-sub001/internal/httpapi"
	"github.com/liminalvillage/integral-sub001/internal/ledger"
	"github.com/liminalvillage/integral-sub001/internal/storage/memory"
)

type flatWeigher struct{ w float64 }

func (f flatWeigher) ParticipantWeight(context.Context, string) (float64, error) { return f.w, nil }

func newCDSService() *cds.Service {
	l := ledger.New("node-a", memory.NewLedgerStore(), nil, nil)
	return cds.New("node-a", memory.NewCDSStore(), l, nil, cds.DefaultThresholds(), flatWeigher{w: 1.0})
}

func newCOSService() *cos.Service {
	l := ledger.New("node-a", memory.NewLedgerStore(), nil, nil)
	return cos.New("node-a", memory.NewCOSStore(), l, nil, cos.DefaultBottleneckCoefficients())
}

func newFRSService() *frs.Service {
	l := ledger.New("node-a", memory.NewLedgerStore(), nil, nil)
	return frs.New("node-a", memory.NewFRSStore(), l, nil, frs.DefaultDetectorThresholds(), frs.DefaultIndexCoefficients(), nil)
}

func newRouter() http.Handler {
	return httpapi.NewRouter(httpapi.Services{CDS: newCDSService(), COS: newCOSService()}, nil, nil, 0, 0)
}

func TestHealthz_ReturnsOK(t *testing.T) {
	r := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateIssue_ReturnsCreatedIssue(t *testing.T) {
	r := newRouter()
	body, err := json.Marshal(map[string]any{"title": "fix the kiln", "description": "kiln overheats"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/cds/issues", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var issue cds.Issue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issue))
	assert.Equal(t, "fix the kiln", issue.Title)
	assert.NotEmpty(t, issue.ID)
}

func TestCreateIssue_MalformedBodyReturnsBadRequest(t *testing.T) {
	r := newRouter()
	req := httptest.NewRequest(http.MethodPost, "/cds/issues", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePlan_ReturnsPlanAndTaskDefinitions(t *testing.T) {
	r := newRouter()
	reqBody, err := json.Marshal(map[string]any{
		"versionId": "version-1",
		"batchId":   "batch-1",
		"batchSize": 2,
		"steps": []map[string]any{
			{"label": "cut", "skillTier": cos.SkillMedium, "estimatedHoursPerUnit": 1.5},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/cos/plans", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Plan            cos.ProductionPlan   `json:"plan"`
		TaskDefinitions []cos.TaskDefinition `json:"taskDefinitions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Plan.BatchSize)
	assert.Len(t, resp.TaskDefinitions, 1)
}

func TestOADRoute_RespondsServiceUnavailableWhenNotConfigured(t *testing.T) {
	r := newRouter()
	req := httptest.NewRequest(http.MethodPost, "/oad/versions/version-1/eco/compute", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFRSDashboard_MissingPacketIDReturnsBadRequest(t *testing.T) {
	r := httpapi.NewRouter(httpapi.Services{FRS: newFRSService()}, nil, nil, 0, 0)

	req := httptest.NewRequest(http.MethodGet, "/frs/dashboard", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
