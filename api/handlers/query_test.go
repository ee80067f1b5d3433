package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/queryflow/api"
	"github.com/BaSui01/queryflow/testutil"
	"github.com/BaSui01/queryflow/types"
	"github.com/BaSui01/queryflow/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

type fakeQueryService struct {
	submitted []string
	rejected  []string
	confirmed []string

	turn    workflow.TurnResult
	records []types.Record
	err     error
}

func (f *fakeQueryService) Submit(_ context.Context, prompt string) (workflow.TurnResult, error) {
	f.submitted = append(f.submitted, prompt)
	return f.turn, f.err
}

func (f *fakeQueryService) Reject(_ context.Context, sessionID, newPrompt string) (workflow.TurnResult, error) {
	f.rejected = append(f.rejected, sessionID+"|"+newPrompt)
	if strings.TrimSpace(newPrompt) == "" {
		return workflow.TurnResult{}, types.NewError(types.ErrBlankPrompt, "new prompt must not be blank").
			WithHTTPStatus(http.StatusBadRequest)
	}
	return f.turn, f.err
}

func (f *fakeQueryService) Confirm(_ context.Context, sessionID string) ([]types.Record, error) {
	f.confirmed = append(f.confirmed, sessionID)
	return f.records, f.err
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *ErrorInfo {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error
}

// =============================================================================
// 🧪 text2query
// =============================================================================

func TestQueryHandler_Text2Query(t *testing.T) {
	svc := &fakeQueryService{turn: workflow.TurnResult{
		SessionID: "s1",
		Result:    []types.Record{{"_id": "USA", "totalSpent": 523.06}},
	}}
	h := NewQueryHandler(svc, zap.NewNop())

	body := testutil.MustJSON(api.Text2QueryRequest{Prompt: "total revenue grouped by country, last 5"})
	w := postJSON(t, h.HandleText2Query, "/api/v1/text2query", body)

	require.Equal(t, http.StatusOK, w.Code)
	resp := testutil.MustParseJSON[api.QueryResponse](w.Body.String())
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, []types.Record{{"_id": "USA", "totalSpent": 523.06}}, resp.Result)
	assert.Equal(t, []string{"total revenue grouped by country, last 5"}, svc.submitted)
}

func TestQueryHandler_Text2QueryRejectsBadInput(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantCode    types.ErrorCode
	}{
		{"blank prompt", "application/json", `{"prompt":"   "}`, http.StatusBadRequest, types.ErrBlankPrompt},
		{"missing prompt", "application/json", `{}`, http.StatusBadRequest, types.ErrBlankPrompt},
		{"unknown field", "application/json", `{"prompt":"x","model":"gpt"}`, http.StatusBadRequest, types.ErrInvalidRequest},
		{"broken json", "application/json", `{"prompt":`, http.StatusBadRequest, types.ErrInvalidRequest},
		{"wrong content type", "text/plain", `{"prompt":"x"}`, http.StatusUnsupportedMediaType, types.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeQueryService{}
			h := NewQueryHandler(svc, nil)

			r := httptest.NewRequest(http.MethodPost, "/api/v1/text2query", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			h.HandleText2Query(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, string(tt.wantCode), decodeError(t, w).Code)
			assert.Empty(t, svc.submitted)
		})
	}
}

func TestQueryHandler_Text2QueryServiceError(t *testing.T) {
	svc := &fakeQueryService{err: types.NewError(types.ErrCacheUnavailable, "failed to save session").
		WithHTTPStatus(http.StatusServiceUnavailable).
		WithRetryable(true)}
	h := NewQueryHandler(svc, nil)

	w := postJSON(t, h.HandleText2Query, "/api/v1/text2query", `{"prompt":"x"}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	info := decodeError(t, w)
	assert.Equal(t, string(types.ErrCacheUnavailable), info.Code)
	assert.True(t, info.Retryable)
}

// =============================================================================
// 🧪 confirm_query
// =============================================================================

func TestQueryHandler_Confirm(t *testing.T) {
	svc := &fakeQueryService{records: []types.Record{{"success": "Query result confirmed"}}}
	h := NewQueryHandler(svc, nil)

	w := postJSON(t, h.HandleConfirmQuery, "/api/v1/confirm_query", `{"session_id":"s1","confirm":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	testutil.AssertJSONEqual(t, api.QueryResponse{
		SessionID: "s1",
		Result:    []types.Record{{"success": "Query result confirmed"}},
	}, testutil.MustParseJSON[api.QueryResponse](w.Body.String()))
	assert.Equal(t, []string{"s1"}, svc.confirmed)
	assert.Empty(t, svc.rejected)
}

func TestQueryHandler_ConfirmLegacyField(t *testing.T) {
	svc := &fakeQueryService{records: []types.Record{{"success": "Query result confirmed"}}}
	h := NewQueryHandler(svc, nil)

	w := postJSON(t, h.HandleConfirmQuery, "/api/v1/confirm_query", `{"session_id":"s1","is_confirm":true}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"s1"}, svc.confirmed)
}

func TestQueryHandler_Reject(t *testing.T) {
	svc := &fakeQueryService{turn: workflow.TurnResult{SessionID: "s1", Result: []types.Record{{"_id": "USA"}}}}
	h := NewQueryHandler(svc, nil)

	w := postJSON(t, h.HandleConfirmQuery, "/api/v1/confirm_query",
		`{"session_id":"s1","confirm":false,"new_prompt":"only the top 3"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"s1|only the top 3"}, svc.rejected)
	assert.Empty(t, svc.confirmed)
}

func TestQueryHandler_RejectBlankPrompt(t *testing.T) {
	svc := &fakeQueryService{}
	h := NewQueryHandler(svc, nil)

	w := postJSON(t, h.HandleConfirmQuery, "/api/v1/confirm_query", `{"session_id":"s1","confirm":false,"new_prompt":"  "}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(types.ErrBlankPrompt), decodeError(t, w).Code)
}

func TestQueryHandler_ConfirmSessionErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", types.NewError(types.ErrSessionNotFound, "session not found"), http.StatusNotFound},
		{"busy", types.NewError(types.ErrSessionBusy, "busy"), http.StatusConflict},
		{"retired", types.NewError(types.ErrSessionRetired, "retired"), http.StatusGone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewQueryHandler(&fakeQueryService{err: tt.err}, nil)
			w := postJSON(t, h.HandleConfirmQuery, "/api/v1/confirm_query", `{"session_id":"s1","confirm":true}`)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestQueryHandler_ConfirmMissingFields(t *testing.T) {
	svc := &fakeQueryService{}
	h := NewQueryHandler(svc, nil)

	w := postJSON(t, h.HandleConfirmQuery, "/api/v1/confirm_query", `{"confirm":true}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	info := decodeError(t, w)
	assert.Equal(t, string(types.ErrInvalidRequest), info.Code)
	assert.Contains(t, info.Message, "session_id")
	assert.Empty(t, svc.confirmed)
}
