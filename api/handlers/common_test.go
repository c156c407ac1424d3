package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/safetycore/types"
)

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
}

func TestWriteSuccess_CarriesRequestID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-7"))
	w := httptest.NewRecorder()

	WriteSuccess(w, r, map[string]string{"key": "value"})

	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-7", resp.RequestID)
	assert.Equal(t, map[string]any{"key": "value"}, resp.Data)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "structured error keeps its status",
			err:        types.NewError(types.ErrMissingSession, "session_id is required").WithComponent("orchestrator"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_SESSION",
			wantMsg:    "session_id is required",
		},
		{
			name:       "not found",
			err:        types.NewError(types.ErrSessionNotFound, "session not found"),
			wantStatus: http.StatusNotFound,
			wantCode:   "SESSION_NOT_FOUND",
			wantMsg:    "session not found",
		},
		{
			name:       "plain error is hidden behind internal error",
			err:        errors.New("dial tcp 10.0.0.3:6379: refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
			wantMsg:    "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("X-Request-ID", "hdr-1")

			WriteError(w, r, tt.err, nil, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantMsg, resp.Error.Message)
			assert.Equal(t, "hdr-1", resp.RequestID)
			assert.NotContains(t, w.Body.String(), "10.0.0.3")
		})
	}
}

func TestWriteError_IncludesPartialData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, nil, types.NewError(types.ErrInvalidInput, "bad"), map[string]bool{"should_block": true}, nil)

	resp := decodeResponse(t, w)
	assert.Equal(t, map[string]any{"should_block": true}, resp.Data)
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Text  string `json:"text"`
		Value any    `json:"value"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"text":"hi","value":0.5}`},
		{name: "empty", body: ``, wantErr: "request body is empty"},
		{name: "malformed", body: `{"text":`, wantErr: "invalid JSON body"},
		{name: "unknown field", body: `{"text":"hi","extra":1}`, wantErr: "unknown field"},
		{name: "trailing object", body: `{"text":"a"}{"text":"b"}`, wantErr: "single JSON object"},
		{name: "too large", body: `{"text":"` + strings.Repeat("a", maxBodyBytes) + `"}`, wantErr: "invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			err := DecodeJSONBody(r, &dst)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "hi", dst.Text)
				assert.Equal(t, json.Number("0.5"), dst.Value)
				return
			}
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrInvalidInput))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateContentType(t *testing.T) {
	for _, ct := range []string{"application/json", "application/json; charset=utf-8", "Application/JSON"} {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Content-Type", ct)
		assert.NoError(t, ValidateContentType(r), ct)
	}

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Content-Type", "text/plain")
	err := ValidateContentType(r)
	require.Error(t, err)

	var apiErr *types.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnsupportedMediaType, apiErr.HTTPStatus)
}

func TestResponseWriter_CapturesFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusInternalServerError)
	_, _ = rw.Write([]byte("x"))

	assert.Equal(t, http.StatusTeapot, rw.StatusCode)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	implicit := NewResponseWriter(httptest.NewRecorder())
	_, _ = implicit.Write([]byte("ok"))
	assert.Equal(t, http.StatusOK, implicit.StatusCode)
	assert.True(t, implicit.Written)
}
