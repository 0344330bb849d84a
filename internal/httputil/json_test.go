package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestReadJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		limit   int64
		want    payload
		wantErr string
	}{
		{name: "valid", body: `{"name":"a","count":2}`, want: payload{Name: "a", Count: 2}},
		{name: "empty body", body: ``},
		{name: "unknown field", body: `{"name":"a","extra":1}`, wantErr: "invalid JSON body"},
		{name: "malformed", body: `{"name":`, wantErr: "invalid JSON body"},
		{name: "trailing data", body: `{"name":"a"}{"name":"b"}`, wantErr: "trailing data"},
		{name: "too large", body: `{"name":"abcdefghijklmnop"}`, limit: 8, wantErr: "exceeds 8 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			var got payload
			err := ReadJSON(w, r, tt.limit, &got)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusConflict, "incomplete", "required fields are missing", map[string]any{"missing": []string{"sig"}})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "incomplete", body.Code)
	assert.Equal(t, "required fields are missing", body.Error)
	assert.Equal(t, []any{"sig"}, body.Details["missing"])
}
