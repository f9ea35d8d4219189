package to_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/questline/fedi/internal/to"
	"github.com/stretchr/testify/require"
)

func TestJSONNilValues(t *testing.T) {
	tc := []struct {
		name   string
		obj    any
		expect string
	}{
		{"nil slice", []string(nil), "[]"},
		{"nil map", map[string]string(nil), "{}"},
		{"nested nil slice", map[string]any{"orderedItems": []string(nil)}, "{\n  \"orderedItems\": []\n}"},
	}
	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			rr := httptest.NewRecorder()
			require.NoError(to.JSON(rr, tt.obj))
			require.Equal(tt.expect, rr.Body.String())
			require.Equal("application/json; charset=utf-8", rr.Header().Get("Content-Type"))
		})
	}
}

func TestJSONDoesNotEscapeHTML(t *testing.T) {
	require := require.New(t)
	rr := httptest.NewRecorder()
	require.NoError(to.JSON(rr, map[string]any{"content": "<p>Hello, world!</p>"}))
	require.Equal("{\n  \"content\": \"<p>Hello, world!</p>\"\n}", rr.Body.String())
}

func TestActivity(t *testing.T) {
	require := require.New(t)
	rr := httptest.NewRecorder()
	require.NoError(to.Activity(rr, http.StatusCreated, map[string]any{"type": "Create"}))
	require.Equal(http.StatusCreated, rr.Code)
	require.Equal("application/activity+json; charset=utf-8", rr.Header().Get("Content-Type"))
	require.JSONEq(`{"type":"Create"}`, rr.Body.String())
}
