package v1

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shimmeringbee/wotbind/binder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindingRoutes(t *testing.T) {
	t.Run("creating a binding returns its identifier and makes it listable", func(t *testing.T) {
		router, _, _ := newTestRouter(t, &stubTransport{response: []byte(`true`)})

		req := httptest.NewRequest("POST", "/bindings", strings.NewReader(`{"bind":"urn:thing:lamp.enabled"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusCreated, rr.Code)

		var created createBindingResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
		require.NotEmpty(t, created.Identifier)

		req = httptest.NewRequest("GET", "/bindings", nil)
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var records []binder.Record
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
		require.Len(t, records, 1)
		assert.Equal(t, created.Identifier, records[0].ID)
		assert.Equal(t, "urn:thing:lamp", records[0].Thing)
		assert.Equal(t, "enabled", records[0].Property)
	})

	t.Run("creating a binding for an unknown thing is a 400", func(t *testing.T) {
		router, _, _ := newTestRouter(t, &stubTransport{})

		req := httptest.NewRequest("POST", "/bindings", strings.NewReader(`{"bind":"urn:thing:unknown.enabled"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("creating a binding with malformed json is a 400", func(t *testing.T) {
		router, _, _ := newTestRouter(t, &stubTransport{})

		req := httptest.NewRequest("POST", "/bindings", strings.NewReader(`{`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("deleting a binding is a 204 once and a 404 after", func(t *testing.T) {
		router, _, b := newTestRouter(t, &stubTransport{response: []byte(`true`)})

		req := httptest.NewRequest("POST", "/bindings", strings.NewReader(`{"bind":"urn:thing:lamp.enabled"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusCreated, rr.Code)

		var created createBindingResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

		req = httptest.NewRequest("DELETE", "/bindings/"+created.Identifier, nil)
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)

		req = httptest.NewRequest("DELETE", "/bindings/"+created.Identifier, nil)
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNotFound, rr.Code)

		assert.Empty(t, b.Bindings())
	})
}
