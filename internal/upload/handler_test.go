package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filedrop/service/internal/middleware"
	"github.com/filedrop/service/internal/response"
	"github.com/filedrop/service/internal/scan"
)

func newTestRouter(f *fixture) *chi.Mux {
	h := NewHandler(f.svc, 1<<20)
	r := chi.NewRouter()
	r.Post("/uploads", h.Submit)
	r.Get("/uploads", h.List)
	r.Delete("/uploads/{id}", h.Delete)
	return r
}

func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.UserIDKey, userID))
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestSubmitHandlerCreatesUpload(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)

	body, contentType := multipartBody(t, "cat.png", "image/png", []byte("png bytes"))
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(req, "owner-1"))

	require.Equal(t, http.StatusCreated, rec.Code)
	var env response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Success)
}

func TestSubmitHandlerMapsMalwareTo422(t *testing.T) {
	f := newFixture(t)
	f.scanner.result = scan.Result{Verdict: scan.VerdictFlagged, Stats: scan.Stats{Malicious: 1}}
	router := newTestRouter(f)

	body, contentType := multipartBody(t, "evil.exe", "application/octet-stream", []byte("bad"))
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(req, "owner-1"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSubmitHandlerMapsScanOutageTo503(t *testing.T) {
	f := newFixture(t)
	f.scanner.err = scan.ErrTimeout
	router := newTestRouter(f)

	body, contentType := multipartBody(t, "doc.pdf", "application/pdf", []byte("pdf"))
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(req, "owner-1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitHandlerRejectsMissingFile(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)

	req := httptest.NewRequest(http.MethodPost, "/uploads", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(req, "owner-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitHandlerRequiresAuthContext(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)

	body, contentType := multipartBody(t, "a.txt", "text/plain", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteHandlerIsIdempotent(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)

	u, err := f.svc.Submit(context.Background(), "owner-1", "a.png", "image/png", []byte("x"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodDelete, "/uploads/"+u.ID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, asUser(req, "owner-1"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestListHandlerReturnsEmptyArray(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)

	req := httptest.NewRequest(http.MethodGet, "/uploads?limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(req, "owner-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())
}
