package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbforge-ai/vbforge"
	"github.com/vbforge-ai/vbforge/ai"
	"github.com/vbforge-ai/vbforge/store"
)

func testConfig() vbforge.Config {
	return vbforge.Config{
		MaxFileSizeMB:     50,
		MaxCodeLength:     100000,
		MaxFiles:          50,
		ConversionTimeout: 30 * time.Second,
		Retention:         time.Hour,
		StreamIdleTimeout: 50 * time.Millisecond,
		AllowedHosts:      []string{"github.com"},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.New(t.TempDir(), time.Hour, nil)
	require.NoError(t, err)
	model := ai.NewDummyModel(func(prompt string) (string, error) {
		return `{"application_type": "Service"}`, nil
	})
	return New(testConfig(), model, st, nil)
}

func zipUpload(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	for name, content := range files {
		entry, err := zw.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("zip_file", "project.zip")
	require.NoError(t, err)
	_, err = part.Write(archive.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func postConvert(t *testing.T, handler http.Handler, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestConvertAndDownload(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	body, contentType := zipUpload(t, map[string]string{
		"Module1.bas": "Sub Main()\nEnd Sub\n",
	})
	rec := postConvert(t, handler, body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp convertResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.ConversionID)
	assert.Equal(t, "/download/"+resp.ConversionID, resp.DownloadURL)

	req := httptest.NewRequest(http.MethodGet, resp.DownloadURL, nil)
	dl := httptest.NewRecorder()
	handler.ServeHTTP(dl, req)
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, "application/zip", dl.Header().Get("Content-Type"))
	assert.Contains(t, dl.Header().Get("Content-Disposition"), "MyWindowsService.zip")

	reader, err := zip.NewReader(bytes.NewReader(dl.Body.Bytes()), int64(dl.Body.Len()))
	require.NoError(t, err)
	assert.NotEmpty(t, reader.File)

	// The artifact is deleted when first served.
	again := httptest.NewRecorder()
	handler.ServeHTTP(again, httptest.NewRequest(http.MethodGet, resp.DownloadURL, nil))
	assert.Equal(t, http.StatusNotFound, again.Code)
}

func TestConvertRejectsMissingInput(t *testing.T) {
	srv := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.Close())

	rec := postConvert(t, srv.Handler(), &body, mw.FormDataContentType())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "detail")
}

func TestConvertRejectsAmbiguousInput(t *testing.T) {
	srv := newTestServer(t)

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	entry, err := zw.Create("Module1.bas")
	require.NoError(t, err)
	_, err = entry.Write([]byte("Sub Main()\nEnd Sub\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("zip_file", "project.zip")
	require.NoError(t, err)
	_, err = part.Write(archive.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("github_link", "https://github.com/owner/repo"))
	require.NoError(t, mw.Close())

	rec := postConvert(t, srv.Handler(), &body, mw.FormDataContentType())
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConvertRejectsCorruptArchive(t *testing.T) {
	srv := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("zip_file", "broken.zip")
	require.NoError(t, err)
	_, err = part.Write([]byte("this is not a zip"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := postConvert(t, srv.Handler(), &body, mw.FormDataContentType())
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadUnknownID(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/no-such-id", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndRoot(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "endpoints")
}

func TestStreamReplaysRunEvents(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Handler()

	body, contentType := zipUpload(t, map[string]string{
		"Module1.bas": "Sub Main()\nEnd Sub\n",
	})
	rec := postConvert(t, handler, body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stream := httptest.NewRecorder()
	handler.ServeHTTP(stream, httptest.NewRequest(http.MethodGet, "/stream", nil))

	assert.Equal(t, "text/event-stream", stream.Header().Get("Content-Type"))
	out := stream.Body.String()
	assert.Contains(t, out, "event: state_update")
	assert.Contains(t, out, `"state":"Completed"`)
	assert.Contains(t, out, `"stage":"pipeline"`)

	// The terminal event ends the stream.
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Contains(t, lines[len(lines)-1], "data: ")
}

func TestStreamPingsWhenIdle(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 150*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	stream := httptest.NewRecorder()
	srv.Handler().ServeHTTP(stream, req)

	assert.Contains(t, stream.Body.String(), "event: ping")
}
