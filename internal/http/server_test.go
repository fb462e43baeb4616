package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incomes/internal/core"
	"incomes/internal/log"
	"incomes/internal/services"
	"incomes/internal/storage"
)

const januaryCSV = "Name,Company,Date,Total\n" +
	"Salary,Acme,2024-01-31,\"$2,000.00\"\n" +
	"Fee,Globex,2024-01-15,150\n" +
	"Tip,Globex,not a date,5.25\n"

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "incomes.db"))
	require.NoError(t, err)
	svc := services.NewIncomeService(repo, services.Options{})
	t.Cleanup(func() { _ = svc.Close() })

	if opts.Logger == nil {
		opts.Logger = log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
	}
	srv := NewServer(":0", svc, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func upload(t *testing.T, srv *Server, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, files)
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", ct)
	return do(t, srv, req)
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Options{})
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	}
}

func TestUploadAndRead(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := upload(t, srv, map[string]string{"jan.csv": januaryCSV, "notes.txt": "hello"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	up := decode[uploadResponse](t, rr)
	assert.NotEmpty(t, up.BatchID)
	assert.Equal(t, 3, up.Inserted)
	require.Len(t, up.Files, 2)
	for _, f := range up.Files {
		switch f.File {
		case "jan.csv":
			assert.Equal(t, 3, f.Inserted)
			assert.Equal(t, 1, f.NullDates)
			assert.Empty(t, f.Error)
		case "notes.txt":
			assert.Contains(t, f.Error, "unsupported file format")
		default:
			t.Errorf("unexpected file %q", f.File)
		}
	}

	rr = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/records?company=Globex", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	recs := decode[recordsResponse](t, rr)
	assert.Equal(t, 2, recs.Count)
	assert.Equal(t, "$155.25", recs.Total)
	assert.Equal(t, "Fee", recs.Records[0].Name)
	assert.True(t, recs.Records[1].Date.IsNull())

	rr = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/records?from=2024-01-20", nil))
	recs = decode[recordsResponse](t, rr)
	require.Equal(t, 1, recs.Count)
	assert.Equal(t, core.NewDate(2024, 1, 31).String(), recs.Records[0].Date.String())

	rr = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/companies", nil))
	assert.JSONEq(t, `{"companies":["Acme","Globex"]}`, rr.Body.String())

	rr = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var sum struct {
		Count      int    `json:"count"`
		TotalLabel string `json:"total_label"`
		NullDates  int    `json:"null_dates"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sum))
	assert.Equal(t, 3, sum.Count)
	assert.Equal(t, "$2,155.25", sum.TotalLabel)
	assert.Equal(t, 1, sum.NullDates)
}

func TestUploadValidation(t *testing.T) {
	srv := newTestServer(t, Options{MaxUploadBytes: 2048})

	rr := do(t, srv, httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader("x")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body, ct := multipartBody(t, map[string]string{})
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", ct)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, req).Code)

	rr = upload(t, srv, map[string]string{"big.csv": strings.Repeat("a", 4096)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	rr = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/uploads", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestInvalidFilter(t *testing.T) {
	srv := newTestServer(t, Options{})
	for _, target := range []string{
		"/api/records?from=yesterday",
		"/api/export?to=31/31/2024",
		"/api/summary?from=2024-02-01&to=2024-01-01",
	} {
		rr := do(t, srv, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestExport(t *testing.T) {
	srv := newTestServer(t, Options{})
	require.Equal(t, http.StatusOK, upload(t, srv, map[string]string{"jan.csv": januaryCSV}).Code)

	rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/api/export?format=csv&company=Acme", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "income_data.csv")
	assert.Equal(t, "Date,Total,Name,Company\n2024-01-31,2000,Salary,Acme\n", rr.Body.String())

	rr = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/export?format=json&name=Fee", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `[{"date":"2024-01-15","total":150,"name":"Fee","company":"Globex"}]`, rr.Body.String())

	rr = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/export?format=xlsx", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")), "xlsx is a zip container")
}

func TestDeleteAndClear(t *testing.T) {
	srv := newTestServer(t, Options{})
	require.Equal(t, http.StatusOK, upload(t, srv, map[string]string{"jan.csv": januaryCSV}).Code)

	rr := do(t, srv, httptest.NewRequest(http.MethodDelete, "/api/companies/Globex", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"company":"Globex","removed":2}`, rr.Body.String())

	rr = do(t, srv, httptest.NewRequest(http.MethodDelete, "/api/companies/Nobody", nil))
	assert.JSONEq(t, `{"company":"Nobody","removed":0}`, rr.Body.String())

	rr = do(t, srv, httptest.NewRequest(http.MethodDelete, "/api/companies/%20", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, srv, httptest.NewRequest(http.MethodPost, "/api/clear", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"removed":1}`, rr.Body.String())

	rr = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/records", nil))
	assert.Equal(t, 0, decode[recordsResponse](t, rr).Count)
}

func TestWritesAreRateLimited(t *testing.T) {
	srv := newTestServer(t, Options{WritesPerMinute: 2})

	for i := 0; i < 2; i++ {
		rr := do(t, srv, httptest.NewRequest(http.MethodPost, "/api/clear", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := do(t, srv, httptest.NewRequest(http.MethodPost, "/api/clear", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// Reads are never limited.
	rr = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/companies", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestBasicAuth(t *testing.T) {
	srv := newTestServer(t, Options{User: "admin", Password: "s3cret"})

	rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/api/companies", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/companies", nil)
	req.SetBasicAuth("admin", "s3cret")
	assert.Equal(t, http.StatusOK, do(t, srv, req).Code)

	rr = do(t, srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code, "health checks stay open")
}

type downService struct{ IncomeService }

func (downService) Ping(context.Context) error { return errors.New("database is locked") }

func (downService) Companies(context.Context) ([]string, error) {
	return nil, errors.New("database is locked")
}

func TestStoreFailures(t *testing.T) {
	srv := NewServer(":0", downService{}, Options{Logger: log.New(log.Config{Level: slog.LevelError, Output: io.Discard})})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/companies", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rr.Body.String())
}

func TestParseFilter(t *testing.T) {
	f, err := parseFilter(map[string][]string{
		"company": {"  Acme\x00 "},
		"from":    {"01/02/2024"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme", f.Company)
	assert.Equal(t, core.NewDate(2024, 1, 2), f.From)
	assert.True(t, f.To.IsNull())
}
