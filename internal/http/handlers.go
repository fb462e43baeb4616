package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"incomes/internal/core"
	"incomes/internal/ingest"
	"incomes/internal/log"
	"incomes/internal/report"
)

type rowErrorResponse struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type fileResponse struct {
	File       string             `json:"file"`
	Rows       int                `json:"rows"`
	Inserted   int                `json:"inserted"`
	Duplicates int                `json:"duplicates"`
	NullDates  int                `json:"null_dates"`
	RowErrors  []rowErrorResponse `json:"row_errors,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type uploadResponse struct {
	BatchID  string         `json:"batch_id"`
	Inserted int            `json:"inserted"`
	Files    []fileResponse `json:"files"`
}

type recordResponse struct {
	Date    core.Date `json:"date"`
	Total   float64   `json:"total"`
	Name    string    `json:"name"`
	Company string    `json:"company"`
}

type recordsResponse struct {
	Count   int              `json:"count"`
	Total   string           `json:"total"`
	Records []recordResponse `json:"records"`
}

func newUploadResponse(rep ingest.Report) uploadResponse {
	out := uploadResponse{BatchID: rep.BatchID, Inserted: rep.Inserted(), Files: make([]fileResponse, 0, len(rep.Files))}
	for _, f := range rep.Files {
		fr := fileResponse{
			File:       f.File,
			Rows:       f.Rows,
			Inserted:   f.Inserted,
			Duplicates: f.Duplicates,
			NullDates:  f.NullDates,
		}
		for _, re := range f.RowErrors {
			fr.RowErrors = append(fr.RowErrors, rowErrorResponse{Row: re.Row, Error: re.Err.Error()})
		}
		if f.Err != nil {
			fr.Error = f.Err.Error()
		}
		out.Files = append(out.Files, fr)
	}
	return out
}

// handleUpload ingests every file of the multipart "files" field. The
// response lists per-file outcomes; it is 500 only when the store failed.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || errors.Is(err, multipart.ErrMessageTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.opts.MaxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart/form-data with a files field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	uploads := make([]ingest.Upload, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("read %s: %v", fh.Filename, err))
			return
		}
		uploads = append(uploads, ingest.Upload{Name: filepath.Base(fh.Filename), Data: data})
	}

	rep, err := s.svc.Import(ctx, uploads...)
	if err != nil {
		log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, "Upload not fully stored", err, log.ComponentHTTP, log.OpImport, nil)
		writeJSON(w, http.StatusInternalServerError, newUploadResponse(rep))
		return
	}
	writeJSON(w, http.StatusOK, newUploadResponse(rep))
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := s.svc.Records(r.Context(), f)
	if err != nil {
		s.internalError(w, r, "Failed to list records", log.OpList, err)
		return
	}

	out := recordsResponse{
		Count:   len(recs),
		Total:   report.Summarize(recs).TotalLabel,
		Records: make([]recordResponse, 0, len(recs)),
	}
	for _, rec := range recs {
		out.Records = append(out.Records, recordResponse{Date: rec.Date, Total: rec.Total, Name: rec.Name, Company: rec.Company})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.svc.Companies(r.Context())
	if err != nil {
		s.internalError(w, r, "Failed to list companies", log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"companies": companies})
}

func (s *Server) handleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	company := sanitizeInput(r.PathValue("company"))
	n, err := s.svc.DeleteCompany(r.Context(), company)
	if errors.Is(err, core.ErrEmptyCompany) {
		writeError(w, http.StatusBadRequest, "company is required")
		return
	}
	if err != nil {
		s.internalError(w, r, "Failed to delete company", log.OpDelete, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"company": company, "removed": n})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Clear(r.Context())
	if err != nil {
		s.internalError(w, r, "Failed to clear store", log.OpClear, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": n})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, format, err := s.svc.Export(r.Context(), r.URL.Query().Get("format"), f)
	if err != nil {
		s.internalError(w, r, "Failed to export", log.OpExport, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="income_data.%s"`, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := s.svc.Summary(r.Context(), f)
	if err != nil {
		s.internalError(w, r, "Failed to summarize", log.OpSummary, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg, op string, err error) {
	ctx := r.Context()
	log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, msg, err, log.ComponentHTTP, op, nil)
	writeError(w, http.StatusInternalServerError, "internal error")
}
