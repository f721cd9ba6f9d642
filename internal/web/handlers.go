package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/partsync/internal/core"
)

// multipartOverhead is allowed on top of the file size limit for form
// boundaries and headers.
const multipartOverhead = 1 << 20

// ListProductResponse is the body of GET /products.
type ListProductResponse struct {
	Status   string         `json:"status"`
	Results  int            `json:"results"`
	Products []core.Product `json:"products"`
}

// UploadResponse is the body of an accepted upload.
type UploadResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "Hello World, health check"})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	skip, err := parseIntParam(r, "skip", 0)
	if err != nil {
		respondError(w, r, err)
		return
	}
	limit, err := parseIntParam(r, "limit", core.DefaultListLimit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	q := core.ProductQuery{
		Skip:       skip,
		Limit:      limit,
		PartNumber: strings.TrimSpace(r.URL.Query().Get("part_number")),
		BranchID:   strings.TrimSpace(r.URL.Query().Get("branch_id")),
	}

	products, err := s.service.ListProducts(r.Context(), q)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, ListProductResponse{
		Status:   "Success",
		Results:  len(products),
		Products: products,
	})
}

// handleCreateProduct upserts one product from a JSON object whose keys are
// the CSV column names.
func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, multipartOverhead)

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		respondError(w, r, fmt.Errorf("%w: invalid json body: %v", core.ErrValidation, err))
		return
	}

	raw, err := rawRowFromJSON(body)
	if err != nil {
		respondError(w, r, err)
		return
	}

	product, created, err := s.service.UpsertProduct(r.Context(), raw)
	if err != nil {
		respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, product)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize))
			return
		}
		respondError(w, r, fmt.Errorf("%w: invalid multipart form: %v", core.ErrNoFile, err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, core.ErrNoFile)
		return
	}
	defer file.Close()

	jobID, err := s.service.SubmitUpload(r.Context(), header.Filename, file)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, UploadResponse{
		Message: "File uploaded successfully",
		JobID:   jobID,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	status, err := s.service.JobStatus(r.Context(), jobID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// parseIntParam parses a non-negative integer query parameter with a default.
func parseIntParam(r *http.Request, name string, defaultVal int) (int, error) {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: %s=%q", core.ErrInvalidQuery, name, val)
	}
	return i, nil
}

// rawRowFromJSON converts a JSON object into a row keyed by column name.
// Null values are treated as absent.
func rawRowFromJSON(body map[string]any) (core.RawRow, error) {
	raw := make(core.RawRow, len(body))
	for key, v := range body {
		switch val := v.(type) {
		case nil:
		case string:
			raw[key] = val
		case json.Number:
			raw[key] = val.String()
		case bool:
			raw[key] = strconv.FormatBool(val)
		default:
			return nil, &core.RowError{Line: 1, Errors: []core.ValidationError{{
				Field:   key,
				Message: "must be a string or number",
			}}}
		}
	}
	return raw, nil
}
