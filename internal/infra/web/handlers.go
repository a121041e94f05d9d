package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmobrien1/mdraft/internal/domain"
	"github.com/jmobrien1/mdraft/internal/domain/model"
	"github.com/jmobrien1/mdraft/internal/usecase"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error errorBody `json:"error"`
	}{errorBody{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps domain sentinels onto the wire error vocabulary.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrFileRequired):
		writeError(w, http.StatusBadRequest, "file_required", "a file part is required")
	case errors.Is(err, domain.ErrFileEmpty):
		writeError(w, http.StatusBadRequest, "file_empty", "the uploaded file is empty")
	case errors.Is(err, domain.ErrFileTypeBlocked):
		writeError(w, http.StatusUnsupportedMediaType, "file_type_not_allowed", "this file type is not accepted")
	case errors.Is(err, domain.ErrUnsupportedMedia):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "no converter understands this file")
	case errors.Is(err, domain.ErrPayloadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "the file exceeds the size limit for its type")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many uploads, slow down")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no such conversion")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_state", "the conversion is not in a state that allows this")
	case errors.Is(err, domain.ErrQueueUnavailable):
		writeError(w, http.StatusServiceUnavailable, "queue_unavailable", "conversion intake is temporarily unavailable")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", "the request is malformed")
	case errors.Is(err, domain.ErrExtractFailed):
		writeError(w, http.StatusInternalServerError, "extract_failed", "the document could not be converted")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", "something went wrong")
	}
}

type jobView struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Filename    string            `json:"filename"`
	Progress    int               `json:"progress"`
	ResultPages int               `json:"result_pages,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	Links       map[string]string `json:"links"`
}

func viewOf(job *model.ConversionJob) jobView {
	base := "/api/v1/conversions/" + job.ID
	links := map[string]string{"self": base}
	switch job.Status {
	case model.ConversionStatusQueued:
		links["cancel"] = base + "/cancel"
	case model.ConversionStatusCompleted:
		links["result"] = base + "/result"
	case model.ConversionStatusFailed:
		links["resubmit"] = base + "/resubmit"
	}
	return jobView{
		ID:          job.ID,
		Status:      string(job.Status),
		Filename:    job.Filename,
		Progress:    job.Progress,
		ResultPages: job.ResultPages,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		ExpiresAt:   job.ExpiresAt,
		Links:       links,
	}
}

type submitView struct {
	jobView
	DuplicateOf string `json:"duplicate_of,omitempty"`
	InFlight    bool   `json:"in_flight,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no identity")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeDomainError(w, domain.ErrPayloadTooLarge)
			return
		}
		writeDomainError(w, domain.ErrFileRequired)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeDomainError(w, domain.ErrPayloadTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_argument", "could not read the file part")
		return
	}

	force, _ := strconv.ParseBool(r.FormValue("force"))
	result, err := s.intake.Submit(r.Context(), usecase.SubmitRequest{
		Filename:     header.Filename,
		DeclaredMime: header.Header.Get("Content-Type"),
		Data:         data,
		Owner:        owner,
		CallbackURL:  r.FormValue("callback_url"),
		Force:        force,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	view := submitView{jobView: viewOf(result.Job), DuplicateOf: result.DuplicateOf, InFlight: result.InFlight}
	switch {
	case result.DuplicateOf != "":
		writeJSON(w, http.StatusOK, view)
	case result.InFlight:
		writeJSON(w, http.StatusOK, view)
	default:
		writeJSON(w, http.StatusAccepted, view)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no identity")
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := s.jobs.List(r.Context(), owner, offset, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, viewOf(job))
	}
	writeJSON(w, http.StatusOK, struct {
		Data   []jobView `json:"data"`
		Offset int       `json:"offset"`
	}{Data: views, Offset: offset})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.withJob(w, r, func(job *model.ConversionJob) {
		writeJSON(w, http.StatusOK, viewOf(job))
	})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	s.withJob(w, r, func(job *model.ConversionJob) {
		if job.Status != model.ConversionStatusCompleted {
			writeError(w, http.StatusConflict, "not_ready", "the conversion has not completed")
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(job.ResultText))
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no identity")
		return
	}
	job, err := s.jobs.Cancel(r.Context(), chi.URLParam(r, "jobID"), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(job))
}

func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no identity")
		return
	}
	job, err := s.jobs.Resubmit(r.Context(), chi.URLParam(r, "jobID"), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, viewOf(job))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no identity")
		return
	}
	if err := s.jobs.Delete(r.Context(), chi.URLParam(r, "jobID"), owner); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) withJob(w http.ResponseWriter, r *http.Request, fn func(job *model.ConversionJob)) {
	owner, ok := ownerFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no identity")
		return
	}
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "jobID"), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	fn(job)
}
