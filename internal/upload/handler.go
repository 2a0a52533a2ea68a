package upload

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/filedrop/service/internal/middleware"
	"github.com/filedrop/service/internal/response"
)

// Handler holds HTTP handlers for upload endpoints.
type Handler struct {
	svc      *Service
	maxBytes int64
}

// NewHandler creates a new upload Handler. maxBytes caps the accepted request
// body size.
func NewHandler(svc *Service, maxBytes int64) *Handler {
	return &Handler{svc: svc, maxBytes: maxBytes}
}

// Submit godoc
//
//	@Summary		Upload a file
//	@Description	Accepts a multipart file, scans it for malware, and commits it on a clean verdict. Flagged files are rejected and never stored.
//	@Tags			uploads
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file	formData	file	true	"File to upload"
//	@Success		201		{object}	response.Envelope{data=Upload}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		413		{object}	response.Envelope
//	@Failure		422		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Failure		503		{object}	response.Envelope
//	@Router			/uploads [post]
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.RequestTooLarge(w, "file exceeds the maximum allowed size")
			return
		}
		response.BadRequest(w, "no file selected")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.RequestTooLarge(w, "file exceeds the maximum allowed size")
			return
		}
		response.BadRequest(w, "failed to read file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	u, err := h.svc.Submit(r.Context(), ownerID, header.Filename, contentType, data)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyFile):
			response.BadRequest(w, ErrEmptyFile.Error())
		case errors.Is(err, ErrMalwareDetected):
			response.UnprocessableEntity(w, "file rejected by malware scan")
		case errors.Is(err, ErrScanUnavailable):
			response.ServiceUnavailable(w, "malware scan unavailable, try again later")
		default:
			response.InternalError(w)
		}
		return
	}

	response.Created(w, u)
}

// List godoc
//
//	@Summary		List uploads
//	@Description	Returns the caller's uploads, newest first.
//	@Tags			uploads
//	@Produce		json
//	@Security		BearerAuth
//	@Param			limit	query		int	false	"Maximum records to return (default 20, max 100)"
//	@Success		200		{object}	response.Envelope{data=[]Upload}
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/uploads [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	uploads, err := h.svc.List(r.Context(), ownerID, limit)
	if err != nil {
		response.InternalError(w)
		return
	}
	if uploads == nil {
		uploads = []*Upload{}
	}
	response.OK(w, uploads)
}

// Delete godoc
//
//	@Summary		Delete an upload
//	@Description	Removes the stored object and its metadata. Idempotent: deleting an unknown id succeeds.
//	@Tags			uploads
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Upload ID"
//	@Success		200	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/uploads/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserID(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), ownerID, id); err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]bool{"deleted": true})
}
