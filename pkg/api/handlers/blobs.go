package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittobin/internal/logger"
	"github.com/marmos91/dittobin/pkg/blob"
)

// BlobHandler serves blobs addressed by their content identifier.
type BlobHandler struct {
	store *blob.Store
}

// NewBlobHandler creates a new blob handler.
func NewBlobHandler(store *blob.Store) *BlobHandler {
	return &BlobHandler{store: store}
}

func blobID(w http.ResponseWriter, r *http.Request) (blob.ID, bool) {
	id, err := blob.Parse(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, err.Error())
		return "", false
	}
	return id, true
}

// Put handles PUT /blobs/{id}. The request must declare its Content-Length.
// Returns 201 when bytes were written and 200 when the content was already
// stored.
func (h *BlobHandler) Put(w http.ResponseWriter, r *http.Request) {
	id, ok := blobID(w, r)
	if !ok {
		return
	}
	if r.ContentLength < 0 {
		writeJSON(w, http.StatusLengthRequired, errorResponse("Content-Length is required"))
		return
	}

	res, err := h.store.Put(r.Context(), id, uint64(r.ContentLength), r.Body)
	if err != nil {
		logger.WarnCtx(r.Context(), "Blob upload failed", logger.BlobID(id.String()), logger.Err(err))
		writeError(w, err)
		return
	}

	if res.Deduplicated {
		OK(w, res)
		return
	}
	Created(w, res)
}

// Get handles GET and HEAD /blobs/{id}. Both count as a read of the blob.
func (h *BlobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := blobID(w, r)
	if !ok {
		return
	}

	rh, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer func() { _ = rh.Close() }()

	writeBlobHeaders(w, rh)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, rh); err != nil {
		logger.WarnCtx(r.Context(), "Blob download interrupted", logger.BlobID(id.String()), logger.Err(err))
	}
}

func writeBlobHeaders(w http.ResponseWriter, rh *blob.ReadHandle) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatUint(rh.Length, 10))
	w.Header().Set("ETag", fmt.Sprintf("%q", rh.ID.String()))
	w.Header().Set("Digest", rh.ID.String())
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
}

// Info handles GET /blobs/{id}/info and returns the record view without
// touching the blob.
func (h *BlobHandler) Info(w http.ResponseWriter, r *http.Request) {
	id, ok := blobID(w, r)
	if !ok {
		return
	}
	info, err := h.store.Stat(id)
	if err != nil {
		writeError(w, err)
		return
	}
	OK(w, info)
}

// List handles GET /blobs. An optional state query parameter filters the
// records.
func (h *BlobHandler) List(w http.ResponseWriter, r *http.Request) {
	records := h.store.Records()

	if state := r.URL.Query().Get("state"); state != "" {
		filtered := records[:0]
		for _, rec := range records {
			if rec.State.String() == state {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	OK(w, records)
}

// Reset handles POST /blobs/{id}/reset, clearing a failed record so the
// next upload starts over.
func (h *BlobHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id, ok := blobID(w, r)
	if !ok {
		return
	}
	if err := h.store.Reset(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
