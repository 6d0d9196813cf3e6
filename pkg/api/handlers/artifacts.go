package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittobin/internal/logger"
	"github.com/marmos91/dittobin/pkg/blob"
	"github.com/marmos91/dittobin/pkg/gc"
)

// ChecksumHeader lets a client assert the sha256 of an artifact upload.
const ChecksumHeader = "X-Checksum-Sha256"

// ArtifactHandler serves artifacts addressed by repository path. Bytes go to
// the blob store under their digest; the path to digest mapping goes to the
// index the collector scans.
type ArtifactHandler struct {
	store      *blob.Store
	index      gc.Indexer
	properties []string
	spoolDir   string
}

// NewArtifactHandler creates a new artifact handler. Uploads record their
// digest under properties[0]; reads resolve any of properties.
func NewArtifactHandler(store *blob.Store, index gc.Indexer, properties []string, spoolDir string) *ArtifactHandler {
	if len(properties) == 0 {
		properties = gc.DefaultProperties()
	}
	return &ArtifactHandler{
		store:      store,
		index:      index,
		properties: properties,
		spoolDir:   spoolDir,
	}
}

// artifactPath returns the cleaned wildcard path of the request.
func artifactPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := strings.TrimPrefix(path.Clean("/"+chi.URLParam(r, "*")), "/")
	if p == "" {
		BadRequest(w, "artifact path is required")
		return "", false
	}
	return p, true
}

// ArtifactResponse describes a stored artifact.
type ArtifactResponse struct {
	Path         string  `json:"path"`
	ID           blob.ID `json:"id"`
	Length       uint64  `json:"length"`
	Deduplicated bool    `json:"deduplicated"`
}

// Put handles PUT /artifacts/*. The body is spooled to disk while its
// digest is computed, stored, then indexed under the path.
func (h *ArtifactHandler) Put(w http.ResponseWriter, r *http.Request) {
	p, ok := artifactPath(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	spool, err := os.CreateTemp(h.spoolDir, "dittobin-upload-*")
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to create upload spool", logger.ArtifactPath(p), logger.Err(err))
		InternalServerError(w, "Failed to buffer upload")
		return
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	id, n, err := blob.FromReader(io.TeeReader(r.Body, spool))
	if err != nil {
		BadRequest(w, fmt.Sprintf("Failed to read upload: %v", err))
		return
	}
	if want := r.Header.Get(ChecksumHeader); want != "" && !strings.EqualFold(want, id.Hex()) {
		writeError(w, fmt.Errorf("%w: declared %s, got %s", blob.ErrDigestMismatch, want, id.Hex()))
		return
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		InternalServerError(w, "Failed to rewind upload")
		return
	}

	res, err := h.store.Put(ctx, id, uint64(n), spool)
	if err != nil {
		logger.WarnCtx(ctx, "Artifact upload failed", logger.ArtifactPath(p), logger.BlobID(id.String()), logger.Err(err))
		writeError(w, err)
		return
	}

	prop := h.properties[0]
	value := id.String()
	if strings.EqualFold(prop, id.Algorithm()) {
		value = id.Hex()
	}
	if err := h.index.SetProperty(ctx, p, prop, value); err != nil {
		logger.ErrorCtx(ctx, "Failed to index artifact", logger.ArtifactPath(p), logger.BlobID(id.String()), logger.Err(err))
		InternalServerError(w, "Failed to index artifact")
		return
	}

	logger.DebugCtx(ctx, "Artifact stored",
		logger.ArtifactPath(p), logger.BlobID(id.String()),
		logger.Size(res.Length), "deduplicated", res.Deduplicated)

	resp := ArtifactResponse{Path: p, ID: res.ID, Length: res.Length, Deduplicated: res.Deduplicated}
	if res.Deduplicated {
		OK(w, resp)
		return
	}
	Created(w, resp)
}

// Get handles GET and HEAD /artifacts/*.
func (h *ArtifactHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := artifactPath(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	value, prop, found, err := h.index.Lookup(ctx, p, h.properties)
	if err != nil {
		logger.ErrorCtx(ctx, "Artifact lookup failed", logger.ArtifactPath(p), logger.Err(err))
		InternalServerError(w, "Failed to look up artifact")
		return
	}
	if !found {
		NotFound(w, "Artifact not found")
		return
	}
	id, err := gc.ResolveID(prop, value)
	if err != nil {
		logger.WarnCtx(ctx, "Artifact carries an invalid digest", logger.ArtifactPath(p), logger.KeyProperty, prop, logger.Err(err))
		InternalServerError(w, "Artifact index entry is corrupt")
		return
	}

	rh, err := h.store.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer func() { _ = rh.Close() }()

	writeBlobHeaders(w, rh)
	w.Header().Set(ChecksumHeader, id.Hex())
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, rh); err != nil {
		logger.WarnCtx(ctx, "Artifact download interrupted", logger.ArtifactPath(p), logger.Err(err))
	}
}

// Delete handles DELETE /artifacts/*. Only the path is dropped; the blob is
// reclaimed by the collector once nothing references it.
func (h *ArtifactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := artifactPath(w, r)
	if !ok {
		return
	}
	if err := h.index.RemoveNode(r.Context(), p); err != nil {
		logger.ErrorCtx(r.Context(), "Failed to remove artifact", logger.ArtifactPath(p), logger.Err(err))
		InternalServerError(w, "Failed to remove artifact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
