package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/PhotonicGluon/Excalibur/internal/logger"
	"github.com/PhotonicGluon/Excalibur/pkg/api/middleware"
	"github.com/PhotonicGluon/Excalibur/pkg/vault"
)

// FilesHandler serves the per-user file tree. Every route runs behind the
// credentials middleware; the username always comes from the session.
type FilesHandler struct {
	Vault *vault.Vault

	// MaxFileSize caps upload bodies, in bytes.
	MaxFileSize int64
}

// NewFilesHandler creates the file endpoints handler.
func NewFilesHandler(v *vault.Vault, maxFileSize int64) *FilesHandler {
	return &FilesHandler{Vault: v, MaxFileSize: maxFileSize}
}

// pathParam returns the wildcard tail of the route. An empty tail addresses
// the user's root directory.
func pathParam(r *http.Request) string {
	path := chi.URLParam(r, "*")
	if path == "" {
		return "."
	}
	return path
}

// Upload stores an uploaded container file.
//
// POST /api/files/upload/{path}?name=<file>.exef&force=<bool>
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	name := r.URL.Query().Get("name")
	force := queryFlag(r, "force")

	body := http.MaxBytesReader(w, r.Body, h.MaxFileSize)
	err := h.Vault.Upload(session.Username, pathParam(r), name, force, body)

	var maxBytesErr *http.MaxBytesError
	switch {
	case err == nil:
		writeText(w, http.StatusCreated, "File uploaded")
	case errors.Is(err, vault.ErrBadSuffix):
		middleware.WriteDetail(w, http.StatusExpectationFailed, "Uploaded file needs to end with `.exef`")
	case errors.Is(err, vault.ErrInvalidPath):
		middleware.WriteDetail(w, http.StatusNotAcceptable, "Illegal or invalid path")
	case errors.Is(err, vault.ErrNotFound):
		middleware.WriteDetail(w, http.StatusNotFound, "Path not found or is not a directory")
	case errors.Is(err, vault.ErrPathTooLong):
		middleware.WriteDetail(w, http.StatusRequestURITooLong, "File path too long")
	case errors.Is(err, vault.ErrExists):
		middleware.WriteDetail(w, http.StatusConflict, "File already exists. Use `force` parameter to overwrite.")
	case errors.As(err, &maxBytesErr):
		middleware.WriteDetail(w, http.StatusRequestEntityTooLarge, "File too large")
	default:
		logger.ErrorCtx(r.Context(), "upload failed", logger.Filename(name), logger.Err(err))
		middleware.WriteDetail(w, http.StatusInternalServerError, "Upload failed")
	}
}

// Mkdir creates a directory. The body is the new directory name as a JSON
// string.
//
// POST /api/files/mkdir/{path}
func (h *FilesHandler) Mkdir(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())

	name, ok := decodeStringBody(w, r)
	if !ok {
		return
	}

	err := h.Vault.Mkdir(session.Username, pathParam(r), name)
	switch {
	case err == nil:
		writeText(w, http.StatusCreated, "Directory created")
	case errors.Is(err, vault.ErrInvalidName):
		middleware.WriteDetail(w, http.StatusBadRequest, "Illegal or invalid directory name")
	case errors.Is(err, vault.ErrInvalidPath):
		middleware.WriteDetail(w, http.StatusNotAcceptable, "Illegal or invalid path")
	case errors.Is(err, vault.ErrNotFound):
		middleware.WriteDetail(w, http.StatusNotFound, "Path not found or is not a directory")
	case errors.Is(err, vault.ErrExists):
		middleware.WriteDetail(w, http.StatusConflict, "Directory already exists")
	case errors.Is(err, vault.ErrPathTooLong):
		middleware.WriteDetail(w, http.StatusRequestURITooLong, "Directory path too long")
	default:
		logger.ErrorCtx(r.Context(), "mkdir failed", logger.Filename(name), logger.Err(err))
		middleware.WriteDetail(w, http.StatusInternalServerError, "Directory creation failed")
	}
}

// Download streams a stored container back to the client.
//
// GET /api/files/download/{path}
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())

	f, info, err := h.Vault.Open(session.Username, pathParam(r))
	switch {
	case err == nil:
	case errors.Is(err, vault.ErrInvalidPath):
		middleware.WriteDetail(w, http.StatusNotAcceptable, "Illegal or invalid path")
		return
	default:
		middleware.WriteDetail(w, http.StatusNotFound, "Path not found or is not a file")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		logger.WarnCtx(r.Context(), "download interrupted",
			logger.Filename(pathParam(r)), logger.Size(info.Size()), logger.Err(err))
	}
}

// List returns a directory listing.
//
// GET /api/files/list/{path}?with_exef_header=<bool>
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	withHeader := queryFlag(r, "with_exef_header")

	listing, err := h.Vault.List(session.Username, pathParam(r), withHeader)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, listing)
	case errors.Is(err, vault.ErrInvalidPath):
		middleware.WriteDetail(w, http.StatusNotAcceptable, "Illegal or invalid path")
	default:
		middleware.WriteDetail(w, http.StatusNotFound, "Path not found or is not a directory")
	}
}

// Delete removes a file, or a directory when as_dir is set.
//
// DELETE /api/files/delete/{path}?as_dir=<bool>&force=<bool>
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())

	isDir, err := h.Vault.Delete(session.Username, pathParam(r), queryFlag(r, "as_dir"), queryFlag(r, "force"))
	switch {
	case err == nil && isDir:
		w.WriteHeader(http.StatusAccepted)
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, vault.ErrInvalidPath):
		middleware.WriteDetail(w, http.StatusNotAcceptable, "Illegal or invalid path")
	case errors.Is(err, vault.ErrNotFound):
		middleware.WriteDetail(w, http.StatusNotFound, "Path not found")
	case errors.Is(err, vault.ErrRootDirectory):
		middleware.WriteDetail(w, http.StatusPreconditionFailed, "Cannot delete root directory")
	case errors.Is(err, vault.ErrNotDirectory):
		middleware.WriteDetail(w, http.StatusBadRequest, "Cannot delete directory if `as_dir` is not set")
	case errors.Is(err, vault.ErrNotEmpty):
		middleware.WriteDetail(w, http.StatusExpectationFailed, "Directory is not empty")
	default:
		logger.ErrorCtx(r.Context(), "delete failed", logger.Filename(pathParam(r)), logger.Err(err))
		middleware.WriteDetail(w, http.StatusInternalServerError, "Deletion failed")
	}
}

// Rename gives a file or directory a new name. The body is the new name as
// a JSON string.
//
// POST /api/files/rename/{path}
func (h *FilesHandler) Rename(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())

	newName, ok := decodeStringBody(w, r)
	if !ok {
		return
	}

	err := h.Vault.Rename(session.Username, pathParam(r), newName)
	switch {
	case err == nil:
		writeText(w, http.StatusOK, "Item renamed")
	case errors.Is(err, vault.ErrInvalidPath):
		middleware.WriteDetail(w, http.StatusNotAcceptable, "Illegal or invalid path")
	case errors.Is(err, vault.ErrNotFound):
		middleware.WriteDetail(w, http.StatusNotFound, "Item not found")
	case errors.Is(err, vault.ErrRootDirectory):
		middleware.WriteDetail(w, http.StatusPreconditionFailed, "Cannot rename root directory")
	case errors.Is(err, vault.ErrPathTooLong):
		middleware.WriteDetail(w, http.StatusRequestURITooLong, "File path too long")
	case errors.Is(err, vault.ErrExists):
		middleware.WriteDetail(w, http.StatusConflict, "Item already exists")
	default:
		logger.ErrorCtx(r.Context(), "rename failed",
			logger.OldPath(pathParam(r)), logger.NewPath(newName), logger.Err(err))
		middleware.WriteDetail(w, http.StatusInternalServerError, "Rename failed")
	}
}

// CheckPath reports existence: 200 for a file, 202 for a directory.
//
// HEAD /api/files/check/path/{path}
func (h *FilesHandler) CheckPath(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())

	isFile, err := h.Vault.Stat(session.Username, pathParam(r))
	switch {
	case err == nil && isFile:
		w.WriteHeader(http.StatusOK)
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, vault.ErrInvalidPath):
		w.WriteHeader(http.StatusNotAcceptable)
	case errors.Is(err, vault.ErrPathTooLong):
		w.WriteHeader(http.StatusRequestURITooLong)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// CheckDir reports directory existence: 200 when empty, 202 when not.
//
// HEAD /api/files/check/dir/{path}
func (h *FilesHandler) CheckDir(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())

	empty, err := h.Vault.StatDir(session.Username, pathParam(r))
	switch {
	case err == nil && empty:
		w.WriteHeader(http.StatusOK)
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, vault.ErrInvalidPath):
		w.WriteHeader(http.StatusNotAcceptable)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// CheckSize reports whether a proposed file size is acceptable: 200 when it
// is, 416 when too large.
//
// HEAD /api/files/check/size?size=<bytes>
func (h *FilesHandler) CheckSize(w http.ResponseWriter, r *http.Request) {
	size, err := strconv.ParseInt(r.URL.Query().Get("size"), 10, 64)
	if err != nil || size < 0 {
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}
	if size > h.MaxFileSize {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// queryFlag parses a boolean query parameter, absent meaning false.
func queryFlag(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
