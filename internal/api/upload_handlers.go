package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/better-wallet/marketplace/internal/logger"
	"github.com/better-wallet/marketplace/internal/middleware"
	"github.com/better-wallet/marketplace/internal/upload"
	apperrors "github.com/better-wallet/marketplace/pkg/errors"
)

const maxFileNameLength = 255

// PresignRequest asks for an upload URL
type PresignRequest struct {
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

// handlePresign issues a presigned PUT URL under the caller's key prefix
func (s *Server) handlePresign(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		s.writeError(w, apperrors.ErrUnauthorized)
		return
	}

	var req PresignRequest
	if err := middleware.ValidateJSON(r, &req); err != nil {
		s.writeError(w, apperrors.NewWithDetail(
			apperrors.ErrCodeBadRequest,
			"Invalid request body",
			err.Error(),
			http.StatusBadRequest,
		))
		return
	}

	v := middleware.NewValidator()
	if v.Required("fileName", req.FileName) {
		v.MaxLength("fileName", req.FileName, maxFileNameLength)
	}
	if v.Required("fileType", req.FileType) {
		v.OneOf("fileType", strings.ToLower(req.FileType), upload.AllowedTypes)
	}
	if v.HasErrors() {
		middleware.WriteValidationError(w, v.Errors())
		return
	}

	presigned, err := s.uploads.PresignPut(r.Context(), user.ID.String(), req.FileName, req.FileType)
	if err != nil {
		if errors.Is(err, upload.ErrInvalidFileType) {
			s.writeError(w, apperrors.NewWithDetail(apperrors.ErrCodeBadRequest, "Invalid file type", err.Error(), http.StatusBadRequest))
			return
		}
		logger.Error(r.Context(), "failed to presign upload", "user_id", user.ID, "error", err)
		s.writeError(w, apperrors.New(apperrors.ErrCodeInternalError, "Failed to generate upload URL", http.StatusInternalServerError))
		return
	}

	s.writeJSON(w, http.StatusOK, presigned)
}

// handleDeleteUpload deletes one of the caller's uploaded images
func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		s.writeError(w, apperrors.ErrUnauthorized)
		return
	}

	key := r.PathValue("key")
	if !upload.OwnsKey(user.ID.String(), key) {
		s.writeError(w, apperrors.New(apperrors.ErrCodeForbidden, "Not authorized to delete this image", http.StatusForbidden))
		return
	}

	if err := s.uploads.Delete(r.Context(), key); err != nil {
		logger.Error(r.Context(), "failed to delete upload", "user_id", user.ID, "key", key, "error", err)
		s.writeError(w, apperrors.New(apperrors.ErrCodeInternalError, "Failed to delete image", http.StatusInternalServerError))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Image deleted successfully"})
}
