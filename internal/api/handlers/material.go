package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/studybuddy-ai/backend/internal/api"
	"github.com/studybuddy-ai/backend/internal/service"
)

// maxUploadBytes caps one uploaded study-material file.
const maxUploadBytes = 25 * 1024 * 1024

// MaterialService is the upload pipeline boundary.
type MaterialService interface {
	Upload(ctx context.Context, input service.UploadInput) (*service.UploadResult, error)
}

type MaterialHandler struct {
	svc MaterialService
}

func NewMaterialHandler(svc MaterialService) *MaterialHandler {
	return &MaterialHandler{svc: svc}
}

type UploadResponse struct {
	Success             bool   `json:"success"`
	FileID              string `json:"file_id"`
	Filename            string `json:"filename"`
	SavedPath           string `json:"saved_path"`
	UploadedAt          string `json:"uploaded_at"`
	TextLength          int    `json:"text_length"`
	SupermemoryIngested bool   `json:"supermemory_ingested"`
	MemoryID            string `json:"memory_id,omitempty"`
	MemoryStatus        string `json:"memory_status,omitempty"`
	IngestError         string `json:"ingest_error,omitempty"`
	TopicsExtracted     bool   `json:"topics_extracted"`
	Topics              string `json:"topics,omitempty"`
	TopicsError         string `json:"topics_error,omitempty"`
}

// Upload accepts one multipart file under the "file" field and runs it through
// the material pipeline.
func (h *MaterialHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	result, err := h.svc.Upload(r.Context(), service.UploadInput{
		Filename:    header.Filename,
		ContentType: detectContentType(header),
		Data:        data,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, UploadResponse{
		Success:             true,
		FileID:              result.FileID,
		Filename:            result.Filename,
		SavedPath:           result.SavedPath,
		UploadedAt:          result.UploadedAt.Format(time.RFC3339),
		TextLength:          result.TextLength,
		SupermemoryIngested: result.Ingested,
		MemoryID:            result.MemoryID,
		MemoryStatus:        result.MemoryStatus,
		IngestError:         result.IngestError,
		TopicsExtracted:     result.TopicsExtracted,
		Topics:              result.Topics,
		TopicsError:         result.TopicsError,
	})
}

func detectContentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
