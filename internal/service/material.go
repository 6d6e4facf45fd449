package service

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/studybuddy-ai/backend/internal/domain"
	"github.com/studybuddy-ai/backend/internal/extract"
	"github.com/studybuddy-ai/backend/internal/supermemory"
	"github.com/studybuddy-ai/backend/internal/telemetry"
)

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// BlobStore archives raw uploaded file bytes. Implemented by local disk and
// S3-compatible storage.
type BlobStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) (location string, err error)
}

// MaterialService handles the upload pipeline: validate, archive, extract
// text, ingest into the retrieval index, and extract a study path.
type MaterialService struct {
	store     BlobStore
	retriever Retriever
	topics    *TopicService
	uuidGen   UUIDGenerator
	now       func() time.Time
}

// NewMaterialService creates a MaterialService. retriever and topics may be
// nil; the corresponding pipeline steps are skipped and reported as such.
func NewMaterialService(store BlobStore, retriever Retriever, topics *TopicService) *MaterialService {
	return &MaterialService{
		store:     store,
		retriever: retriever,
		topics:    topics,
		uuidGen:   &DefaultUUIDGenerator{},
		now:       time.Now,
	}
}

// UploadInput is one uploaded study-material file.
type UploadInput struct {
	Filename    string
	ContentType string
	Data        []byte
}

// UploadResult reports every pipeline step's outcome. Ingestion and topic
// extraction are best-effort: their failures are recorded here, not raised.
type UploadResult struct {
	FileID     string
	Filename   string
	SavedPath  string
	UploadedAt time.Time
	TextLength int

	Ingested     bool
	MemoryID     string
	MemoryStatus string
	IngestError  string

	TopicsExtracted bool
	Topics          string
	TopicsError     string
}

// Upload runs the material pipeline. Validation and archival failures abort
// with an error; ingestion and topic extraction degrade per step.
func (s *MaterialService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if !extract.Accepted(input.ContentType) {
		return nil, domain.NewDomainError(domain.ErrCodeValidation,
			"file type "+input.ContentType+" not supported, upload PDF, TXT, or DOCX files")
	}

	text, err := extract.Text(input.Data, input.ContentType)
	if err != nil {
		return nil, err
	}

	fileID := s.uuidGen.NewString()
	ctx, span := telemetry.StartSpan(ctx, "MaterialService.Upload", telemetry.SpanAttributes{
		FileID:    fileID,
		Operation: "upload",
	})
	defer span.End()

	key := fileID + filepath.Ext(input.Filename)
	location, err := s.store.Save(ctx, key, input.Data, input.ContentType)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "saving uploaded file", err)
	}

	result := &UploadResult{
		FileID:     fileID,
		Filename:   input.Filename,
		SavedPath:  location,
		UploadedAt: s.now().UTC(),
		TextLength: len(text),
	}

	var ingest *supermemory.IngestResult
	if s.retriever != nil {
		ingest, err = s.retriever.IngestDocument(ctx, supermemory.IngestInput{
			Content:      text,
			Filename:     input.Filename,
			ContainerTag: supermemory.ContainerUploadedDocuments,
			Metadata: map[string]any{
				"file_id":      fileID,
				"content_type": input.ContentType,
				"uploaded_at":  result.UploadedAt.Format(time.RFC3339),
			},
		})
		if err != nil {
			log.Printf("ingestion failed for %s: %v", fileID, err)
			result.IngestError = err.Error()
		} else {
			result.Ingested = true
			result.MemoryID = ingest.ID
			result.MemoryStatus = ingest.Status
		}
	}

	if s.topics != nil {
		result.Topics, err = s.extractTopics(ctx, text, ingest)
		if err != nil {
			log.Printf("topic extraction failed for %s: %v", fileID, err)
			result.TopicsError = err.Error()
		} else {
			result.TopicsExtracted = true
		}
	}

	return result, nil
}

// extractTopics prefers RAG-grounded extraction once the document is fully
// indexed, falling back to direct text while it is still queued remotely.
func (s *MaterialService) extractTopics(ctx context.Context, text string, ingest *supermemory.IngestResult) (string, error) {
	if ingest != nil && ingest.Searchable() {
		topics, err := s.topics.ExtractTopicsWithRAG(ctx,
			"Extract all main topics and subtopics from this document in order of learning importance")
		if err == nil {
			return topics, nil
		}
		log.Printf("RAG extraction failed, falling back to direct text: %v", err)
	}
	return s.topics.ExtractTopics(ctx, text)
}
