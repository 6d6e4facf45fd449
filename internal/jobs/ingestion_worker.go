package jobs

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/studybuddy-ai/backend/internal/domain"
	"github.com/studybuddy-ai/backend/internal/extract"
	"github.com/studybuddy-ai/backend/internal/supermemory"
)

// batchSize caps how many modules one poll cycle processes.
const batchSize = 10

// ModuleStore is the slice of module persistence the worker needs.
type ModuleStore interface {
	ListPendingIngestion(ctx context.Context, limit int) ([]*domain.Module, error)
	Update(ctx context.Context, m *domain.Module) error
}

// FileDownloader fetches Canvas file contents. Satisfied by canvas.Client.
type FileDownloader interface {
	DownloadFile(ctx context.Context, fileURL string) ([]byte, error)
}

// DocumentIngester writes extracted text into the retrieval index. Satisfied
// by supermemory.Client.
type DocumentIngester interface {
	IngestDocument(ctx context.Context, input supermemory.IngestInput) (*supermemory.IngestResult, error)
}

// ProgressUpdater recomputes course progress after ingestion state changes.
// Satisfied by service.CourseService.
type ProgressUpdater interface {
	RecomputeProgress(ctx context.Context, courseID int64) error
}

// IngestionWorker pulls Canvas course files into the retrieval index: download,
// extract text, ingest, and mark the module done. Failures are recorded on the
// module and retried on later cycles until the attempt budget runs out.
type IngestionWorker struct {
	modules    ModuleStore
	downloader FileDownloader
	ingester   DocumentIngester
	progress   ProgressUpdater
}

// NewIngestionWorker creates an IngestionWorker.
func NewIngestionWorker(modules ModuleStore, downloader FileDownloader, ingester DocumentIngester, progress ProgressUpdater) *IngestionWorker {
	return &IngestionWorker{
		modules:    modules,
		downloader: downloader,
		ingester:   ingester,
		progress:   progress,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *IngestionWorker) ProcessJobs(ctx context.Context) error {
	modules, err := w.modules.ListPendingIngestion(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch pending modules: %w", err)
	}
	if len(modules) == 0 {
		return nil
	}

	log.Printf("processing %d modules pending ingestion", len(modules))

	courses := make(map[int64]struct{})
	for _, module := range modules {
		if err := w.processModule(ctx, module); err != nil {
			log.Printf("module %d (%s) ingestion failed: %v", module.ID, module.Name, err)
			module.IngestAttempts++
			module.LastError = err.Error()
		} else {
			module.Downloaded = true
			module.Ingested = true
			module.LastError = ""
			courses[module.CourseID] = struct{}{}
		}
		if updateErr := w.modules.Update(ctx, module); updateErr != nil {
			log.Printf("failed to persist module %d state: %v", module.ID, updateErr)
		}
	}

	for courseID := range courses {
		if err := w.progress.RecomputeProgress(ctx, courseID); err != nil {
			log.Printf("failed to recompute progress for course %d: %v", courseID, err)
		}
	}
	return nil
}

func (w *IngestionWorker) processModule(ctx context.Context, module *domain.Module) error {
	data, err := w.downloader.DownloadFile(ctx, module.FileURL)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", module.FileURL, err)
	}

	text, err := extract.Text(data, module.ContentType)
	if err != nil {
		return fmt.Errorf("extracting text: %w", err)
	}

	_, err = w.ingester.IngestDocument(ctx, supermemory.IngestInput{
		Content:      text,
		Filename:     module.Name,
		ContainerTag: supermemory.ContainerCourseMaterials,
		Metadata: map[string]any{
			"course_id":      strconv.FormatInt(module.CourseID, 10),
			"module_id":      strconv.FormatInt(module.ID, 10),
			"canvas_file_id": module.CanvasFileID,
			"content_type":   module.ContentType,
			"ingested_at":    time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("ingesting document: %w", err)
	}
	return nil
}
