package domain

import "time"

// MaxIngestAttempts bounds how many worker polls may retry a failing module
// before it is parked with its last error.
const MaxIngestAttempts = 3

// Module is one unit of study material inside a course. Modules synced from
// Canvas carry a file reference and move through download and ingestion before
// they count toward course progress.
type Module struct {
	ID             int64
	CourseID       int64
	Name           string
	Completed      bool
	CanvasFileID   string
	FileURL        string
	ContentType    string
	Downloaded     bool
	Ingested       bool
	IngestAttempts int
	LastError      string
	StudyPathJSON  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasCanvasFile reports whether this module is backed by a Canvas file.
func (m *Module) HasCanvasFile() bool {
	return m.CanvasFileID != ""
}

// NeedsIngestion reports whether the ingestion worker should pick this module up.
func (m *Module) NeedsIngestion() bool {
	return m.HasCanvasFile() && m.FileURL != "" && !m.Ingested && m.IngestAttempts < MaxIngestAttempts
}

// ValidateModule checks required fields before persistence.
func ValidateModule(m *Module) error {
	if m.Name == "" || m.CourseID == 0 {
		return ErrMissingRequiredField
	}
	return nil
}
