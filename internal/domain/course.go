package domain

import "time"

// Course is a locally persisted course, optionally linked to a Canvas course.
type Course struct {
	ID           int64
	Name         string
	CanvasID     string
	Progress     int
	TotalModules int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ValidateCourse checks required fields before persistence.
func ValidateCourse(c *Course) error {
	if c.Name == "" {
		return ErrMissingRequiredField
	}
	return nil
}
