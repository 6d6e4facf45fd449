package admin

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/studybuddy-ai/backend/internal/canvas"
	"github.com/studybuddy-ai/backend/internal/config"
	"github.com/studybuddy-ai/backend/internal/database"
	"github.com/studybuddy-ai/backend/internal/repository"
	"github.com/studybuddy-ai/backend/internal/service"
)

// SyncCoursesCmd returns the sync-courses command
func SyncCoursesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync-courses",
		Short: "Sync Canvas courses and files once",
		Long:  "Fetch active Canvas enrollments, store new courses, and sync each course's file list into modules",
		RunE:  runSyncCourses,
	}

	cmd.Flags().Bool("skip-files", false, "Only sync the course list, not each course's files")

	return cmd
}

func runSyncCourses(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasCanvas() {
		return fmt.Errorf("canvas is not configured: set STUDYBUDDY_CANVAS_TOKEN")
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	canvasClient, err := canvas.NewClient(canvas.ClientConfig{
		Token:   cfg.CanvasToken,
		BaseURL: cfg.CanvasAPIURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create canvas client: %w", err)
	}

	courseRepo := repository.NewCourseRepository(pool)
	moduleRepo := repository.NewModuleRepository(pool)
	courseSvc := service.NewCourseService(courseRepo, moduleRepo, canvasClient)

	created, err := courseSvc.SyncCanvasCourses(ctx)
	if err != nil {
		return fmt.Errorf("course sync failed: %w", err)
	}
	fmt.Printf("Courses synced: %d new\n", created)

	skipFiles, _ := cmd.Flags().GetBool("skip-files")
	if skipFiles {
		return nil
	}

	courses, err := courseSvc.ListCourses(ctx)
	if err != nil {
		return fmt.Errorf("failed to list courses: %w", err)
	}

	for _, course := range courses {
		if course.CanvasID == "" {
			continue
		}
		synced, err := courseSvc.SyncCourseFiles(ctx, course.ID)
		if err != nil {
			fmt.Printf("  %s: file sync failed: %v\n", course.Name, err)
			continue
		}
		fmt.Printf("  %s: %d modules synced\n", course.Name, synced)
	}

	return nil
}
