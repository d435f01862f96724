package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/database"
	"github.com/stemsi/exam-portal/internal/logger"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/repository"
	"github.com/stemsi/exam-portal/internal/service"
	"github.com/stemsi/exam-portal/internal/session"
	"github.com/stemsi/exam-portal/internal/validator"
)

var (
	examFile string
	authorID int
	dryRun   bool
)

var rootCmd = &cobra.Command{
	Use:   "seed-exam",
	Short: "Load an exam paper from a JSON file into the database",
	Long: `seed-exam reads a JSON document shaped like the teacher create-exam
payload, validates it the same way the API does, and stores the exam with
its questions under the given author.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&examFile, "file", "f", "", "path to the exam JSON file")
	rootCmd.Flags().IntVar(&authorID, "author", 0, "user id of the teacher who owns the exam")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing to the database")
	_ = rootCmd.MarkFlagRequired("file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	req, err := loadRequest(examFile)
	if err != nil {
		return err
	}

	exam := req.ToExam(authorID)
	for i := range exam.Questions {
		exam.Questions[i].ID = uuid.New()
	}
	if err := session.ValidateExam(exam); err != nil {
		return fmt.Errorf("exam paper: %w", err)
	}

	fmt.Printf("Paper OK: %q, %d questions, %d marks, %d minutes\n",
		exam.Title, len(exam.Questions), exam.TotalMarks, exam.DurationMinutes)
	if dryRun {
		return nil
	}
	if authorID <= 0 {
		return fmt.Errorf("--author is required unless --dry-run is set")
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	author, err := repository.NewUserRepository(pool).GetByID(ctx, authorID)
	if err != nil {
		return fmt.Errorf("look up author %d: %w", authorID, err)
	}
	if author.Role == model.RoleStudent {
		return fmt.Errorf("user %d is a student and cannot own an exam", authorID)
	}

	// Creating an exam never touches the cache, so no Redis connection is needed here.
	examService := service.NewExamService(repository.NewExamRepository(pool), nil, log)
	created, err := examService.Create(ctx, *req, authorID)
	if err != nil {
		return fmt.Errorf("create exam: %w", err)
	}

	fmt.Printf("Success! Exam %s created (secret code %q, active=%t)\n",
		created.ID, created.SecretCode, created.IsActive)
	return nil
}

// loadRequest decodes and validates the exam file with the API's rules.
func loadRequest(path string) (*model.CreateExamRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var req model.CreateExamRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	validator.Setup()
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		for field, msg := range validator.TranslateErrors(err, validator.Translator()) {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
		}
		return nil, fmt.Errorf("%s failed validation", path)
	}
	return &req, nil
}
