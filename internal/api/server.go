package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mchen04/Grantify.ai-sub000/internal/db"
	"github.com/mchen04/Grantify.ai-sub000/internal/ingest"
)

type Server struct {
	Store    *db.Store
	Pipeline *ingest.Pipeline
	Echo     *echo.Echo

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

func NewServer(store *db.Store, pipeline *ingest.Pipeline) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		Store:    store,
		Pipeline: pipeline,
		Echo:     e,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")
	api.GET("/runs", s.handleListRuns)
	api.POST("/pipeline/run", s.handleTriggerRun)
	api.GET("/pipeline/job/:id", s.handleJobStatus)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleListRuns(c echo.Context) error {
	limit := 20
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	runs, err := s.Store.RecentRuns(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleTriggerRun(c echo.Context) error {
	s.jobMu.Lock()
	if job := s.runningJob; job != nil && job.Status == "running" {
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]any{
			"error":  "A pipeline run is already in progress",
			"job_id": job.ID,
		})
	}

	opts := ingest.RunOptions{}
	if raw := strings.TrimSpace(c.QueryParam("date")); raw != "" {
		parsed, err := time.Parse("20060102", raw)
		if err != nil {
			s.jobMu.Unlock()
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "date must be YYYYMMDD"})
		}
		opts.Date = parsed
	}
	opts.UseAlternateVersion = strings.EqualFold(c.QueryParam("alternate_version"), "true")
	opts.UseOfflineFallback = strings.EqualFold(c.QueryParam("offline_fallback"), "true")

	// context.WithoutCancel detaches from HTTP lifecycle but preserves
	// trace values. We add our own timeout for safety.
	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), 2*time.Hour,
	)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	// Run in background goroutine and return 202 immediately.
	go func() {
		defer jobCancel()

		stats, err := s.Pipeline.Run(jobCtx, opts)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		job.Result = stats
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			log.Printf("[pipeline-job %s] failed: %v", jobID, err)
			return
		}
		job.Status = "completed"
		log.Printf("[pipeline-job %s] completed: %d total, %d new", jobID, stats.Total, stats.New)
	}()

	return c.JSON(http.StatusAccepted, map[string]any{
		"message": "Pipeline run started",
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/pipeline/job/%s", jobID),
	})
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]any{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}
