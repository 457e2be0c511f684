package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/wallau/shop-api/internal/aiclient"
	"github.com/wallau/shop-api/internal/events"
	"github.com/wallau/shop-api/internal/model"
	"github.com/wallau/shop-api/internal/repository"
)

var (
	ErrJobNotFound        = errors.New("ai job not found")
	ErrJobAlreadyComplete = errors.New("ai job already completed")
	ErrInvalidJobPrice    = errors.New("price must be greater than zero")
	ErrNoJobImages        = errors.New("at least one image is required")
)

const errInvalidAiOutput = "AI_INVALID_OUTPUT"

// AiJobService drives the product analysis pipeline. Jobs move
// PENDING -> PROCESSING -> SUCCESS | FAILED, and every write that could race
// with a concurrent attempt goes through a guarded conditional update in the
// repository: once a job is SUCCESS nothing overwrites it.
type AiJobService struct {
	jobRepo repository.AiJobRepository
	client  aiclient.Client
	emitter events.Emitter
	log     *slog.Logger

	useReal       bool
	uploadDir     string
	publicBaseURL string
}

func NewAiJobService(
	jobRepo repository.AiJobRepository,
	client aiclient.Client,
	emitter events.Emitter,
	log *slog.Logger,
	useReal bool,
	uploadDir string,
	publicBaseURL string,
) *AiJobService {
	return &AiJobService{
		jobRepo:       jobRepo,
		client:        client,
		emitter:       emitter,
		log:           log,
		useReal:       useReal,
		uploadDir:     uploadDir,
		publicBaseURL: publicBaseURL,
	}
}

// UsesRealService reports whether jobs go to the external AI service. In mock
// mode jobs complete synchronously and retrying makes no sense.
func (s *AiJobService) UsesRealService() bool {
	return s.useReal
}

// Create registers a new analysis job for already-saved image files. With the
// real service configured the job is persisted PENDING and processing is
// dispatched in the background; the caller gets the PENDING row back
// immediately. In mock mode the canned result is applied synchronously and
// the job comes back SUCCESS.
func (s *AiJobService) Create(ctx context.Context, price decimal.Decimal, imagePaths []string) (*model.ProductAiJob, error) {
	if !price.IsPositive() {
		return nil, ErrInvalidJobPrice
	}
	if len(imagePaths) == 0 {
		return nil, ErrNoJobImages
	}

	paths := make([]string, 0, len(imagePaths))
	for _, p := range imagePaths {
		paths = append(paths, normalizePath(p))
	}

	job := &model.ProductAiJob{
		ImagePaths: paths,
		Price:      price,
		Status:     model.AiJobStatusPending,
	}

	if !s.useReal {
		resp, err := s.client.AnalyzeProduct(ctx, aiclient.AnalyzeRequest{
			Price:     price.InexactFloat64(),
			ImageURLs: s.imageURLs(paths),
		})
		if err != nil {
			return nil, fmt.Errorf("mock analysis: %w", err)
		}
		job.Status = model.AiJobStatusSuccess
		job.ResultDisplayName = resp.Title
		job.ResultDescription = resp.Description
		job.ResultTags = normalizeTags(resp.Tags)
		if err := s.jobRepo.Create(ctx, job); err != nil {
			return nil, err
		}
		s.emitter.Emit(ctx, events.ChannelAiJobCompleted, job)
		return job, nil
	}

	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, events.ChannelAiJobUpdated, job)
	s.dispatch(job.ID)
	return job, nil
}

// dispatch runs Process on its own goroutine with a fresh context: the HTTP
// request that created the job finishes long before the analysis does.
func (s *AiJobService) dispatch(jobID uuid.UUID) {
	go func() {
		if err := s.Process(context.Background(), jobID); err != nil {
			s.log.Error("process ai job", "job_id", jobID, "error", err)
		}
	}()
}

// Process runs one analysis attempt. A job that already reached SUCCESS is
// left untouched, including when the terminal write itself loses the race.
func (s *AiJobService) Process(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}
	if job.Status == model.AiJobStatusSuccess {
		return nil
	}

	before := job.Status
	took, err := s.jobRepo.MarkProcessing(ctx, jobID)
	if err != nil {
		return err
	}
	if !took {
		// Lost the race against a successful attempt.
		return nil
	}
	s.log.Info("ai job processing", "job_id", jobID, "from", before, "to", model.AiJobStatusProcessing)
	s.emitCurrent(ctx, events.ChannelAiJobUpdated, jobID)

	resp, err := s.client.AnalyzeProduct(ctx, aiclient.AnalyzeRequest{
		JobID:     jobID,
		Price:     job.Price.InexactFloat64(),
		ImageURLs: s.imageURLs(job.ImagePaths),
	})
	if err != nil {
		return s.fail(ctx, jobID, err.Error())
	}

	if err := validateAnalysis(resp); err != nil {
		return s.fail(ctx, jobID, fmt.Sprintf("%s: %v", errInvalidAiOutput, err))
	}

	took, err = s.jobRepo.MarkSuccess(ctx, jobID, resp.Title, resp.Description, normalizeTags(resp.Tags))
	if err != nil {
		return err
	}
	s.log.Info("ai job finished", "job_id", jobID, "status", model.AiJobStatusSuccess, "applied", took)
	s.emitCurrent(ctx, events.ChannelAiJobCompleted, jobID)
	return nil
}

func (s *AiJobService) fail(ctx context.Context, jobID uuid.UUID, message string) error {
	took, err := s.jobRepo.MarkFailed(ctx, jobID, message)
	if err != nil {
		return err
	}
	s.log.Warn("ai job failed", "job_id", jobID, "applied", took, "reason", message)
	s.emitCurrent(ctx, events.ChannelAiJobCompleted, jobID)
	return nil
}

// emitCurrent publishes the current row so subscribers always see the state
// that actually won, not the state this attempt tried to write.
func (s *AiJobService) emitCurrent(ctx context.Context, channel string, jobID uuid.UUID) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil || job == nil {
		return
	}
	s.emitter.Emit(ctx, channel, job)
}

// Retry re-runs a job that is not yet done. PROCESSING jobs are returned
// as-is, SUCCESS jobs refuse the retry.
func (s *AiJobService) Retry(ctx context.Context, jobID uuid.UUID) (*model.ProductAiJob, error) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	switch job.Status {
	case model.AiJobStatusProcessing:
		return job, nil
	case model.AiJobStatusSuccess:
		return nil, ErrJobAlreadyComplete
	}

	took, err := s.jobRepo.MarkProcessing(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !took {
		return nil, ErrJobAlreadyComplete
	}
	s.emitCurrent(ctx, events.ChannelAiJobUpdated, jobID)
	s.dispatch(jobID)

	return s.jobRepo.GetByID(ctx, jobID)
}

// OpenJobs lists jobs that have not been turned into a product yet.
func (s *AiJobService) OpenJobs(ctx context.Context) ([]model.ProductAiJob, error) {
	return s.jobRepo.ListOpen(ctx)
}

// Delete removes a job and best-effort deletes its image files. A missing
// file is not an error, the row is gone either way.
func (s *AiJobService) Delete(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}

	if err := s.jobRepo.Delete(ctx, jobID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrJobNotFound
		}
		return err
	}

	for _, p := range job.ImagePaths {
		if err := os.Remove(filepath.Join(s.uploadDir, filepath.FromSlash(p))); err != nil && !os.IsNotExist(err) {
			s.log.Warn("remove job image", "job_id", jobID, "path", p, "error", err)
		}
	}
	return nil
}

func (s *AiJobService) imageURLs(paths []string) []string {
	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		urls = append(urls, strings.TrimRight(s.publicBaseURL, "/")+"/uploads/"+p)
	}
	return urls
}

func normalizePath(p string) string {
	return strings.TrimPrefix(filepath.ToSlash(p), "/")
}

// validateAnalysis enforces the contract on the AI response: a non-empty
// title and a description of two to four sentences.
func validateAnalysis(resp *aiclient.AnalyzeResponse) error {
	if strings.TrimSpace(resp.Title) == "" {
		return errors.New("empty title")
	}
	n := countSentences(resp.Description)
	if n < 2 || n > 4 {
		return fmt.Errorf("description has %d sentences, want 2 to 4", n)
	}
	return nil
}

func countSentences(text string) int {
	n := 0
	for _, part := range strings.Split(text, ".") {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}

// normalizeTags trims, lowercases and dedupes while keeping first-seen order.
func normalizeTags(tags []aiclient.TagValue) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		v := strings.ToLower(strings.TrimSpace(t.Value))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
