package handler

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wallau/shop-api/internal/dto"
	"github.com/wallau/shop-api/internal/model"
	"github.com/wallau/shop-api/internal/service"
)

type AiJobHandler struct {
	jobService *service.AiJobService
	uploadDir  string
}

func NewAiJobHandler(jobService *service.AiJobService, uploadDir string) *AiJobHandler {
	return &AiJobHandler{jobService: jobService, uploadDir: uploadDir}
}

// CreateJob accepts a multipart form with a price field and one or more
// image files. The files are stored before the job row exists; a failed
// create leaves orphaned files behind rather than a job without images.
func (h *AiJobHandler) CreateJob(c *gin.Context) {
	price, err := decimal.NewFromString(c.PostForm("price"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	files := form.File["images"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one image is required"})
		return
	}

	paths := make([]string, 0, len(files))
	for _, file := range files {
		name := uuid.New().String() + filepath.Ext(file.Filename)
		if err := c.SaveUploadedFile(file, filepath.Join(h.uploadDir, name)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store image"})
			return
		}
		paths = append(paths, name)
	}

	job, err := h.jobService.Create(c.Request.Context(), price, paths)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidJobPrice), errors.Is(err, service.ErrNoJobImages):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, toAiJobResponse(job))
}

func (h *AiJobHandler) RetryJob(c *gin.Context) {
	if !h.jobService.UsesRealService() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "retry is not available in mock mode"})
		return
	}

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job ID"})
		return
	}

	job, err := h.jobService.Retry(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		case errors.Is(err, service.ErrJobAlreadyComplete):
			c.JSON(http.StatusConflict, gin.H{"error": "job already completed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, toAiJobResponse(job))
}

func (h *AiJobHandler) ListOpenJobs(c *gin.Context) {
	jobs, err := h.jobService.OpenJobs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	items := make([]dto.AiJobResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, toAiJobResponse(&jobs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": items, "total": len(items)})
}

func (h *AiJobHandler) DeleteJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job ID"})
		return
	}

	if err := h.jobService.Delete(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}

func toAiJobResponse(job *model.ProductAiJob) dto.AiJobResponse {
	return dto.AiJobResponse{
		ID:                job.ID,
		ProductID:         job.ProductID,
		ImagePaths:        job.ImagePaths,
		Price:             job.Price,
		Status:            job.Status,
		ResultDisplayName: job.ResultDisplayName,
		ResultDescription: job.ResultDescription,
		ResultTags:        job.ResultTags,
		ErrorMessage:      job.ErrorMessage,
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
	}
}
