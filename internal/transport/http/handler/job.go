package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cardotrejos/babypeek-sub000/internal/domain"
	"github.com/cardotrejos/babypeek-sub000/internal/usecase"
	"github.com/gin-gonic/gin"
)

type JobHandler struct {
	jobUsecase *usecase.JobUsecase
	logger     *slog.Logger
}

func NewJobHandler(jobUsecase *usecase.JobUsecase, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobUsecase: jobUsecase, logger: logger.With("component", "job_handler")}
}

type createJobRequest struct {
	InputRef string `json:"input_ref" binding:"required"`
	Style    string `json:"style"     binding:"omitempty,oneof=classic watercolor studio"`
}

type jobResponse struct {
	ID           string        `json:"id"`
	Status       domain.Status `json:"status"`
	Stage        *string       `json:"stage,omitempty"`
	Progress     int           `json:"progress"`
	ResultRef    *string       `json:"result_ref,omitempty"`
	ErrorMessage *string       `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func toJobResponse(j *domain.Job) jobResponse {
	return jobResponse{
		ID:           j.ID,
		Status:       j.Status,
		Stage:        j.Stage,
		Progress:     j.Progress,
		ResultRef:    j.ResultRef,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

func (h *JobHandler) Create(ctx *gin.Context) {
	var req createJobRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.jobUsecase.CreateJob(ctx.Request.Context(), usecase.CreateJobInput{
		InputRef: req.InputRef,
		Style:    req.Style,
	})
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), "create job", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusCreated, toJobResponse(job))
}

func (h *JobHandler) GetByID(ctx *gin.Context) {
	jobID := ctx.Param("id")

	job, err := h.jobUsecase.GetJob(ctx.Request.Context(), jobID)
	if err != nil {
		h.respondError(ctx, jobID, "get job", err)
		return
	}

	ctx.JSON(http.StatusOK, toJobResponse(job))
}

// Generate starts processing. Exactly one of any number of concurrent
// requests for the same job gets 202; the rest get 409 with the status they
// lost to, which tells the client to switch to polling.
func (h *JobHandler) Generate(ctx *gin.Context) {
	jobID := ctx.Param("id")

	job, err := h.jobUsecase.StartGeneration(ctx.Request.Context(), jobID)
	if err != nil {
		h.respondError(ctx, jobID, "start generation", err)
		return
	}

	ctx.JSON(http.StatusAccepted, toJobResponse(job))
}

func (h *JobHandler) Retry(ctx *gin.Context) {
	jobID := ctx.Param("id")

	job, err := h.jobUsecase.RetryJob(ctx.Request.Context(), jobID)
	if err != nil {
		h.respondError(ctx, jobID, "retry job", err)
		return
	}

	ctx.JSON(http.StatusAccepted, toJobResponse(job))
}

func (h *JobHandler) respondError(ctx *gin.Context, jobID, op string, err error) {
	var conflict *domain.ConflictError
	var invalid *domain.ValidationError

	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
	case errors.As(err, &conflict):
		ctx.JSON(http.StatusConflict, gin.H{
			"error":          conflict.Error(),
			"current_status": conflict.Status,
		})
	case errors.As(err, &invalid):
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": invalid.Error()})
	default:
		h.logger.ErrorContext(ctx.Request.Context(), op, "job_id", jobID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}
