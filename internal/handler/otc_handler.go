package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"verify-service/internal/model"
	"verify-service/internal/service"
	"verify-service/internal/util"
)

// HealthChecker reports per-dependency health for the readiness endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]error
}

// OTCHandler handles HTTP requests for code issuance and verification
type OTCHandler struct {
	otcService *service.OTCService
	health     HealthChecker
	logger     *zap.Logger
}

// NewOTCHandler creates a new OTC handler
func NewOTCHandler(otcService *service.OTCService, health HealthChecker, logger *zap.Logger) *OTCHandler {
	return &OTCHandler{
		otcService: otcService,
		health:     health,
		logger:     logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool             `json:"success"`
	Data    interface{}      `json:"data,omitempty"`
	Error   *service.Failure `json:"error,omitempty"`
	Message string           `json:"message,omitempty"`
}

type issueRequest struct {
	Phone    string                `json:"phone"`
	Metadata model.SessionMetadata `json:"metadata"`
}

type verifyRequest struct {
	SessionID string `json:"session_id"`
	Phone     string `json:"phone"`
	Code      string `json:"code"`
}

// RegisterRoutes registers all OTC routes
func (h *OTCHandler) RegisterRoutes(router chi.Router) {
	router.Route("/otc", func(r chi.Router) {
		r.Post("/issue", h.IssueCode)
		r.Post("/verify", h.VerifyCode)
	})
}

// IssueCode handles code issuance requests
func (h *OTCHandler) IssueCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithFailure(w, &service.Failure{
			Code:    service.CodeValidationFailed,
			Message: "invalid request body",
		})
		return
	}

	result, failure := h.otcService.Issue(ctx, req.Phone, req.Metadata)
	if failure != nil {
		h.respondWithFailure(w, failure)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    result,
		Message: "Verification code sent",
	})
	h.logger.Info("Code issued via HTTP",
		util.String("session_id", result.SessionID),
		util.String("phone", util.MaskPhone(req.Phone)),
		util.Duration("duration", time.Since(startTime)),
	)
}

// VerifyCode handles code verification requests
func (h *OTCHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithFailure(w, &service.Failure{
			Code:    service.CodeValidationFailed,
			Message: "invalid request body",
		})
		return
	}

	result, failure := h.otcService.Verify(ctx, req.SessionID, req.Phone, req.Code)
	if failure != nil {
		h.respondWithFailure(w, failure)
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    result,
		Message: "Phone number verified",
	})
	h.logger.Info("Code verified via HTTP",
		util.String("session_id", req.SessionID),
		util.String("account_id", result.AccountID),
		util.Duration("duration", time.Since(startTime)),
	)
}

// HealthCheck reports dependency health
func (h *OTCHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	components := map[string]string{}
	if h.health != nil {
		for name, err := range h.health.HealthCheck(ctx) {
			if err != nil {
				status = http.StatusServiceUnavailable
				components[name] = "unhealthy"
			} else {
				components[name] = "healthy"
			}
		}
	}

	h.respondWithJSON(w, status, Response{
		Success: status == http.StatusOK,
		Data:    components,
	})
}

func (h *OTCHandler) respondWithFailure(w http.ResponseWriter, failure *service.Failure) {
	status := statusForCode(failure.Code)
	if failure.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(failure.RetryAfterSeconds))
	}
	h.respondWithJSON(w, status, Response{
		Success: false,
		Error:   failure,
		Message: failure.Message,
	})
}

func (h *OTCHandler) respondWithJSON(w http.ResponseWriter, statusCode int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode response", util.ErrorField(err))
	}
}

func statusForCode(code string) int {
	switch code {
	case service.CodeValidationFailed:
		return http.StatusBadRequest
	case service.CodeRateLimited:
		return http.StatusTooManyRequests
	case service.CodeSessionNotFound:
		return http.StatusNotFound
	case service.CodePhoneMismatch, service.CodeInvalidOTP:
		return http.StatusUnprocessableEntity
	case service.CodeAlreadyUsed, service.CodeExpired, service.CodeMaxAttemptsExceeded:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
