package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"calendar-agent/internal/logging"
	"calendar-agent/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type processUseCase interface {
	Process(ctx context.Context, in usecase.ProcessInput) (usecase.ProcessOutput, error)
}

type processRequest struct {
	TextInput     string `json:"text_input"`
	SelectedPages string `json:"selected_pages"`
}

type processResponse struct {
	CombinedInput   string `json:"combined_input"`
	GeneratedCode   string `json:"generated_code"`
	ExecutionOutput string `json:"execution_output"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type Handler struct {
	uc     processUseCase
	logger *slog.Logger
}

func NewHandler(uc processUseCase, logger *slog.Logger) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc, logger: logging.OrNop(logger)}, nil
}

// Handle serves POST /process from API Gateway. Uploads are not accepted on
// this transport; only typed text is processed.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)

	var body processRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return h.errorJSON(corrID, http.StatusBadRequest, usecase.ErrorInvalidInput, "Request body must be a JSON object."), nil
	}

	out, err := h.uc.Process(ctx, usecase.ProcessInput{
		Text:          body.TextInput,
		SelectedPages: body.SelectedPages,
	})
	if err != nil {
		var ucErr *usecase.Error
		if !errors.As(err, &ucErr) {
			h.logger.Error("handler.unexpected_error", "correlation_id", corrID, "error", err.Error())
			return h.errorJSON(corrID, http.StatusInternalServerError, usecase.ErrorInternal, "Internal error."), nil
		}
		h.logger.Warn("handler.process_rejected", "correlation_id", corrID, "code", ucErr.Code, "reason", ucErr.Reason)
		return h.errorJSON(corrID, statusFor(ucErr.Code), ucErr.Code, ucErr.Message()), nil
	}

	return h.json(corrID, http.StatusOK, processResponse{
		CombinedInput:   out.CombinedInput,
		GeneratedCode:   out.GeneratedCode,
		ExecutionOutput: out.ExecutionOutput,
	}), nil
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) errorJSON(corrID string, status int, code usecase.ErrorCode, msg string) events.APIGatewayProxyResponse {
	return h.json(corrID, status, errorResponse{Error: string(code), Message: msg})
}

func (h *Handler) json(corrID string, status int, v any) events.APIGatewayProxyResponse {
	buf, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		buf = []byte(`{"error":"INTERNAL_ERROR","message":"Internal error."}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(buf),
	}
}

// correlationID returns the caller's X-Correlation-Id, matched without regard
// to case, or a fresh one.
func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}
