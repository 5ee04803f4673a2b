package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/huddle/api/transport"
	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/internal/middleware"
	"github.com/fastygo/huddle/pkg/httpcontext"
	appLogger "github.com/fastygo/huddle/pkg/logger"
)

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	return context.WithCancel(context.Background())
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(payload)
	ctx.SetBody(body)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	h.respondJSON(ctx, status, transport.NewSuccess(data, nil))
}

// respondError maps err to its stable status and code. Errors without a domain
// classification are logged and reported without their message.
func (h baseHandler) respondError(stdCtx context.Context, ctx *fasthttp.RequestCtx, err error) {
	status, code := mapError(err)
	message := err.Error()
	if code == string(domain.ErrCodeInternal) {
		appLogger.WithRequestID(stdCtx, h.logger).Error("request failed",
			zap.ByteString("path", ctx.Path()),
			zap.String("caller", httpcontext.Caller(stdCtx)),
			zap.Error(err),
		)
		message = "internal error"
	}
	h.respondJSON(ctx, status, transport.NewError(code, message, nil))
}

func (h baseHandler) badRequest(ctx *fasthttp.RequestCtx, message string) {
	h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), message, nil))
}

// userID returns the verified caller, answering 401 when the header is missing.
func (h baseHandler) userID(ctx *fasthttp.RequestCtx) string {
	userID := string(ctx.Request.Header.Peek(middleware.HeaderUserID))
	if userID == "" {
		h.respondJSON(ctx, http.StatusUnauthorized, transport.NewError(string(domain.ErrCodeUnauthorized), "missing user id", nil))
	}
	return userID
}

func (h baseHandler) pathID(ctx *fasthttp.RequestCtx) string {
	id, _ := ctx.UserValue("id").(string)
	if id == "" {
		h.badRequest(ctx, "missing id")
	}
	return id
}

// decode unmarshals the request body into dst. An empty body leaves dst untouched.
func (h baseHandler) decode(ctx *fasthttp.RequestCtx, dst interface{}) bool {
	body := ctx.PostBody()
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		h.badRequest(ctx, "invalid payload")
		return false
	}
	return true
}

func mapError(err error) (int, string) {
	switch domain.CodeOf(err) {
	case domain.ErrCodeUnauthorized:
		return http.StatusUnauthorized, string(domain.ErrCodeUnauthorized)
	case domain.ErrCodeForbidden:
		return http.StatusForbidden, string(domain.ErrCodeForbidden)
	case domain.ErrCodeInvalid:
		return http.StatusBadRequest, string(domain.ErrCodeInvalid)
	case domain.ErrCodeNotFound:
		return http.StatusNotFound, string(domain.ErrCodeNotFound)
	case domain.ErrCodeInvalidState:
		return http.StatusConflict, string(domain.ErrCodeInvalidState)
	case domain.ErrCodeCapacityExceeded:
		return http.StatusConflict, string(domain.ErrCodeCapacityExceeded)
	case domain.ErrCodeDuplicateRequest:
		return http.StatusConflict, string(domain.ErrCodeDuplicateRequest)
	case domain.ErrCodeAlreadyExists:
		return http.StatusConflict, string(domain.ErrCodeAlreadyExists)
	case domain.ErrCodeSelfJoin:
		return http.StatusUnprocessableEntity, string(domain.ErrCodeSelfJoin)
	default:
		return http.StatusInternalServerError, string(domain.ErrCodeInternal)
	}
}

func parseInt(value string, fallback int) int {
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}

func parseFloat(value string) (float64, bool) {
	v, err := strconv.ParseFloat(value, 64)
	return v, err == nil
}
