package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/huddle/api/transport"
	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/pkg/httpcontext"
	chatUC "github.com/fastygo/huddle/usecase/chat"
)

type ChatHandler struct {
	baseHandler
	uc *chatUC.UseCase
}

func NewChatHandler(uc *chatUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Chat channel of an activity
// @Tags chat
// @Router /api/v1/chat/activity/{id} [get]
func (h *ChatHandler) GetByActivity(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	activityID := h.pathID(ctx)
	if activityID == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	channel, err := h.uc.GetByActivity(stdCtx, activityID, userID)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, channel)
}

// @Summary Re-provision a missing chat channel (owner only)
// @Tags chat
// @Router /api/v1/chat/activity/{id}/provision [post]
func (h *ChatHandler) Provision(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	activityID := h.pathID(ctx)
	if activityID == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	channel, err := h.uc.Reprovision(stdCtx, activityID, userID)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, channel)
}

// @Summary Post a chat message
// @Tags chat
// @Router /api/v1/chat/channels/{id}/messages [post]
func (h *ChatHandler) SendMessage(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	channelID := h.pathID(ctx)
	if channelID == "" {
		return
	}

	var req transport.SendMessageRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	message, err := h.uc.Send(stdCtx, channelID, userID, req.Content, domain.MessageKind(req.Type))
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, message)
}

// @Summary Chat history, optionally only the most recent messages
// @Tags chat
// @Router /api/v1/chat/channels/{id}/messages [get]
func (h *ChatHandler) ListMessages(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	channelID := h.pathID(ctx)
	if channelID == "" {
		return
	}
	limit := parseInt(string(ctx.QueryArgs().Peek("limit")), 0)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	messages, err := h.uc.List(stdCtx, channelID, userID, limit)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, messages)
}
