package handler

import (
	"context"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/huddle/api/transport"
	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/pkg/httpcontext"
	membershipUC "github.com/fastygo/huddle/usecase/membership"
)

type JoinRequestHandler struct {
	baseHandler
	uc *membershipUC.UseCase
}

func NewJoinRequestHandler(uc *membershipUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *JoinRequestHandler {
	return &JoinRequestHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Request to join an activity
// @Tags join-requests
// @Router /api/v1/join-requests [post]
func (h *JoinRequestHandler) Create(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	var req transport.CreateJoinRequest
	if !h.decode(ctx, &req) {
		return
	}
	if req.ActivityID == "" {
		h.badRequest(ctx, "activity_id is required")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	created, err := h.uc.Request(stdCtx, userID, req.ActivityID, req.Message)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, created)
}

// @Summary Accept a join request
// @Tags join-requests
// @Router /api/v1/join-requests/{id}/accept [post]
func (h *JoinRequestHandler) Accept(ctx *fasthttp.RequestCtx) {
	h.review(ctx, h.uc.Accept)
}

// @Summary Reject a join request
// @Tags join-requests
// @Router /api/v1/join-requests/{id}/reject [post]
func (h *JoinRequestHandler) Reject(ctx *fasthttp.RequestCtx) {
	h.review(ctx, h.uc.Reject)
}

// @Summary Pending requests of an activity (owner only)
// @Tags join-requests
// @Router /api/v1/join-requests/activity/{id} [get]
func (h *JoinRequestHandler) ListForActivity(ctx *fasthttp.RequestCtx) {
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

	requests, err := h.uc.ListPending(stdCtx, activityID, userID)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, requests)
}

// @Summary Requests made by the caller
// @Tags join-requests
// @Router /api/v1/join-requests/my [get]
func (h *JoinRequestHandler) ListMine(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	requests, err := h.uc.ListMine(stdCtx, userID)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, requests)
}

// @Summary Accepted members of an activity
// @Tags join-requests
// @Router /api/v1/join-requests/activity/{id}/members [get]
func (h *JoinRequestHandler) ListMembers(ctx *fasthttp.RequestCtx) {
	if h.userID(ctx) == "" {
		return
	}
	activityID := h.pathID(ctx)
	if activityID == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	members, err := h.uc.ListAcceptedMembers(stdCtx, activityID)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, members)
}

type reviewOp func(ctx context.Context, requestID, ownerID, reviewMessage string) (*domain.JoinRequest, error)

func (h *JoinRequestHandler) review(ctx *fasthttp.RequestCtx, op reviewOp) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	requestID := h.pathID(ctx)
	if requestID == "" {
		return
	}

	var req transport.ReviewJoinRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	reviewed, err := op(stdCtx, requestID, userID, req.ReviewMessage)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, reviewed)
}
