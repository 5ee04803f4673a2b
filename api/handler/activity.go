package handler

import (
	"context"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/huddle/api/transport"
	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/pkg/httpcontext"
	activityUC "github.com/fastygo/huddle/usecase/activity"
	proximityUC "github.com/fastygo/huddle/usecase/proximity"
)

type ActivityHandler struct {
	baseHandler
	activities *activityUC.UseCase
	proximity  *proximityUC.UseCase
}

func NewActivityHandler(activities *activityUC.UseCase, proximity *proximityUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{
		baseHandler: newBaseHandler(adapter, logger),
		activities:  activities,
		proximity:   proximity,
	}
}

// @Summary Create activity
// @Tags activities
// @Router /api/v1/activities [post]
func (h *ActivityHandler) Create(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	var req transport.CreateActivityRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	created, err := h.activities.Create(stdCtx, userID, domain.ActivitySpec{
		Title:         req.Title,
		Description:   req.Description,
		Type:          req.Type,
		Location:      domain.Coordinates{Latitude: req.Latitude, Longitude: req.Longitude},
		ScheduledDate: req.ScheduledDate,
		MaxMembers:    req.MaxMembers,
	})
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, created)
}

// @Summary Nearby open activities
// @Tags activities
// @Router /api/v1/activities/nearby [get]
func (h *ActivityHandler) Nearby(ctx *fasthttp.RequestCtx) {
	if h.userID(ctx) == "" {
		return
	}

	args := ctx.QueryArgs()
	lat, okLat := parseFloat(string(args.Peek("latitude")))
	lon, okLon := parseFloat(string(args.Peek("longitude")))
	if !okLat || !okLon {
		h.badRequest(ctx, "latitude and longitude are required")
		return
	}
	query := proximityUC.Query{
		Origin: domain.Coordinates{Latitude: lat, Longitude: lon},
		Type:   string(args.Peek("type")),
	}
	if raw := string(args.Peek("radius")); raw != "" {
		radius, ok := parseFloat(raw)
		if !ok {
			h.badRequest(ctx, "radius must be a number")
			return
		}
		// an absent radius selects the default; an explicit one must be positive
		if radius <= 0 {
			h.badRequest(ctx, "radius must be positive")
			return
		}
		query.RadiusKm = radius
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	results, err := h.proximity.FindNearby(stdCtx, query)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, results)
}

// @Summary Activities owned by the caller
// @Tags activities
// @Router /api/v1/activities/my [get]
func (h *ActivityHandler) Mine(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	activities, err := h.activities.ListMine(stdCtx, userID)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, activities)
}

// @Summary Get activity
// @Tags activities
// @Router /api/v1/activities/{id} [get]
func (h *ActivityHandler) Get(ctx *fasthttp.RequestCtx) {
	if h.userID(ctx) == "" {
		return
	}
	id := h.pathID(ctx)
	if id == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	activity, err := h.activities.Get(stdCtx, id)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, activity)
}

// @Summary Close activity
// @Tags activities
// @Router /api/v1/activities/{id}/close [post]
func (h *ActivityHandler) Close(ctx *fasthttp.RequestCtx) {
	h.terminate(ctx, h.activities.Close)
}

// @Summary Cancel activity
// @Tags activities
// @Router /api/v1/activities/{id}/cancel [post]
func (h *ActivityHandler) Cancel(ctx *fasthttp.RequestCtx) {
	h.terminate(ctx, h.activities.Cancel)
}

func (h *ActivityHandler) terminate(ctx *fasthttp.RequestCtx, op func(c context.Context, id, actorID string) (*domain.Activity, error)) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	id := h.pathID(ctx)
	if id == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	activity, err := op(stdCtx, id, userID)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, activity)
}
