package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/huddle/api/handler"
)

type Handlers struct {
	Activity     *apiHandler.ActivityHandler
	JoinRequest  *apiHandler.JoinRequestHandler
	Chat         *apiHandler.ChatHandler
	Notification *apiHandler.NotificationHandler
	Health       *apiHandler.HealthHandler
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	api := r.Group("/api/v1")

	// Activities
	api.POST("/activities", authMiddleware(handlers.Activity.Create))
	api.GET("/activities/nearby", authMiddleware(handlers.Activity.Nearby))
	api.GET("/activities/my", authMiddleware(handlers.Activity.Mine))
	api.GET("/activities/{id}", authMiddleware(handlers.Activity.Get))
	api.POST("/activities/{id}/close", authMiddleware(handlers.Activity.Close))
	api.POST("/activities/{id}/cancel", authMiddleware(handlers.Activity.Cancel))

	// Join requests
	api.POST("/join-requests", authMiddleware(handlers.JoinRequest.Create))
	api.POST("/join-requests/{id}/accept", authMiddleware(handlers.JoinRequest.Accept))
	api.POST("/join-requests/{id}/reject", authMiddleware(handlers.JoinRequest.Reject))
	api.GET("/join-requests/my", authMiddleware(handlers.JoinRequest.ListMine))
	api.GET("/join-requests/activity/{id}", authMiddleware(handlers.JoinRequest.ListForActivity))
	api.GET("/join-requests/activity/{id}/members", authMiddleware(handlers.JoinRequest.ListMembers))

	// Chat
	api.GET("/chat/activity/{id}", authMiddleware(handlers.Chat.GetByActivity))
	api.POST("/chat/activity/{id}/provision", authMiddleware(handlers.Chat.Provision))
	api.GET("/chat/channels/{id}/messages", authMiddleware(handlers.Chat.ListMessages))
	api.POST("/chat/channels/{id}/messages", authMiddleware(handlers.Chat.SendMessage))

	// Notifications
	api.GET("/notifications", authMiddleware(handlers.Notification.List))
	api.GET("/notifications/unread", authMiddleware(handlers.Notification.ListUnread))
	api.GET("/notifications/unread/count", authMiddleware(handlers.Notification.UnreadCount))
	api.PUT("/notifications/read-all", authMiddleware(handlers.Notification.MarkAllRead))
	api.PUT("/notifications/{id}/read", authMiddleware(handlers.Notification.MarkRead))

	return r
}
