package transport

import "time"

type CreateActivityRequest struct {
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Type          string    `json:"type"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	ScheduledDate time.Time `json:"scheduled_date"`
	MaxMembers    int       `json:"max_members"`
}

type CreateJoinRequest struct {
	ActivityID string `json:"activity_id"`
	Message    string `json:"message"`
}

type ReviewJoinRequest struct {
	ReviewMessage string `json:"review_message"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}
