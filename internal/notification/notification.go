package notification

import (
	"context"
	"time"

	"github.com/frahmantamala/isp-billing/internal/core/datamodel/notification"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type RepositoryAPI interface {
	ListByUser(ctx context.Context, userID int64, limit int) ([]notification.Notification, error)
	GetByTransaction(ctx context.Context, transactionID int64) (*notification.Notification, error)
}

type ServiceAPI interface {
	ListForUser(ctx context.Context, userID int64, limit int64) ([]View, error)
}

type View struct {
	ID        int64                  `json:"id"`
	Channel   string                 `json:"channel"`
	EventType string                 `json:"event_type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Priority  string                 `json:"priority"`
	Data      map[string]interface{} `json:"data"`
	CreatedAt time.Time              `json:"created_at"`
}

func NewView(n *notification.Notification) View {
	return View{
		ID:        n.ID,
		Channel:   n.Channel,
		EventType: n.EventType,
		Title:     n.Title,
		Message:   n.Message,
		Priority:  n.Priority,
		Data:      n.Data,
		CreatedAt: n.CreatedAt,
	}
}
