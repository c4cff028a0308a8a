package app

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

// MaxNotifications caps the per-client list; the oldest entries are dropped.
const MaxNotifications = 50

// NotificationCenter keeps a client's notifications newest-first, in memory only.
type NotificationCenter struct {
	mu    sync.Mutex
	items []domain.Notification
	now   func() time.Time
	newID func() string
}

func NewNotificationCenter() *NotificationCenter {
	return &NotificationCenter{now: time.Now, newID: uuid.NewString}
}

// Push creates a notification. The id and creation time are always assigned here.
func (n *NotificationCenter) Push(typ domain.NotificationType, title, message string, meta map[string]string) domain.Notification {
	if !typ.Valid() {
		typ = domain.NotificationInfo
	}
	item := domain.Notification{
		ID:        n.newID(),
		Type:      typ,
		Title:     title,
		Message:   message,
		CreatedAt: n.now(),
		Meta:      meta,
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append([]domain.Notification{item}, n.items...)
	if len(n.items) > MaxNotifications {
		n.items = n.items[:MaxNotifications]
	}
	return item
}

func (n *NotificationCenter) List() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notification(nil), n.items...)
}

func (n *NotificationCenter) UnreadCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, it := range n.items {
		if !it.Read {
			count++
		}
	}
	return count
}

// MarkRead reports whether id was found.
func (n *NotificationCenter) MarkRead(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.items {
		if n.items[i].ID == id {
			n.items[i].Read = true
			return true
		}
	}
	return false
}

func (n *NotificationCenter) MarkAllRead() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.items {
		n.items[i].Read = true
	}
}

func (n *NotificationCenter) Remove(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.items {
		if n.items[i].ID == id {
			n.items = append(n.items[:i], n.items[i+1:]...)
			return true
		}
	}
	return false
}

func (n *NotificationCenter) Clear() {
	n.mu.Lock()
	n.items = nil
	n.mu.Unlock()
}
