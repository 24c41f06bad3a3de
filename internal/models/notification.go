package models

import "time"

// Fixed notification texts the like handlers key their dedup lookups on.
const (
	TextLikedPost    = "liked your post"
	TextLikedComment = "liked your comment"
	TextFollowed     = "started following you"
)

// Notification is the persisted record created by the consumer handlers and
// read back by the synchronous notification API. EntityID correlates the
// record to the originating entity (post id, comment id, or acting user id).
type Notification struct {
	NotifyID   string    `gorm:"primaryKey" json:"_id"`
	EntityID   string    `gorm:"index" json:"id"`
	UserID     string    `gorm:"index" json:"userId"`
	Recipients []string  `gorm:"serializer:json" json:"recipients"`
	URL        string    `json:"url"`
	Text       string    `json:"text"`
	Content    string    `json:"content,omitempty"`
	Image      string    `json:"image,omitempty"`
	IsRead     bool      `gorm:"default:false" json:"isRead"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Actor is the minimal user identity joined onto relay payloads and API
// responses. Only ID is guaranteed; the rest depends on the user service
// being reachable.
type Actor struct {
	ID       string `json:"_id"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}
