package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownKind marks an envelope whose type is outside the catalog. The
// consumer drops such messages instead of retrying them.
var ErrUnknownKind = errors.New("unknown event kind")

// EventKind identifies a domain event on the notification queue. The set is
// closed: every kind listed here has exactly one consumer handler.
type EventKind string

const (
	EventPostCreated    EventKind = "POST_CREATED"
	EventPostLiked      EventKind = "POST_LIKED"
	EventPostUnliked    EventKind = "POST_UNLIKED"
	EventCommentCreated EventKind = "COMMENT_CREATED"
	EventCommentLiked   EventKind = "COMMENT_LIKED"
	EventUserFollowed   EventKind = "USER_FOLLOWED"
	EventUserUnfollowed EventKind = "USER_UNFOLLOWED"
)

// Kinds lists every known event kind.
var Kinds = []EventKind{
	EventPostCreated,
	EventPostLiked,
	EventPostUnliked,
	EventCommentCreated,
	EventCommentLiked,
	EventUserFollowed,
	EventUserUnfollowed,
}

// Valid reports whether k is part of the closed event catalog.
func (k EventKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Envelope is the wire format carried on the queue. Data stays raw in transit
// and is decoded into one typed payload per kind by Payload.
type Envelope struct {
	Type      EventKind       `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// NewEnvelope wraps a payload for publishing. The timestamp is set once at
// creation and never changed in transit.
func NewEnvelope(kind EventKind, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Envelope{
		Type:      kind,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// PostCreated is published when a user creates a post their followers should
// hear about.
type PostCreated struct {
	PostID     string   `json:"postId"`
	UserID     string   `json:"userId"`
	Recipients []string `json:"recipients"`
	URL        string   `json:"url"`
	Text       string   `json:"text"`
	Content    string   `json:"content,omitempty"`
}

type PostLiked struct {
	PostID     string   `json:"postId"`
	UserID     string   `json:"userId"`
	Recipients []string `json:"recipients"`
	URL        string   `json:"url"`
	Text       string   `json:"text"`
}

type PostUnliked struct {
	PostID string `json:"postId"`
	UserID string `json:"userId"`
}

type CommentCreated struct {
	CommentID  string   `json:"commentId"`
	PostID     string   `json:"postId"`
	UserID     string   `json:"userId"`
	Recipients []string `json:"recipients"`
	URL        string   `json:"url"`
	Text       string   `json:"text"`
	Content    string   `json:"content,omitempty"`
}

type CommentLiked struct {
	CommentID  string   `json:"commentId"`
	PostID     string   `json:"postId"`
	UserID     string   `json:"userId"`
	Recipients []string `json:"recipients"`
	URL        string   `json:"url"`
	Text       string   `json:"text"`
}

type UserFollowed struct {
	UserID     string   `json:"userId"`
	Recipients []string `json:"recipients"`
	URL        string   `json:"url"`
	Text       string   `json:"text"`
}

type UserUnfollowed struct {
	UserID     string   `json:"userId"`
	Recipients []string `json:"recipients"`
}

// Payload decodes Data into the payload type matching the envelope kind and
// validates the fields the catalog requires. Unknown kinds return an error so
// the consumer can drop them explicitly.
func (e *Envelope) Payload() (interface{}, error) {
	switch e.Type {
	case EventPostCreated:
		var p PostCreated
		if err := decode(e.Data, &p); err != nil {
			return nil, err
		}
		if p.PostID == "" || p.UserID == "" {
			return nil, fmt.Errorf("%s: postId and userId are required", e.Type)
		}
		return &p, nil
	case EventPostLiked:
		var p PostLiked
		if err := decode(e.Data, &p); err != nil {
			return nil, err
		}
		if p.PostID == "" || p.UserID == "" {
			return nil, fmt.Errorf("%s: postId and userId are required", e.Type)
		}
		return &p, nil
	case EventPostUnliked:
		var p PostUnliked
		if err := decode(e.Data, &p); err != nil {
			return nil, err
		}
		if p.PostID == "" || p.UserID == "" {
			return nil, fmt.Errorf("%s: postId and userId are required", e.Type)
		}
		return &p, nil
	case EventCommentCreated:
		var p CommentCreated
		if err := decode(e.Data, &p); err != nil {
			return nil, err
		}
		if p.PostID == "" || p.UserID == "" {
			return nil, fmt.Errorf("%s: postId and userId are required", e.Type)
		}
		return &p, nil
	case EventCommentLiked:
		var p CommentLiked
		if err := decode(e.Data, &p); err != nil {
			return nil, err
		}
		if p.CommentID == "" || p.UserID == "" {
			return nil, fmt.Errorf("%s: commentId and userId are required", e.Type)
		}
		return &p, nil
	case EventUserFollowed:
		var p UserFollowed
		if err := decode(e.Data, &p); err != nil {
			return nil, err
		}
		if p.UserID == "" {
			return nil, fmt.Errorf("%s: userId is required", e.Type)
		}
		return &p, nil
	case EventUserUnfollowed:
		var p UserUnfollowed
		if err := decode(e.Data, &p); err != nil {
			return nil, err
		}
		if p.UserID == "" {
			return nil, fmt.Errorf("%s: userId is required", e.Type)
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, e.Type)
	}
}

func decode(raw json.RawMessage, dest interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty event data")
	}
	return json.Unmarshal(raw, dest)
}
