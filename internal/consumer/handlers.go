package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/giaprika/Social-Media-Platform/internal/cache"
	"github.com/giaprika/Social-Media-Platform/internal/models"
	"github.com/giaprika/Social-Media-Platform/internal/relay"
	"github.com/giaprika/Social-Media-Platform/internal/services"
)

// Store is the persistence surface the handlers need. The notification table
// is exclusively owned by these handlers; nothing else writes event-driven
// records.
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	FindExisting(ctx context.Context, entityID, userID, text string) (*models.Notification, error)
	DeleteMatching(ctx context.Context, entityID, userID, text string) (*models.Notification, error)
}

// Invalidator removes cache keys after an authoritative write.
type Invalidator interface {
	Del(ctx context.Context, keyOrPattern string)
}

// Emitter pushes results to the gateway realtime layer, best-effort.
type Emitter interface {
	Emit(event string, payload interface{}) bool
}

// ActorLookup resolves minimal actor identity; backed by the breaker-guarded
// user client in production.
type ActorLookup interface {
	GetUser(ctx context.Context, id string) (*models.Actor, error)
}

// removeNotify is the payload pushed when a notification is retracted.
type removeNotify struct {
	ID         string   `json:"id"`
	UserID     string   `json:"userId"`
	Recipients []string `json:"recipients"`
	URL        string   `json:"url"`
}

// Handlers applies one idempotent handler per event kind: creation events
// insert blindly, like events dedup first, removal events delete-if-present.
// The asymmetry is deliberate — likes are retried by users and must not
// duplicate, creations are rare enough that the duplication risk is accepted.
type Handlers struct {
	store  Store
	cache  Invalidator
	relay  Emitter
	users  ActorLookup
	logger *slog.Logger
}

func NewHandlers(store Store, c Invalidator, r Emitter, users ActorLookup, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: store, cache: c, relay: r, users: users, logger: logger}
}

// Handle dispatches one envelope to its handler. The switch is exhaustive
// over the closed event catalog; an unknown kind surfaces as
// models.ErrUnknownKind from Payload and is dropped by the caller.
func (h *Handlers) Handle(ctx context.Context, env *models.Envelope) error {
	payload, err := env.Payload()
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case *models.PostCreated:
		return h.postCreated(ctx, p)
	case *models.PostLiked:
		return h.postLiked(ctx, p)
	case *models.PostUnliked:
		return h.postUnliked(ctx, p)
	case *models.CommentCreated:
		return h.commentCreated(ctx, p)
	case *models.CommentLiked:
		return h.commentLiked(ctx, p)
	case *models.UserFollowed:
		return h.userFollowed(ctx, p)
	case *models.UserUnfollowed:
		return h.userUnfollowed(ctx, p)
	default:
		return fmt.Errorf("%w: no handler for %T", models.ErrUnknownKind, payload)
	}
}

func (h *Handlers) postCreated(ctx context.Context, p *models.PostCreated) error {
	n := &models.Notification{
		EntityID:   p.PostID,
		UserID:     p.UserID,
		Recipients: p.Recipients,
		URL:        p.URL,
		Text:       p.Text,
		Content:    p.Content,
	}
	if err := h.store.Create(ctx, n); err != nil {
		return fmt.Errorf("persist post-created notification: %w", err)
	}

	h.invalidate(ctx, n.Recipients)
	h.emitCreate(ctx, n)
	h.logger.Info("notification created", slog.String("event", "post created"), slog.String("userId", p.UserID))
	return nil
}

func (h *Handlers) postLiked(ctx context.Context, p *models.PostLiked) error {
	existing, err := h.store.FindExisting(ctx, p.PostID, p.UserID, models.TextLikedPost)
	if err != nil {
		return fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		h.logger.Info("notification already exists for post like",
			slog.String("postId", p.PostID), slog.String("userId", p.UserID))
		return nil
	}

	n := &models.Notification{
		EntityID:   p.PostID,
		UserID:     p.UserID,
		Recipients: p.Recipients,
		URL:        p.URL,
		Text:       p.Text,
	}
	if err := h.store.Create(ctx, n); err != nil {
		return fmt.Errorf("persist post-liked notification: %w", err)
	}

	h.invalidate(ctx, n.Recipients)
	h.emitCreate(ctx, n)
	h.logger.Info("notification created", slog.String("event", "post liked"), slog.String("userId", p.UserID))
	return nil
}

func (h *Handlers) postUnliked(ctx context.Context, p *models.PostUnliked) error {
	deleted, err := h.store.DeleteMatching(ctx, p.PostID, p.UserID, models.TextLikedPost)
	if err != nil {
		return fmt.Errorf("remove post-liked notification: %w", err)
	}
	if deleted == nil {
		// Already removed or never created; success either way.
		return nil
	}

	h.invalidate(ctx, deleted.Recipients)
	h.relay.Emit(relay.EventRemoveNotify, removeNotify{
		ID:         p.PostID,
		UserID:     p.UserID,
		Recipients: deleted.Recipients,
		URL:        deleted.URL,
	})
	h.logger.Info("notification removed", slog.String("event", "post unliked"), slog.String("userId", p.UserID))
	return nil
}

func (h *Handlers) commentCreated(ctx context.Context, p *models.CommentCreated) error {
	entityID := p.CommentID
	if entityID == "" {
		entityID = p.PostID
	}
	n := &models.Notification{
		EntityID:   entityID,
		UserID:     p.UserID,
		Recipients: p.Recipients,
		URL:        p.URL,
		Text:       p.Text,
		Content:    p.Content,
	}
	if err := h.store.Create(ctx, n); err != nil {
		return fmt.Errorf("persist comment-created notification: %w", err)
	}

	h.invalidate(ctx, n.Recipients)
	h.emitCreate(ctx, n)
	h.logger.Info("notification created", slog.String("event", "comment created"), slog.String("userId", p.UserID))
	return nil
}

func (h *Handlers) commentLiked(ctx context.Context, p *models.CommentLiked) error {
	existing, err := h.store.FindExisting(ctx, p.CommentID, p.UserID, models.TextLikedComment)
	if err != nil {
		return fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		h.logger.Info("notification already exists for comment like",
			slog.String("commentId", p.CommentID), slog.String("userId", p.UserID))
		return nil
	}

	n := &models.Notification{
		EntityID:   p.CommentID,
		UserID:     p.UserID,
		Recipients: p.Recipients,
		URL:        p.URL,
		Text:       p.Text,
	}
	if err := h.store.Create(ctx, n); err != nil {
		return fmt.Errorf("persist comment-liked notification: %w", err)
	}

	h.invalidate(ctx, n.Recipients)
	h.emitCreate(ctx, n)
	h.logger.Info("notification created", slog.String("event", "comment liked"), slog.String("userId", p.UserID))
	return nil
}

func (h *Handlers) userFollowed(ctx context.Context, p *models.UserFollowed) error {
	n := &models.Notification{
		EntityID:   p.UserID,
		UserID:     p.UserID,
		Recipients: p.Recipients,
		URL:        p.URL,
		Text:       p.Text,
	}
	if err := h.store.Create(ctx, n); err != nil {
		return fmt.Errorf("persist user-followed notification: %w", err)
	}

	h.invalidate(ctx, n.Recipients)
	h.emitCreate(ctx, n)
	h.logger.Info("notification created", slog.String("event", "user followed"), slog.String("userId", p.UserID))
	return nil
}

func (h *Handlers) userUnfollowed(ctx context.Context, p *models.UserUnfollowed) error {
	deleted, err := h.store.DeleteMatching(ctx, p.UserID, p.UserID, models.TextFollowed)
	if err != nil {
		return fmt.Errorf("remove user-followed notification: %w", err)
	}
	if deleted == nil {
		return nil
	}

	h.invalidate(ctx, deleted.Recipients)
	h.relay.Emit(relay.EventRemoveNotify, removeNotify{
		ID:         p.UserID,
		UserID:     p.UserID,
		Recipients: deleted.Recipients,
		URL:        deleted.URL,
	})
	h.logger.Info("notification removed", slog.String("event", "user unfollowed"), slog.String("userId", p.UserID))
	return nil
}

// invalidate drops every cached notification view of the recipients. Runs
// strictly after the store write; a failed invalidation is bounded by the
// cache TTL.
func (h *Handlers) invalidate(ctx context.Context, recipients []string) {
	for _, r := range recipients {
		h.cache.Del(ctx, cache.NotifiesPattern(r))
	}
}

// emitCreate pushes the stored record to connected clients, joined with the
// actor's identity. The lookup goes through the circuit breaker; when it
// fails the payload carries the bare actor id, and the emission itself stays
// best-effort.
func (h *Handlers) emitCreate(ctx context.Context, n *models.Notification) {
	actor, err := h.users.GetUser(ctx, n.UserID)
	if err != nil {
		h.logger.Warn("actor lookup failed, emitting minimal identity",
			slog.String("userId", n.UserID), slog.Any("error", err))
		actor = &models.Actor{ID: n.UserID}
	}
	h.relay.Emit(relay.EventCreateNotify, services.NotificationView{
		Notification: *n,
		User:         actor,
	})
}
