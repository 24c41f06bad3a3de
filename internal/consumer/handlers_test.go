package consumer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/giaprika/Social-Media-Platform/internal/models"
	"github.com/giaprika/Social-Media-Platform/internal/relay"
	"github.com/giaprika/Social-Media-Platform/internal/repository"
	"github.com/giaprika/Social-Media-Platform/internal/services"
)

type fakeCache struct {
	deleted []string
}

func (f *fakeCache) Del(ctx context.Context, keyOrPattern string) {
	f.deleted = append(f.deleted, keyOrPattern)
}

type emission struct {
	event   string
	payload interface{}
}

type fakeRelay struct {
	emitted []emission
}

func (f *fakeRelay) Emit(event string, payload interface{}) bool {
	f.emitted = append(f.emitted, emission{event: event, payload: payload})
	return true
}

type fakeUsers struct {
	actors map[string]*models.Actor
	err    error
}

func (f *fakeUsers) GetUser(ctx context.Context, id string) (*models.Actor, error) {
	if f.err != nil {
		return nil, f.err
	}
	if a, ok := f.actors[id]; ok {
		return a, nil
	}
	return &models.Actor{ID: id}, nil
}

type handlerFixture struct {
	handlers *Handlers
	store    *repository.NotificationStore
	cache    *fakeCache
	relay    *fakeRelay
	users    *fakeUsers
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store, err := repository.NewNotificationStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	fc := &fakeCache{}
	fr := &fakeRelay{}
	fu := &fakeUsers{actors: map[string]*models.Actor{}}
	return &handlerFixture{
		handlers: NewHandlers(store, fc, fr, fu, nil),
		store:    store,
		cache:    fc,
		relay:    fr,
		users:    fu,
	}
}

func envelope(t *testing.T, kind models.EventKind, payload interface{}) *models.Envelope {
	t.Helper()
	env, err := models.NewEnvelope(kind, payload)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return env
}

func TestPostLiked_IdempotentUnderRedelivery(t *testing.T) {
	fx := newHandlerFixture(t)
	ctx := context.Background()

	env := envelope(t, models.EventPostLiked, &models.PostLiked{
		PostID: "p1", UserID: "u1", Recipients: []string{"owner"},
		URL: "/post/p1", Text: models.TextLikedPost,
	})

	if err := fx.handlers.Handle(ctx, env); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := fx.handlers.Handle(ctx, env); err != nil {
		t.Fatalf("duplicate delivery: %v", err)
	}

	list, err := fx.store.ListForRecipient(ctx, "owner")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected exactly one like notification, got %d", len(list))
	}
	if list[0].Text != models.TextLikedPost {
		t.Fatalf("text = %q", list[0].Text)
	}
}

func TestCommentLiked_IdempotentUnderRedelivery(t *testing.T) {
	fx := newHandlerFixture(t)
	ctx := context.Background()

	env := envelope(t, models.EventCommentLiked, &models.CommentLiked{
		CommentID: "c1", PostID: "p1", UserID: "u1", Recipients: []string{"owner"},
		URL: "/post/p1", Text: models.TextLikedComment,
	})

	for i := 0; i < 3; i++ {
		if err := fx.handlers.Handle(ctx, env); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	list, _ := fx.store.ListForRecipient(ctx, "owner")
	if len(list) != 1 {
		t.Fatalf("expected one comment-like notification, got %d", len(list))
	}
}

func TestPostCreated_InsertsWithoutDedup(t *testing.T) {
	fx := newHandlerFixture(t)
	ctx := context.Background()

	env := envelope(t, models.EventPostCreated, &models.PostCreated{
		PostID: "p1", UserID: "u1", Recipients: []string{"f1", "f2"},
		URL: "/post/p1", Text: "created a new post", Content: "hello world",
	})

	if err := fx.handlers.Handle(ctx, env); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := fx.handlers.Handle(ctx, env); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	// Creation events are deliberately not deduplicated.
	list, _ := fx.store.ListForRecipient(ctx, "f1")
	if len(list) != 2 {
		t.Fatalf("expected duplicate creation records, got %d", len(list))
	}
}

func TestPostCreated_InvalidatesEveryRecipient(t *testing.T) {
	fx := newHandlerFixture(t)

	env := envelope(t, models.EventPostCreated, &models.PostCreated{
		PostID: "p1", UserID: "u1", Recipients: []string{"f1", "f2"},
		URL: "/post/p1", Text: "created a new post",
	})
	if err := fx.handlers.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}

	want := []string{
		"cache:notifications:getNotifies:f1:*",
		"cache:notifications:getNotifies:f2:*",
	}
	if len(fx.cache.deleted) != len(want) {
		t.Fatalf("deleted patterns = %v", fx.cache.deleted)
	}
	for i, p := range want {
		if fx.cache.deleted[i] != p {
			t.Fatalf("pattern %d = %q, want %q", i, fx.cache.deleted[i], p)
		}
	}
}

func TestPostUnliked_RemovesRecordAndEmits(t *testing.T) {
	fx := newHandlerFixture(t)
	ctx := context.Background()

	liked := envelope(t, models.EventPostLiked, &models.PostLiked{
		PostID: "p1", UserID: "u1", Recipients: []string{"owner"},
		URL: "/post/p1", Text: models.TextLikedPost,
	})
	if err := fx.handlers.Handle(ctx, liked); err != nil {
		t.Fatalf("like: %v", err)
	}

	unliked := envelope(t, models.EventPostUnliked, &models.PostUnliked{
		PostID: "p1", UserID: "u1",
	})
	if err := fx.handlers.Handle(ctx, unliked); err != nil {
		t.Fatalf("unlike: %v", err)
	}

	list, _ := fx.store.ListForRecipient(ctx, "owner")
	if len(list) != 0 {
		t.Fatalf("like notification should be gone, found %d", len(list))
	}

	var removes []emission
	for _, e := range fx.relay.emitted {
		if e.event == relay.EventRemoveNotify {
			removes = append(removes, e)
		}
	}
	if len(removes) != 1 {
		t.Fatalf("expected one removeNotify emission, got %d", len(removes))
	}
	payload, ok := removes[0].payload.(removeNotify)
	if !ok {
		t.Fatalf("payload type %T", removes[0].payload)
	}
	if payload.ID != "p1" || payload.UserID != "u1" || payload.URL != "/post/p1" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestPostUnliked_NoRecordIsSilentNoOp(t *testing.T) {
	fx := newHandlerFixture(t)

	env := envelope(t, models.EventPostUnliked, &models.PostUnliked{
		PostID: "p9", UserID: "u1",
	})
	if err := fx.handlers.Handle(context.Background(), env); err != nil {
		t.Fatalf("unlike with no record must succeed: %v", err)
	}
	if len(fx.relay.emitted) != 0 {
		t.Fatalf("no removeNotify may be emitted when nothing was removed: %v", fx.relay.emitted)
	}
	if len(fx.cache.deleted) != 0 {
		t.Fatalf("no invalidation without a write: %v", fx.cache.deleted)
	}
}

func TestUserUnfollowed_RemovesFollowNotification(t *testing.T) {
	fx := newHandlerFixture(t)
	ctx := context.Background()

	followed := envelope(t, models.EventUserFollowed, &models.UserFollowed{
		UserID: "u1", Recipients: []string{"u2"},
		URL: "/profile/u1", Text: models.TextFollowed,
	})
	if err := fx.handlers.Handle(ctx, followed); err != nil {
		t.Fatalf("follow: %v", err)
	}

	unfollowed := envelope(t, models.EventUserUnfollowed, &models.UserUnfollowed{
		UserID: "u1", Recipients: []string{"u2"},
	})
	if err := fx.handlers.Handle(ctx, unfollowed); err != nil {
		t.Fatalf("unfollow: %v", err)
	}

	list, _ := fx.store.ListForRecipient(ctx, "u2")
	if len(list) != 0 {
		t.Fatalf("follow notification should be gone, found %d", len(list))
	}
}

func TestCreateEmission_JoinsActorIdentity(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.users.actors["u1"] = &models.Actor{ID: "u1", Username: "alice", Avatar: "/a.png"}

	env := envelope(t, models.EventUserFollowed, &models.UserFollowed{
		UserID: "u1", Recipients: []string{"u2"},
		URL: "/profile/u1", Text: models.TextFollowed,
	})
	if err := fx.handlers.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(fx.relay.emitted) != 1 || fx.relay.emitted[0].event != relay.EventCreateNotify {
		t.Fatalf("emissions = %v", fx.relay.emitted)
	}
	view, ok := fx.relay.emitted[0].payload.(services.NotificationView)
	if !ok {
		t.Fatalf("payload type %T", fx.relay.emitted[0].payload)
	}
	if view.User == nil || view.User.Username != "alice" {
		t.Fatalf("actor = %+v", view.User)
	}
}

func TestCreateEmission_FallsBackToMinimalActor(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.users.err = errors.New("user service unavailable")

	env := envelope(t, models.EventPostLiked, &models.PostLiked{
		PostID: "p1", UserID: "u1", Recipients: []string{"owner"},
		URL: "/post/p1", Text: models.TextLikedPost,
	})
	if err := fx.handlers.Handle(context.Background(), env); err != nil {
		t.Fatalf("a broken user service must not fail the handler: %v", err)
	}

	view := fx.relay.emitted[0].payload.(services.NotificationView)
	if view.User == nil || view.User.ID != "u1" || view.User.Username != "" {
		t.Fatalf("expected minimal actor, got %+v", view.User)
	}
}

func TestHandle_UnknownKind(t *testing.T) {
	fx := newHandlerFixture(t)

	env := &models.Envelope{Type: "POST_ARCHIVED", Data: []byte(`{}`)}
	err := fx.handlers.Handle(context.Background(), env)
	if !errors.Is(err, models.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}
