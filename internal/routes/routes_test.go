package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/giaprika/Social-Media-Platform/internal/breaker"
	"github.com/giaprika/Social-Media-Platform/internal/broker"
	"github.com/giaprika/Social-Media-Platform/internal/models"
	"github.com/giaprika/Social-Media-Platform/internal/repository"
	"github.com/giaprika/Social-Media-Platform/internal/services"
	"github.com/giaprika/Social-Media-Platform/pkg/metrics"
)

type routerFixture struct {
	handler http.Handler
	store   *repository.NotificationStore
	users   *httptest.Server
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:routes_%s?mode=memory&cache=shared", uuid.NewString())
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

	users := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"_id":"u1","username":"alice","avatar":"/a.png"}`))
	}))
	t.Cleanup(users.Close)

	br := breaker.New("user-service", breaker.Config{}, nil)
	userClient := services.NewUserClient(users.URL, time.Second, br)
	notifies := services.NewNotifyService(store, nil, userClient, nil, nil)

	// The broker is intentionally unreachable; ingest must degrade to 503.
	conn := broker.NewConnection("amqp://127.0.0.1:1/", "notification_events", "notification_events_dlq", time.Hour, nil)
	pub := broker.NewPublisher(conn, 8, metrics.New(), nil)

	return &routerFixture{
		handler: NewRouter(metrics.New(), br, notifies, pub, time.Now()),
		store:   store,
		users:   users,
	}
}

func (fx *routerFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	fx := newRouterFixture(t)

	rec := fx.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["success"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	fx := newRouterFixture(t)

	rec := fx.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var counters map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &counters); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := counters["consumed"]; !ok {
		t.Fatalf("missing consumed counter: %v", counters)
	}
}

func TestBreakerEndpoint(t *testing.T) {
	fx := newRouterFixture(t)

	rec := fx.do(t, http.MethodGet, "/breaker", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "CLOSED") {
		t.Fatalf("snapshot = %s", rec.Body.String())
	}
}

func TestGetNotifications_JoinsActor(t *testing.T) {
	fx := newRouterFixture(t)

	err := fx.store.Create(context.Background(), &models.Notification{
		EntityID:   "p1",
		UserID:     "u1",
		Recipients: []string{"u2"},
		URL:        "/post/p1",
		Text:       models.TextLikedPost,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := fx.do(t, http.MethodGet, "/notifications/u2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Success bool                         `json:"success"`
		Data    []services.NotificationView `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 {
		t.Fatalf("data = %+v", body.Data)
	}
	if body.Data[0].User == nil || body.Data[0].User.Username != "alice" {
		t.Fatalf("actor not joined: %+v", body.Data[0].User)
	}
}

func TestMarkReadEndpoint(t *testing.T) {
	fx := newRouterFixture(t)

	n := &models.Notification{
		EntityID:   "p1",
		UserID:     "u1",
		Recipients: []string{"u2"},
		Text:       models.TextLikedPost,
	}
	if err := fx.store.Create(context.Background(), n); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := fx.do(t, http.MethodPatch, "/notifications/u2/"+n.NotifyID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	list, err := fx.store.ListForRecipient(context.Background(), "u2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || !list[0].IsRead {
		t.Fatalf("notification not marked read: %+v", list)
	}
}

func TestDeleteNotificationsEndpoint(t *testing.T) {
	fx := newRouterFixture(t)

	for i := 0; i < 2; i++ {
		err := fx.store.Create(context.Background(), &models.Notification{
			EntityID:   fmt.Sprintf("p%d", i),
			UserID:     "u1",
			Recipients: []string{"u2"},
			Text:       models.TextLikedPost,
		})
		if err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	rec := fx.do(t, http.MethodDelete, "/notifications/u2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Deleted != 2 {
		t.Fatalf("deleted = %d", body.Deleted)
	}

	list, _ := fx.store.ListForRecipient(context.Background(), "u2")
	if len(list) != 0 {
		t.Fatalf("notifications remain: %+v", list)
	}
}

func TestIngest_UnknownKindRejected(t *testing.T) {
	fx := newRouterFixture(t)

	rec := fx.do(t, http.MethodPost, "/events", `{"type":"POST_ARCHIVED","data":{}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestIngest_MalformedBodyRejected(t *testing.T) {
	fx := newRouterFixture(t)

	rec := fx.do(t, http.MethodPost, "/events", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestIngest_BrokerDownIs503(t *testing.T) {
	fx := newRouterFixture(t)

	body := `{"type":"POST_LIKED","data":{"postId":"p1","userId":"u1","recipients":["u2"]}}`
	rec := fx.do(t, http.MethodPost, "/events", body)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
