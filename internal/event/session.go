package event

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/domain"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/session"
	pkgkafka "github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/kafka"
	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/logger"
)

// Session lifecycle topics.
var (
	TopicLoggedIn       = pkgkafka.Topic("session", "logged_in")
	TopicLoggedOut      = pkgkafka.Topic("session", "logged_out")
	TopicProfileUpdated = pkgkafka.Topic("session", "profile_updated")
)

// SourcePortal identifies events published by the portal.
const SourcePortal = "nutrition-portal"

const publishTimeout = 5 * time.Second

// SessionData is the payload of every session event.
type SessionData struct {
	UserID    int    `json:"user_id"`
	Email     string `json:"email,omitempty"`
	UserType  string `json:"user_type,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	IsAdmin   bool   `json:"is_admin"`
	HasActive bool   `json:"has_active_subscription"`
}

// Publisher sends an event to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// SessionPublisher turns session transitions into Kafka events. Publishing
// happens in the background; failures are logged and never reach the session.
type SessionPublisher struct {
	pub    Publisher
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewSessionPublisher creates a new SessionPublisher.
func NewSessionPublisher(pub Publisher, logger *slog.Logger) *SessionPublisher {
	return &SessionPublisher{pub: pub, logger: logger}
}

// Listen is a session.Listener.
func (p *SessionPublisher) Listen(ctx context.Context, prev, next session.State) {
	topic, u := Classify(prev, next)
	if topic == "" {
		return
	}

	data := newSessionData(u)
	evt, err := pkgkafka.NewEvent(topic, fmt.Sprint(u.ID), SourcePortal, data)
	if err != nil {
		p.logger.ErrorContext(ctx, "create session event", slog.String("topic", topic), slog.String("error", err.Error()))
		return
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	// The request that caused the transition may finish before the write.
	bg := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		pubCtx, cancel := context.WithTimeout(bg, publishTimeout)
		defer cancel()
		if err := p.pub.Publish(pubCtx, topic, evt); err != nil {
			p.logger.WarnContext(pubCtx, "session event dropped",
				slog.String("topic", topic),
				slog.Int("user_id", u.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait blocks until in-flight publishes finish.
func (p *SessionPublisher) Wait() {
	p.wg.Wait()
}

// Classify names the topic for a transition and the user it is about. It
// returns "" for transitions that publish nothing (flag-only changes).
func Classify(prev, next session.State) (string, *domain.User) {
	switch {
	case prev.User == nil && next.User == nil:
		return "", nil
	case prev.User == nil:
		return TopicLoggedIn, next.User
	case next.User == nil:
		return TopicLoggedOut, prev.User
	case prev.User.ID != next.User.ID:
		return TopicLoggedIn, next.User
	case !reflect.DeepEqual(prev.User, next.User):
		return TopicProfileUpdated, next.User
	default:
		return "", nil
	}
}

func newSessionData(u *domain.User) SessionData {
	return SessionData{
		UserID:    u.ID,
		Email:     u.Email,
		UserType:  u.UserType,
		FullName:  u.FullName(),
		IsAdmin:   domain.IsAdmin(u),
		HasActive: domain.HasActiveSubscription(u),
	}
}
