package stream

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ryohi-cloud/backend/internal/identity"
	"github.com/ryohi-cloud/backend/internal/middleware"
	"github.com/ryohi-cloud/backend/internal/realtime"
	"github.com/ryohi-cloud/backend/pkg/response"
)

// minBuffer holds the ready message, one coalesced signal for each of the
// applications, notifications and identity topics, and the sign-out notice.
const minBuffer = 5

// Subscriber registers change handlers; *realtime.Hub satisfies it.
type Subscriber interface {
	Subscribe(topic string, fn realtime.Handler) *realtime.Subscription
}

// Server upgrades /ws requests into change streams.
type Server struct {
	sessions *identity.Sessions
	hub      Subscriber
	buffer   int
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer creates a stream server. allowedOrigins uses the CORS syntax.
func NewServer(sessions *identity.Sessions, hub Subscriber, buffer int, allowedOrigins string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer < minBuffer {
		buffer = minBuffer
	}
	return &Server{
		sessions: sessions,
		hub:      hub,
		buffer:   buffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     middleware.ParseOrigins(allowedOrigins).CheckOrigin,
		},
		logger: logger,
	}
}

// ServeWs handles GET /ws?token=. The session is established before the
// upgrade so auth failures get a plain HTTP error.
func (s *Server) ServeWs(c *gin.Context) {
	token := identity.TokenFromRequest(c)
	if token == "" {
		response.Unauthorized(c, "token required")
		return
	}
	sess := s.sessions.New()
	if err := sess.Establish(c.Request.Context(), token); err != nil {
		sess.Close()
		if errors.Is(err, identity.ErrNotSignedIn) {
			response.Unauthorized(c, "invalid or expired token")
			return
		}
		response.Error(c, err)
		return
	}
	member, org, _ := sess.CurrentIdentity()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sess.Close()
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(sess, conn, s.buffer, s.logger)
	off, err := sess.OnIdentityChange(client.onIdentityChange)
	if err != nil {
		sess.Close()
		_ = conn.Close()
		s.logger.Warn("watch identity", zap.String("client", client.ID), zap.Error(err))
		return
	}
	topics := []string{
		realtime.ApplicationsTopic(org.ID),
		realtime.NotificationsTopic(member.ID),
	}
	client.mu.Lock()
	client.offID = off
	for _, topic := range topics {
		client.subs = append(client.subs, s.hub.Subscribe(topic, func(ev realtime.Event) {
			client.changed(ev.Topic)
		}))
	}
	client.mu.Unlock()

	topics = append(topics, realtime.IdentityTopic(sess.Claims().CredentialID))
	client.enqueue(outbound{msg: encode(EventReady, ReadyData{
		MemberID:       member.ID,
		OrganizationID: org.ID,
		Topics:         topics,
	})})
	s.logger.Info("stream connected",
		zap.String("client", client.ID),
		zap.String("organization_id", org.ID.String()),
		zap.String("member_id", member.ID.String()),
	)

	go client.writePump()
	client.readPump()
	s.logger.Info("stream disconnected", zap.String("client", client.ID))
}
