package ws

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"atelier-chat/contract"
	"atelier-chat/identity"
	"atelier-chat/membership"
	"atelier-chat/observability"
)

const defaultOutboundBuffer = 64

// Server upgrades HTTP requests to chat connections. One Connection is
// created per socket and runs until the peer goes away.
type Server struct {
	log            *slog.Logger
	resolver       identity.IResolver
	policy         membership.IPolicy
	orchestrator   contract.IOrchestrator
	monitoring     *observability.Manager
	validate       *validator.Validate
	upgrader       websocket.Upgrader
	outboundBuffer int
}

func NewServer(
	log *slog.Logger,
	resolver identity.IResolver,
	policy membership.IPolicy,
	orchestrator contract.IOrchestrator,
	monitoring *observability.Manager,
	outboundBuffer int) *Server {
	if outboundBuffer <= 0 {
		outboundBuffer = defaultOutboundBuffer
	}
	return &Server{
		log:          log,
		resolver:     resolver,
		policy:       policy,
		orchestrator: orchestrator,
		monitoring:   monitoring,
		validate:     validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients come from the app origin; the token in
			// the identify event is the actual trust anchor.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		outboundBuffer: outboundBuffer,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	connID := contract.ConnID(uuid.NewString())
	s.log.Debug("Connection opened", "conn", connID, "remote", r.RemoteAddr)

	connection := newConnection(connID, socket, s.resolver, s.policy,
		s.orchestrator, s.monitoring, s.validate, s.log, s.outboundBuffer)
	connection.Run(r.Context())
}
