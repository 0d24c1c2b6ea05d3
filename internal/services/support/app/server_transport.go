package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	apperrors "github.com/louisbranch/supportdesk/internal/platform/errors"
	"github.com/louisbranch/supportdesk/internal/platform/id"
	"github.com/louisbranch/supportdesk/internal/platform/requestctx"
	"github.com/louisbranch/supportdesk/internal/services/support/presence"
	"github.com/louisbranch/supportdesk/internal/services/support/routing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/websocket"
	"golang.org/x/text/language"
)

const tracerName = "github.com/louisbranch/supportdesk/internal/services/support/app"

var errIdentityMismatch = apperrors.New(apperrors.CodeIdentityMismatch, "user_id does not match token")

const (
	frameIdentify   = "support.identify"
	frameSelectUser = "support.select_user"
	frameMessage    = "support.message"
	frameError      = "support.error"
)

// NewHandler creates support routes for tests and offline paths.
// Token verification is disabled in this constructor.
func NewHandler() http.Handler {
	return newHandler(handlerConfig{closeSuperseded: true})
}

// NewHandlerWithAuthorizer creates support routes that require a verified token.
func NewHandlerWithAuthorizer(authorizer wsAuthorizer) http.Handler {
	return newHandler(handlerConfig{authorizer: authorizer, requireAuth: true, closeSuperseded: true})
}

type handlerConfig struct {
	authorizer      wsAuthorizer
	requireAuth     bool
	historyLimit    int
	closeSuperseded bool
}

// supportHub wires connections to the routing service.
type supportHub struct {
	registry *presence.Registry
	peers    *peerTable
	service  *routing.Service
	tracer   trace.Tracer
}

func newSupportHub(config handlerConfig) *supportHub {
	registry := presence.NewRegistry(presence.WithHistoryLimit(config.historyLimit))
	peers := newPeerTable()
	return &supportHub{
		registry: registry,
		peers:    peers,
		service:  routing.NewService(registry, peers, routing.WithCloseSuperseded(config.closeSuperseded)),
		tracer:   otel.Tracer(tracerName),
	}
}

func newHandler(config handlerConfig) http.Handler {
	return newSupportHub(config).routes(config)
}

// close releases the hub's telemetry registrations.
func (h *supportHub) close() {
	if h == nil {
		return
	}
	if err := h.service.Close(); err != nil {
		log.Printf("support: close routing service: %v", err)
	}
}

func (h *supportHub) routes(config handlerConfig) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	router.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(h.registry.Stats()); err != nil {
			log.Printf("support: encode stats: %v", err)
		}
	})

	wsHandler := websocket.Handler(h.serveConn)
	authorizer := config.authorizer
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if config.requireAuth {
			if authorizer == nil {
				http.Error(w, "websocket auth is not configured", http.StatusServiceUnavailable)
				return
			}

			accessToken := accessTokenFromRequest(r)
			if accessToken == "" {
				log.Printf("support: websocket unauthorized: missing token for host=%q remote=%s", r.Host, r.RemoteAddr)
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			identity, err := authorizer.Authenticate(r.Context(), accessToken)
			if err != nil {
				log.Printf("support: websocket unauthorized: host=%q remote=%s err=%v", r.Host, r.RemoteAddr, err)
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			r = r.WithContext(requestctx.WithIdentity(r.Context(), identity))
		}

		wsHandler.ServeHTTP(w, r)
	})

	return router
}

// wsSession is the per-connection state owned by the reading goroutine.
type wsSession struct {
	peer           *wsPeer
	caller         routing.Caller
	acceptLanguage string
	locale         language.Tag
	bound          requestctx.Identity
	hasBound       bool
}

func newWSSession(peer *wsPeer, request *http.Request) *wsSession {
	session := &wsSession{
		peer:   peer,
		locale: language.English,
	}
	if request == nil {
		return session
	}
	session.acceptLanguage = request.Header.Get("Accept-Language")
	session.locale = routing.MatchLocale(session.acceptLanguage)
	session.bound, session.hasBound = requestctx.IdentityFromContext(request.Context())
	return session
}

func (h *supportHub) serveConn(conn *websocket.Conn) {
	handle, err := id.NewID()
	if err != nil {
		log.Printf("support: allocate connection handle: %v", err)
		_ = conn.Close()
		return
	}

	request := conn.Request()
	ctx := context.Background()
	remote := ""
	if request != nil {
		ctx = request.Context()
		remote = request.RemoteAddr
	}

	peer := newWSPeer(presence.Handle(handle), conn)
	h.peers.add(peer)
	go peer.writeLoop()
	session := newWSSession(peer, request)
	log.Printf("support: connection %s opened remote=%s token_user=%q", peer.handle, remote, requestctx.UserIDFromContext(ctx))

	defer func() {
		h.peers.remove(peer)
		h.service.Disconnect(context.WithoutCancel(ctx), routing.Disconnect{Handle: peer.handle})
		peer.closeAfterFlush()
		peer.wait()
		log.Printf("support: connection %s closed", peer.handle)
	}()

	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || peer.closed() {
				return
			}
			decodeErrors++
			_ = writeWSError(peer, "", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(peer, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		if !h.dispatch(ctx, session, frame) {
			return
		}
	}
}

// dispatch handles one frame and reports whether the connection should stay
// open. A panicking handler closes only this connection.
func (h *supportHub) dispatch(ctx context.Context, session *wsSession, frame wsFrame) (keepOpen bool) {
	ctx, span := h.tracer.Start(ctx, frame.Type,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("support.connection", string(session.peer.handle))),
	)
	defer span.End()

	defer func() {
		if recovered := recover(); recovered != nil {
			log.Printf("support: %s on %s panicked: %v", frame.Type, session.peer.handle, recovered)
			span.SetStatus(codes.Error, "panic")
			_ = writeWSError(session.peer, frame.RequestID, "INTERNAL", "internal error")
			keepOpen = false
		}
	}()

	switch frame.Type {
	case frameIdentify:
		h.handleIdentifyFrame(ctx, session, frame)
	case frameSelectUser:
		h.handleSelectUserFrame(ctx, session, frame)
	case frameMessage:
		h.handleMessageFrame(ctx, session, frame)
	default:
		span.SetStatus(codes.Error, "unsupported frame type")
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
	}
	return true
}

func (h *supportHub) handleIdentifyFrame(ctx context.Context, session *wsSession, frame wsFrame) {
	var payload identifyPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid identify payload")
		return
	}

	userID := strings.TrimSpace(payload.UserID)
	name := strings.TrimSpace(payload.Name)
	isAdmin := payload.IsAdmin
	if session.hasBound {
		if userID != "" && userID != session.bound.UserID {
			log.Printf("support: identify as %q rejected for token user %q", userID, session.bound.UserID)
			writeServiceError(session, frame.RequestID, errIdentityMismatch)
			return
		}
		userID = session.bound.UserID
		if session.bound.Name != "" {
			name = session.bound.Name
		}
		isAdmin = session.bound.IsAdmin
	}
	if userID == "" {
		writeServiceError(session, frame.RequestID, routing.ErrIdentityRequired)
		return
	}

	// A connection speaks for one identity at a time.
	if current := session.caller.UserID; current != "" && current != userID {
		h.service.Disconnect(ctx, routing.Disconnect{Handle: session.peer.handle})
	}

	if locale := strings.TrimSpace(payload.Locale); locale != "" {
		session.locale = routing.MatchLocale(locale, session.acceptLanguage)
	}

	identified, err := h.service.Identify(ctx, routing.Identify{
		Handle:  session.peer.handle,
		UserID:  userID,
		Name:    name,
		IsAdmin: isAdmin,
	})
	if err != nil {
		writeServiceError(session, frame.RequestID, err)
		return
	}
	session.caller = routing.Caller{
		Handle:  session.peer.handle,
		UserID:  identified.Identity,
		Name:    identified.DisplayName,
		IsAdmin: identified.IsAdmin,
		Locale:  session.locale,
	}
}

func (h *supportHub) handleSelectUserFrame(ctx context.Context, session *wsSession, frame wsFrame) {
	var payload selectUserPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid select payload")
		return
	}
	err := h.service.SelectUser(ctx, routing.SelectUser{Caller: session.caller, UserID: payload.UserID})
	if err != nil {
		writeServiceError(session, frame.RequestID, err)
	}
}

func (h *supportHub) handleMessageFrame(ctx context.Context, session *wsSession, frame wsFrame) {
	var payload messagePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid message payload")
		return
	}
	err := h.service.Route(ctx, routing.Send{
		Caller: session.caller,
		To:     payload.UserID,
		Name:   payload.Name,
		Body:   payload.Body,
	})
	if err != nil {
		writeServiceError(session, frame.RequestID, err)
	}
}

// writeServiceError reports a command failure in the connection's locale.
func writeServiceError(session *wsSession, requestID string, err error) {
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		log.Printf("support: command on %s failed: %v", session.peer.handle, err)
		domainErr = apperrors.Wrap(apperrors.CodeUnknown, "internal error", err)
	}
	_ = writeWSError(session.peer, requestID, domainErr.Code.WireCode(), domainErr.Localized(session.locale))
}

func writeWSError(peer *wsPeer, requestID string, code string, message string) error {
	return peer.writeFrame(wsFrame{
		Type:      frameError,
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      code,
				Message:   message,
				Retryable: code == "RESOURCE_EXHAUSTED",
			},
		}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
