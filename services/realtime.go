package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Jahangir-Hossain99/Job-Site/models"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// Client-facing event names of the chat socket protocol. Frames are JSON:
// {"event": "...", "data": {...}}.
const (
	EventAuthenticate     = "authenticate"
	EventAuthenticated    = "authenticated"
	EventAuthError        = "authError"
	EventSendMessage      = "sendMessage"
	EventReceiveMessage   = "receiveMessage"
	EventMessageError     = "messageError"
	EventFetchChatHistory = "fetchChatHistory"
	EventChatHistory      = "chatHistory"
	EventChatHistoryError = "chatHistoryError"
)

const (
	defaultAuthWindow = 10 * time.Second
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxFrameSize      = 4096
	sendQueueSize     = 32
)

// ChatEvent is one inbound socket frame.
type ChatEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type errorPayload struct {
	Reason string `json:"reason"`
}

// MessageDelivery is the push payload published to both participants'
// channels when a message is stored.
type MessageDelivery struct {
	ID           uint             `json:"id"`
	Sender       ResolvedIdentity `json:"sender"`
	Receiver     uint             `json:"receiver"`
	ReceiverKind string           `json:"receiverKind"`
	Content      string           `json:"content"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// TokenVerifier turns a raw bearer credential into a party identity.
type TokenVerifier func(token string) (PartyRef, error)

// messageNotifier pushes a best-effort notification for a delivered message.
type messageNotifier interface {
	SendMessageNotification(receiverID uint, senderName, content string) error
}

var hubContext = context.Background()

// ChatHub tracks live sessions and owns the per-party delivery channels.
// With redis configured, events travel through redis pub/sub so sessions on
// other instances receive them too; without redis delivery is local only.
type ChatHub struct {
	store    *MessageStore
	resolver *IdentityResolver
	verify   TokenVerifier
	notifier messageNotifier
	redis    *redis.Client
	pubsub   *redis.PubSub

	authWindow time.Duration

	mu       sync.RWMutex
	sessions map[PartyRef]map[*ChatSession]struct{}
}

func NewChatHub(store *MessageStore, resolver *IdentityResolver, verify TokenVerifier, redisClient *redis.Client) *ChatHub {
	authWindow := defaultAuthWindow
	if raw := os.Getenv("CHAT_AUTH_WINDOW_SECONDS"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			authWindow = time.Duration(seconds) * time.Second
		}
	}

	h := &ChatHub{
		store:      store,
		resolver:   resolver,
		verify:     verify,
		redis:      redisClient,
		authWindow: authWindow,
		sessions:   make(map[PartyRef]map[*ChatSession]struct{}),
	}
	// Subscribe here, not in Run: a session binding before Run starts must
	// not miss its channel registration.
	if redisClient != nil {
		h.pubsub = redisClient.Subscribe(hubContext)
	}
	return h
}

// SetNotifier enables push notifications for messages addressed to users.
func (h *ChatHub) SetNotifier(notifier messageNotifier) {
	h.notifier = notifier
}

// Run pumps redis-published chat events into the local sessions. It returns
// when ctx is cancelled. Without redis there is nothing to pump.
func (h *ChatHub) Run(ctx context.Context) {
	if h.pubsub == nil {
		return
	}
	defer h.pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-h.pubsub.Channel():
			if !ok {
				return
			}
			party, err := partyFromChannel(msg.Channel)
			if err != nil {
				log.Printf("❌ chat hub: %v", err)
				continue
			}
			h.deliverLocal(party, []byte(msg.Payload))
		}
	}
}

// ServeConn runs the session loop for one upgraded connection. It blocks
// until the connection closes.
func (h *ChatHub) ServeConn(conn *websocket.Conn) {
	session := &ChatSession{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
	go session.writePump()
	session.readPump()
}

// Publish addresses one event to a party's channel.
func (h *ChatHub) Publish(party PartyRef, event string, payload interface{}) {
	frame, err := marshalEvent(event, payload)
	if err != nil {
		log.Printf("❌ chat hub: marshal %s: %v", event, err)
		return
	}

	if h.redis != nil {
		if err := h.redis.Publish(hubContext, partyChannel(party), frame).Err(); err == nil {
			return
		}
		// Redis down: degrade to local delivery so single-instance setups
		// keep working.
	}
	h.deliverLocal(party, frame)
}

// DeliverMessage publishes a stored message to both participants' channels
// (once if self-addressed) and fires the push notification for user
// receivers. Delivery is at-most-once: nothing is queued for parties with no
// live session.
func (h *ChatHub) DeliverMessage(message *models.Message) {
	sender := PartyRef{ID: message.SenderID, Kind: message.SenderKind}
	receiver := PartyRef{ID: message.ReceiverID, Kind: message.ReceiverKind}

	identity, err := h.resolver.Resolve(sender)
	if err != nil {
		identity = UnknownIdentity(sender)
	}
	identity.Email = ""

	payload := MessageDelivery{
		ID:           message.ID,
		Sender:       identity,
		Receiver:     message.ReceiverID,
		ReceiverKind: message.ReceiverKind,
		Content:      message.Content,
		CreatedAt:    message.CreatedAt,
	}

	h.Publish(receiver, EventReceiveMessage, payload)
	if receiver != sender {
		// Echo to the sender's own channel so their other devices see it.
		h.Publish(sender, EventReceiveMessage, payload)
	}

	if h.notifier != nil && receiver != sender && receiver.Kind == models.PartyKindUser {
		go h.notifier.SendMessageNotification(receiver.ID, identity.Name, message.Content)
	}
}

func (h *ChatHub) bind(session *ChatSession, party PartyRef) {
	h.mu.Lock()
	first := len(h.sessions[party]) == 0
	if h.sessions[party] == nil {
		h.sessions[party] = make(map[*ChatSession]struct{})
	}
	h.sessions[party][session] = struct{}{}
	h.mu.Unlock()

	if first && h.pubsub != nil {
		if err := h.pubsub.Subscribe(hubContext, partyChannel(party)); err != nil {
			log.Printf("❌ chat hub: subscribe %s: %v", party, err)
		}
	}
}

func (h *ChatHub) unbind(session *ChatSession, party PartyRef) {
	h.mu.Lock()
	delete(h.sessions[party], session)
	last := len(h.sessions[party]) == 0
	if last {
		delete(h.sessions, party)
	}
	h.mu.Unlock()

	if last && h.pubsub != nil {
		if err := h.pubsub.Unsubscribe(hubContext, partyChannel(party)); err != nil {
			log.Printf("❌ chat hub: unsubscribe %s: %v", party, err)
		}
	}
}

func (h *ChatHub) deliverLocal(party PartyRef, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for session := range h.sessions[party] {
		session.enqueue(frame)
	}
}

func partyChannel(party PartyRef) string {
	return fmt.Sprintf("chat:party:%s:%d", party.Kind, party.ID)
}

func partyFromChannel(channel string) (PartyRef, error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[0] != "chat" || parts[1] != "party" || !models.KnownPartyKind(parts[2]) {
		return PartyRef{}, fmt.Errorf("malformed chat channel %q", channel)
	}
	id, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return PartyRef{}, fmt.Errorf("malformed chat channel %q", channel)
	}
	return PartyRef{ID: uint(id), Kind: parts[2]}, nil
}

func marshalEvent(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(struct {
		Event string      `json:"event"`
		Data  interface{} `json:"data,omitempty"`
	}{Event: event, Data: payload})
}

// ChatSession is one live connection. It starts unauthenticated; the first
// frame must be an authenticate event, after which the session is bound to
// its party and stays active until the connection drops.
type ChatSession struct {
	hub  *ChatHub
	conn *websocket.Conn
	send chan []byte

	party *PartyRef

	mu     sync.Mutex
	closed bool
}

func (s *ChatSession) readPump() {
	defer s.close()

	s.conn.SetReadLimit(maxFrameSize)
	// Credentials must arrive within the auth window or the connection is
	// dropped.
	s.conn.SetReadDeadline(time.Now().Add(s.hub.authWindow))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var event ChatEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			if s.party == nil {
				s.emit(EventAuthError, errorPayload{Reason: "malformed frame"})
				return
			}
			s.emit(EventMessageError, errorPayload{Reason: "malformed frame"})
			continue
		}

		if s.party == nil {
			if event.Event != EventAuthenticate {
				s.emit(EventAuthError, errorPayload{Reason: "authenticate first"})
				return
			}
			if !s.handleAuthenticate(event.Data) {
				return
			}
			s.conn.SetReadDeadline(time.Now().Add(pongWait))
			continue
		}

		switch event.Event {
		case EventSendMessage:
			s.handleSendMessage(event.Data)
		case EventFetchChatHistory:
			s.handleFetchHistory(event.Data)
		default:
			s.emit(EventMessageError, errorPayload{Reason: "unknown event " + event.Event})
		}
	}
}

func (s *ChatSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleAuthenticate verifies the presented token and binds the session.
// Returns false when the session must be rejected.
func (s *ChatSession) handleAuthenticate(data json.RawMessage) bool {
	var input struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &input); err != nil || input.Token == "" {
		s.emit(EventAuthError, errorPayload{Reason: "token is required"})
		return false
	}

	party, err := s.hub.verify(input.Token)
	if err != nil {
		s.emit(EventAuthError, errorPayload{Reason: "invalid or expired token"})
		return false
	}

	s.party = &party
	s.hub.bind(s, party)
	s.emit(EventAuthenticated, party)
	return true
}

// handleSendMessage appends and fans out one message. Errors go to this
// connection only; the receiver never sees a failed send.
func (s *ChatSession) handleSendMessage(data json.RawMessage) {
	var input struct {
		ReceiverID   uint   `json:"receiverID"`
		ReceiverKind string `json:"receiverKind"`
		Content      string `json:"content"`
	}
	if err := json.Unmarshal(data, &input); err != nil {
		s.emit(EventMessageError, errorPayload{Reason: "malformed sendMessage payload"})
		return
	}
	if input.ReceiverID == 0 || input.ReceiverKind == "" || input.Content == "" {
		s.emit(EventMessageError, errorPayload{Reason: "receiverID, receiverKind and content are required"})
		return
	}

	// Sender identity always comes from the bound session, never the client.
	sender := *s.party
	receiver := PartyRef{ID: input.ReceiverID, Kind: input.ReceiverKind}

	message, err := s.hub.store.Append(sender, receiver, input.Content)
	if err != nil {
		if IsValidationError(err) {
			s.emit(EventMessageError, errorPayload{Reason: err.Error()})
			return
		}
		log.Printf("❌ chat: append from %s failed: %v", sender, err)
		s.emit(EventMessageError, errorPayload{Reason: "message could not be delivered"})
		return
	}

	s.hub.DeliverMessage(message)
}

// handleFetchHistory replays the thread with another party to this
// connection only.
func (s *ChatSession) handleFetchHistory(data json.RawMessage) {
	var input struct {
		OtherPartyID   uint   `json:"otherPartyID"`
		OtherPartyKind string `json:"otherPartyKind"`
	}
	if err := json.Unmarshal(data, &input); err != nil || input.OtherPartyID == 0 {
		s.emit(EventChatHistoryError, errorPayload{Reason: "otherPartyID and otherPartyKind are required"})
		return
	}
	if !models.KnownPartyKind(input.OtherPartyKind) {
		s.emit(EventChatHistoryError, errorPayload{Reason: "unknown party kind " + input.OtherPartyKind})
		return
	}

	other := PartyRef{ID: input.OtherPartyID, Kind: input.OtherPartyKind}
	messages, err := s.hub.store.FindBetween(*s.party, other)
	if err != nil {
		log.Printf("❌ chat: history for %s failed: %v", s.party, err)
		s.emit(EventChatHistoryError, errorPayload{Reason: "history unavailable"})
		return
	}

	entries := AnnotateHistory(s.hub.resolver, messages)
	s.emit(EventChatHistory, struct {
		Messages []HistoryEntry `json:"messages"`
	}{Messages: entries})
}

// emit queues one event for this connection only.
func (s *ChatSession) emit(event string, payload interface{}) {
	frame, err := marshalEvent(event, payload)
	if err != nil {
		return
	}
	s.enqueue(frame)
}

// enqueue never blocks the hub: a session that cannot keep up has its queue
// closed, which tears the connection down, consistent with at-most-once
// delivery. Must not touch hub state — it runs under the hub's read lock.
func (s *ChatSession) enqueue(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- frame:
	default:
		s.closed = true
		close(s.send)
	}
}

// close runs once, from readPump's defer, after the connection is gone. An
// in-flight append simply finds no channel to deliver to; the stored message
// is unaffected.
func (s *ChatSession) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	s.mu.Unlock()

	if s.party != nil {
		s.hub.unbind(s, *s.party)
	}
}
