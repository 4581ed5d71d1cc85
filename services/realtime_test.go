package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Jahangir-Hossain99/Job-Site/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordingNotifier captures push calls so tests can assert on (or rule out)
// the notification path.
type recordingNotifier struct {
	calls chan string
}

func (r *recordingNotifier) SendMessageNotification(receiverID uint, senderName, content string) error {
	r.calls <- fmt.Sprintf("%d:%s", receiverID, senderName)
	return nil
}

// newTestHub builds a hub without redis; delivery stays local, which is what
// the session tests need. The verifier accepts tokens of the form "kind:id".
func newTestHub(t *testing.T, db *gorm.DB) *ChatHub {
	t.Helper()

	verify := func(token string) (PartyRef, error) {
		var ref PartyRef
		if _, err := fmt.Sscanf(token, "user:%d", &ref.ID); err == nil {
			ref.Kind = models.PartyKindUser
			return ref, nil
		}
		if _, err := fmt.Sscanf(token, "company:%d", &ref.ID); err == nil {
			ref.Kind = models.PartyKindCompany
			return ref, nil
		}
		return PartyRef{}, errors.New("bad token")
	}

	return NewChatHub(NewMessageStore(db), NewIdentityResolver(db), verify, nil)
}

// newTestSession builds a session the way ServeConn does, minus the
// connection. The handlers never touch the conn, so frames can be read
// straight off the send queue.
func newTestSession(hub *ChatHub) *ChatSession {
	return &ChatSession{hub: hub, send: make(chan []byte, sendQueueSize)}
}

func bindTestSession(t *testing.T, hub *ChatHub, party PartyRef) *ChatSession {
	t.Helper()

	session := newTestSession(hub)
	ok := session.handleAuthenticate(json.RawMessage(fmt.Sprintf(`{"token":%q}`, party.String())))
	require.True(t, ok)
	// Drain the authenticated frame so tests only see what they trigger.
	takeFrame(t, session)
	return session
}

func takeFrame(t *testing.T, session *ChatSession) ChatEvent {
	t.Helper()

	select {
	case raw := <-session.send:
		var event ChatEvent
		require.NoError(t, json.Unmarshal(raw, &event))
		return event
	default:
		t.Fatal("no frame queued")
		return ChatEvent{}
	}
}

func requireNoFrame(t *testing.T, session *ChatSession) {
	t.Helper()

	select {
	case raw := <-session.send:
		t.Fatalf("unexpected frame: %s", raw)
	default:
	}
}

func Test_Authenticate_Binds_Session(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t, newTestDB(t))
	session := newTestSession(hub)

	ok := session.handleAuthenticate(json.RawMessage(`{"token":"user:7"}`))
	req.True(ok)

	frame := takeFrame(t, session)
	req.Equal(EventAuthenticated, frame.Event)

	var party PartyRef
	req.NoError(json.Unmarshal(frame.Data, &party))
	req.Equal(userRef(7), party)

	hub.mu.RLock()
	_, bound := hub.sessions[userRef(7)][session]
	hub.mu.RUnlock()
	req.True(bound)
}

func Test_Authenticate_Rejects_Bad_Token(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t, newTestDB(t))
	session := newTestSession(hub)

	ok := session.handleAuthenticate(json.RawMessage(`{"token":"garbage"}`))
	req.False(ok)

	frame := takeFrame(t, session)
	req.Equal(EventAuthError, frame.Event)
	req.Nil(session.party)
}

func Test_Authenticate_Requires_Token(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t, newTestDB(t))
	session := newTestSession(hub)

	ok := session.handleAuthenticate(json.RawMessage(`{}`))
	req.False(ok)
	req.Equal(EventAuthError, takeFrame(t, session).Event)
}

func Test_SendMessage_Delivers_To_Both_Parties(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	hub := newTestHub(t, db)

	alice := seedUser(t, db, "Alice", "Smith", "alice@example.com")
	bob := seedUser(t, db, "Bob", "Jones", "bob@example.com")

	aliceSession := bindTestSession(t, hub, userRef(alice.ID))
	bobSession := bindTestSession(t, hub, userRef(bob.ID))

	aliceSession.handleSendMessage(json.RawMessage(fmt.Sprintf(
		`{"receiverID":%d,"receiverKind":"user","content":"hi bob"}`, bob.ID)))

	// Receiver gets the push.
	frame := takeFrame(t, bobSession)
	req.Equal(EventReceiveMessage, frame.Event)

	var delivery MessageDelivery
	req.NoError(json.Unmarshal(frame.Data, &delivery))
	req.Equal("hi bob", delivery.Content)
	req.Equal("Alice Smith", delivery.Sender.Name)
	req.Empty(delivery.Sender.Email)
	req.Equal(bob.ID, delivery.Receiver)

	// Sender's own channel gets the echo.
	echo := takeFrame(t, aliceSession)
	req.Equal(EventReceiveMessage, echo.Event)

	var count int64
	db.Model(&models.Message{}).Count(&count)
	req.EqualValues(1, count)
}

func Test_SendMessage_To_Self_Delivered_Once(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	hub := newTestHub(t, db)

	alice := seedUser(t, db, "Alice", "Smith", "alice@example.com")
	session := bindTestSession(t, hub, userRef(alice.ID))

	session.handleSendMessage(json.RawMessage(fmt.Sprintf(
		`{"receiverID":%d,"receiverKind":"user","content":"note to self"}`, alice.ID)))

	frame := takeFrame(t, session)
	req.Equal(EventReceiveMessage, frame.Event)
	requireNoFrame(t, session)
}

func Test_SendMessage_Validation_Error_Stays_With_Sender(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	hub := newTestHub(t, db)

	alice := seedUser(t, db, "Alice", "Smith", "alice@example.com")
	bob := seedUser(t, db, "Bob", "Jones", "bob@example.com")

	aliceSession := bindTestSession(t, hub, userRef(alice.ID))
	bobSession := bindTestSession(t, hub, userRef(bob.ID))

	aliceSession.handleSendMessage(json.RawMessage(fmt.Sprintf(
		`{"receiverID":%d,"receiverKind":"robot","content":"hi"}`, bob.ID)))

	frame := takeFrame(t, aliceSession)
	req.Equal(EventMessageError, frame.Event)
	requireNoFrame(t, bobSession)

	var count int64
	db.Model(&models.Message{}).Count(&count)
	req.Zero(count)
}

func Test_SendMessage_Requires_All_Fields(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	hub := newTestHub(t, db)

	alice := seedUser(t, db, "Alice", "Smith", "alice@example.com")
	session := bindTestSession(t, hub, userRef(alice.ID))

	session.handleSendMessage(json.RawMessage(`{"receiverKind":"user","content":"hi"}`))
	req.Equal(EventMessageError, takeFrame(t, session).Event)

	session.handleSendMessage(json.RawMessage(`{"receiverID":2,"receiverKind":"user"}`))
	req.Equal(EventMessageError, takeFrame(t, session).Event)
}

func Test_User_Receiver_Gets_Push(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	hub := newTestHub(t, db)
	notifier := &recordingNotifier{calls: make(chan string, 1)}
	hub.SetNotifier(notifier)

	alice := seedUser(t, db, "Alice", "Smith", "alice@example.com")
	bob := seedUser(t, db, "Bob", "Jones", "bob@example.com")

	session := bindTestSession(t, hub, userRef(alice.ID))
	session.handleSendMessage(json.RawMessage(fmt.Sprintf(
		`{"receiverID":%d,"receiverKind":"user","content":"hi"}`, bob.ID)))

	select {
	case call := <-notifier.calls:
		req.Equal(fmt.Sprintf("%d:Alice Smith", bob.ID), call)
	case <-time.After(2 * time.Second):
		t.Fatal("no push notification fired for user receiver")
	}
}

func Test_Company_Receiver_Gets_No_Push(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	hub := newTestHub(t, db)
	notifier := &recordingNotifier{calls: make(chan string, 1)}
	hub.SetNotifier(notifier)

	alice := seedUser(t, db, "Alice", "Smith", "alice@example.com")
	initech := seedCompany(t, db, "Initech", "hr@initech.example")

	aliceSession := bindTestSession(t, hub, userRef(alice.ID))
	companySession := bindTestSession(t, hub, companyRef(initech.ID))

	aliceSession.handleSendMessage(json.RawMessage(fmt.Sprintf(
		`{"receiverID":%d,"receiverKind":"company","content":"about the opening"}`, initech.ID)))

	// Channel delivery is unaffected by the missing push.
	frame := takeFrame(t, companySession)
	req.Equal(EventReceiveMessage, frame.Event)

	select {
	case call := <-notifier.calls:
		t.Fatalf("unexpected push for company receiver: %s", call)
	default:
	}
}

func Test_Closed_Session_Does_Not_Unwind_Append(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	hub := newTestHub(t, db)

	alice := seedUser(t, db, "Alice", "Smith", "alice@example.com")
	bob := seedUser(t, db, "Bob", "Jones", "bob@example.com")

	aliceSession := bindTestSession(t, hub, userRef(alice.ID))
	bobSession := bindTestSession(t, hub, userRef(bob.ID))

	message, err := hub.store.Append(userRef(alice.ID), userRef(bob.ID), "still stored")
	req.NoError(err)

	// Sender's connection drops between the append and the fan-out.
	aliceSession.close()
	hub.DeliverMessage(message)

	frame := takeFrame(t, bobSession)
	req.Equal(EventReceiveMessage, frame.Event)

	var count int64
	db.Model(&models.Message{}).Count(&count)
	req.EqualValues(1, count)
}

func Test_FetchHistory_Replays_Thread(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	hub := newTestHub(t, db)

	alice := seedUser(t, db, "Alice", "Smith", "alice@example.com")
	bob := seedUser(t, db, "Bob", "Jones", "bob@example.com")

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedMessage(t, db, 1, userRef(alice.ID), userRef(bob.ID), "hello", at)
	seedMessage(t, db, 2, userRef(bob.ID), userRef(alice.ID), "hi back", at.Add(time.Minute))

	session := bindTestSession(t, hub, userRef(alice.ID))
	session.handleFetchHistory(json.RawMessage(fmt.Sprintf(
		`{"otherPartyID":%d,"otherPartyKind":"user"}`, bob.ID)))

	frame := takeFrame(t, session)
	req.Equal(EventChatHistory, frame.Event)

	var payload struct {
		Messages []HistoryEntry `json:"messages"`
	}
	req.NoError(json.Unmarshal(frame.Data, &payload))
	req.Len(payload.Messages, 2)
	req.Equal("hello", payload.Messages[0].Content)
	req.Equal("Alice Smith", payload.Messages[0].Sender.Name)
	req.Equal("Bob Jones", payload.Messages[1].Sender.Name)
}

func Test_FetchHistory_Rejects_Unknown_Kind(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	hub := newTestHub(t, db)

	alice := seedUser(t, db, "Alice", "Smith", "alice@example.com")
	session := bindTestSession(t, hub, userRef(alice.ID))

	session.handleFetchHistory(json.RawMessage(`{"otherPartyID":2,"otherPartyKind":"robot"}`))
	req.Equal(EventChatHistoryError, takeFrame(t, session).Event)
}

func Test_Slow_Consumer_Queue_Closes(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t, newTestDB(t))

	session := &ChatSession{hub: hub, send: make(chan []byte, 1)}
	session.enqueue([]byte("one"))
	session.enqueue([]byte("two"))

	req.True(session.closed)
	// Queued frame is still readable, then the channel reports closed.
	_, ok := <-session.send
	req.True(ok)
	_, ok = <-session.send
	req.False(ok)
}

func Test_Unbind_Removes_Empty_Party_Entry(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t, newTestDB(t))

	session := bindTestSession(t, hub, userRef(7))
	session.close()

	hub.mu.RLock()
	_, present := hub.sessions[userRef(7)]
	hub.mu.RUnlock()
	req.False(present)
}

func Test_Hub_Subscribes_Before_Run(t *testing.T) {
	req := require.New(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	db := newTestDB(t)
	verify := func(string) (PartyRef, error) { return userRef(7), nil }
	hub := NewChatHub(NewMessageStore(db), NewIdentityResolver(db), verify, client)

	// The pubsub connection exists as soon as the hub does, so a session
	// binding before Run starts still registers its channel.
	req.NotNil(hub.pubsub)
	session := bindTestSession(t, hub, userRef(7))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// Publish until the frame comes back through redis; registration of the
	// subscription is asynchronous.
	deadline := time.After(5 * time.Second)
	for {
		hub.Publish(userRef(7), EventReceiveMessage, nil)
		select {
		case raw := <-session.send:
			var event ChatEvent
			req.NoError(json.Unmarshal(raw, &event))
			req.Equal(EventReceiveMessage, event.Event)
			return
		case <-deadline:
			t.Fatal("no frame delivered through redis pub/sub")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func Test_PartyChannel_Round_Trips(t *testing.T) {
	req := require.New(t)

	for _, ref := range []PartyRef{userRef(12), companyRef(3)} {
		parsed, err := partyFromChannel(partyChannel(ref))
		req.NoError(err)
		req.Equal(ref, parsed)
	}

	_, err := partyFromChannel("chat:party:robot:5")
	req.Error(err)
	_, err = partyFromChannel("jobs:queue:1")
	req.Error(err)
}
