package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"atelier-chat/auth"
	"atelier-chat/identity"
	"atelier-chat/membership"
	"atelier-chat/moderation"
	"atelier-chat/observability"
	"atelier-chat/repositories"
	"atelier-chat/runtime"
	"atelier-chat/runtime/workers"
)

type serverFixture struct {
	url    string
	tokens map[string]string
}

// newServerFixture stands up the full runtime behind an httptest
// endpoint: alice is proj-1's client, bob its designer, carol a
// stranger.
func newServerFixture(t *testing.T) serverFixture {
	t.Helper()
	options := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromString("DEBUG")
	users := repositories.NewUserRepository(db)
	projects := repositories.NewProjectRepository(db)
	messages := repositories.NewMessageRepository(db, log, nil)

	now := time.Now().UTC()
	require.NoError(t, users.UpsertUser(repositories.UserRecord{
		ID: "u-alice", Subject: "alice@example.com", Name: "Alice", CreatedAt: now,
	}))
	require.NoError(t, users.UpsertUser(repositories.UserRecord{
		ID: "u-bob", Subject: "bob@example.com", Name: "Bob", CreatedAt: now,
	}))
	require.NoError(t, users.UpsertUser(repositories.UserRecord{
		ID: "u-carol", Subject: "carol@example.com", Name: "Carol", CreatedAt: now,
	}))
	require.NoError(t, projects.UpsertProject(repositories.ProjectRecord{
		ID: "proj-1", ClientID: "u-alice", DesignerID: "u-bob", CreatedAt: now,
	}))

	codec := auth.NewTokenCodec("server-test-key")
	tokens := make(map[string]string)
	for _, subject := range []string{"alice@example.com", "bob@example.com", "carol@example.com"} {
		token, err := codec.Generate(subject, time.Hour)
		require.NoError(t, err)
		tokens[strings.Split(subject, "@")[0]] = token
	}

	moderator, err := moderation.NewModerator([]string{"swearword"}, '*')
	require.NoError(t, err)

	orchestrator := runtime.NewOrchestrator(
		log,
		workers.NewSupervisor(log),
		runtime.NewRegistry(),
		messages,
		&moderator,
		nil,
		observability.NewManager(),
		16,
		time.Second,
		0,
	)
	require.NoError(t, orchestrator.Start(context.Background()))
	t.Cleanup(orchestrator.Stop)

	server := NewServer(
		log,
		identity.NewDirectoryResolver(codec, users, log),
		membership.NewProjectPolicy(projects),
		orchestrator,
		observability.NewManager(),
		16,
	)
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)

	return serverFixture{
		url:    "ws" + strings.TrimPrefix(ts.URL, "http"),
		tokens: tokens,
	}
}

type testClient struct {
	t      *testing.T
	socket *websocket.Conn
}

func dialFixture(t *testing.T, f serverFixture) *testClient {
	t.Helper()
	socket, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = socket.Close() })
	return &testClient{t: t, socket: socket}
}

func (c *testClient) sendEvent(eventType string, payload any) {
	c.t.Helper()
	envelope, err := NewEnvelope(eventType, payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.socket.WriteJSON(envelope))
}

// expect reads frames until one of the wanted type arrives, failing on
// timeout or an unexpected error frame.
func (c *testClient) expect(eventType string) Envelope {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(c.t, c.socket.SetReadDeadline(deadline))
		var envelope Envelope
		require.NoError(c.t, c.socket.ReadJSON(&envelope))
		if envelope.Type == eventType {
			return envelope
		}
		require.NotEqual(c.t, EventError, envelope.Type,
			"got error frame while waiting for %s: %s", eventType, string(envelope.Payload))
	}
}

func (c *testClient) expectError(code string) {
	c.t.Helper()
	envelope := c.expect(EventError)
	var payload ErrorPayload
	require.NoError(c.t, json.Unmarshal(envelope.Payload, &payload))
	require.Equal(c.t, code, payload.Code)
}

func (c *testClient) identify(token string) {
	c.t.Helper()
	c.sendEvent(EventIdentify, IdentifyPayload{Token: token})
	c.expect(EventIdentified)
}

func (c *testClient) join(projectID string) MessagesLoadedPayload {
	c.t.Helper()
	c.sendEvent(EventJoinProject, JoinProjectPayload{ProjectID: projectID})
	envelope := c.expect(EventMessagesLoaded)
	var payload MessagesLoadedPayload
	require.NoError(c.t, json.Unmarshal(envelope.Payload, &payload))
	return payload
}

func (c *testClient) nextMessage() NewMessagePayload {
	c.t.Helper()
	envelope := c.expect(EventNewMessage)
	var payload NewMessagePayload
	require.NoError(c.t, json.Unmarshal(envelope.Payload, &payload))
	return payload
}

func TestServer_Identify_With_Bad_Token_Is_An_Auth_Error(t *testing.T) {
	fixture := newServerFixture(t)
	client := dialFixture(t, fixture)

	client.sendEvent(EventIdentify, IdentifyPayload{Token: "not-a-jwt"})
	client.expectError(CodeAuthError)
}

func TestServer_Join_Requires_Identification(t *testing.T) {
	fixture := newServerFixture(t)
	client := dialFixture(t, fixture)

	client.sendEvent(EventJoinProject, JoinProjectPayload{ProjectID: "proj-1"})
	client.expectError(CodeAuthError)
}

func TestServer_Stranger_Cannot_Join_Project(t *testing.T) {
	fixture := newServerFixture(t)
	client := dialFixture(t, fixture)
	client.identify(fixture.tokens["carol"])

	client.sendEvent(EventJoinProject, JoinProjectPayload{ProjectID: "proj-1"})
	client.expectError(CodeNotAMember)
}

func TestServer_Message_Fans_Out_To_Both_Sides(t *testing.T) {
	req := require.New(t)
	fixture := newServerFixture(t)

	alice := dialFixture(t, fixture)
	alice.identify(fixture.tokens["alice"])
	history := alice.join("proj-1")
	req.Empty(history.Messages)

	bob := dialFixture(t, fixture)
	bob.identify(fixture.tokens["bob"])
	bob.join("proj-1")

	alice.sendEvent(EventSendMessage, SendMessagePayload{ProjectID: "proj-1", Message: "Hello"})

	// Then both sides, the sender included, get exactly one frame with
	// the sender's profile attached
	forAlice := alice.nextMessage()
	forBob := bob.nextMessage()
	req.Equal("Hello", forAlice.Message.Message)
	req.Equal("u-alice", forAlice.Message.Sender.ID)
	req.Equal("Alice", forAlice.Message.Sender.Name)
	req.Equal(forAlice.Message.ID, forBob.Message.ID)

	createdAt, err := time.Parse(time.RFC3339, forBob.Message.CreatedAt)
	req.NoError(err)
	req.WithinDuration(time.Now().UTC(), createdAt, time.Minute)
}

func TestServer_Send_Without_Join_Is_Not_A_Member(t *testing.T) {
	fixture := newServerFixture(t)
	client := dialFixture(t, fixture)
	client.identify(fixture.tokens["alice"])

	client.sendEvent(EventSendMessage, SendMessagePayload{ProjectID: "proj-1", Message: "sneaky"})
	client.expectError(CodeNotAMember)
}

func TestServer_Blank_Message_Is_A_Validation_Error(t *testing.T) {
	fixture := newServerFixture(t)
	client := dialFixture(t, fixture)
	client.identify(fixture.tokens["alice"])
	client.join("proj-1")

	client.sendEvent(EventSendMessage, SendMessagePayload{ProjectID: "proj-1", Message: "   "})
	client.expectError(CodeValidationError)
}

func TestServer_History_Replays_On_Rejoin_In_Order(t *testing.T) {
	req := require.New(t)
	fixture := newServerFixture(t)

	alice := dialFixture(t, fixture)
	alice.identify(fixture.tokens["alice"])
	alice.join("proj-1")

	for _, body := range []string{"one", "two", "three"} {
		alice.sendEvent(EventSendMessage, SendMessagePayload{ProjectID: "proj-1", Message: body})
		alice.nextMessage()
	}
	req.NoError(alice.socket.Close())

	// When the designer connects later
	bob := dialFixture(t, fixture)
	bob.identify(fixture.tokens["bob"])
	history := bob.join("proj-1")

	// Then the full history arrives oldest first
	req.Len(history.Messages, 3)
	req.Equal("one", history.Messages[0].Message)
	req.Equal("two", history.Messages[1].Message)
	req.Equal("three", history.Messages[2].Message)
}

func TestServer_Message_Survives_Sender_Disconnect(t *testing.T) {
	req := require.New(t)
	fixture := newServerFixture(t)

	bob := dialFixture(t, fixture)
	bob.identify(fixture.tokens["bob"])
	bob.join("proj-1")

	alice := dialFixture(t, fixture)
	alice.identify(fixture.tokens["alice"])
	alice.join("proj-1")
	alice.sendEvent(EventSendMessage, SendMessagePayload{ProjectID: "proj-1", Message: "gone already"})
	req.NoError(alice.socket.Close())

	// Then the remaining member still receives the accepted message
	delivered := bob.nextMessage()
	req.Equal("gone already", delivered.Message.Message)
	req.Equal("u-alice", delivered.Message.Sender.ID)
}

func TestServer_Moderation_Masks_Before_Fanout(t *testing.T) {
	req := require.New(t)
	fixture := newServerFixture(t)

	alice := dialFixture(t, fixture)
	alice.identify(fixture.tokens["alice"])
	alice.join("proj-1")

	alice.sendEvent(EventSendMessage, SendMessagePayload{
		ProjectID: "proj-1",
		Message:   "reach me at alice@example.com or this swearword couch",
	})
	delivered := alice.nextMessage()
	req.NotContains(delivered.Message.Message, "alice@example.com")
	req.NotContains(delivered.Message.Message, "swearword")
}

func TestServer_Reidentify_Is_Rejected_And_Keeps_The_Original_Identity(t *testing.T) {
	req := require.New(t)
	fixture := newServerFixture(t)

	alice := dialFixture(t, fixture)
	alice.identify(fixture.tokens["alice"])
	alice.join("proj-1")

	// When the joined socket presents a stranger's token
	alice.sendEvent(EventIdentify, IdentifyPayload{Token: fixture.tokens["carol"]})
	alice.expectError(CodeValidationError)

	// Then the connection still speaks as the original member
	alice.sendEvent(EventSendMessage, SendMessagePayload{ProjectID: "proj-1", Message: "still me"})
	delivered := alice.nextMessage()
	req.Equal("u-alice", delivered.Message.Sender.ID)
	req.Equal("still me", delivered.Message.Message)
}

func TestServer_Reidentify_Before_Join_Is_Also_Rejected(t *testing.T) {
	fixture := newServerFixture(t)
	client := dialFixture(t, fixture)
	client.identify(fixture.tokens["alice"])

	client.sendEvent(EventIdentify, IdentifyPayload{Token: fixture.tokens["bob"]})
	client.expectError(CodeValidationError)
}

func TestServer_Project_Id_With_Key_Separator_Is_Rejected(t *testing.T) {
	fixture := newServerFixture(t)
	client := dialFixture(t, fixture)
	client.identify(fixture.tokens["alice"])

	client.sendEvent(EventJoinProject, JoinProjectPayload{ProjectID: "proj-1:extra"})
	client.expectError(CodeValidationError)
}
