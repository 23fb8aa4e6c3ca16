package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/internal/chat/repository"
	"marketplace_chat_service/pkg/logger"
	"marketplace_chat_service/pkg/token"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeConn in: client -> server, out: server -> client (text frames only)
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
	// gate 不為 nil 時每次寫入要等 gate
	gate chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case d := <-f.in:
		return websocket.TextMessage, d, nil
	case <-f.closed:
		return 0, nil, net.ErrClosed
	}
}

func (f *fakeConn) WriteMessage(mt int, data []byte) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-f.closed:
			return net.ErrClosed
		}
	}
	if mt != websocket.TextMessage {
		return nil
	}
	select {
	case f.out <- data:
		return nil
	case <-f.closed:
		return net.ErrClosed
	}
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) send(t *testing.T, v string) {
	t.Helper()
	select {
	case f.in <- []byte(v):
	case <-time.After(time.Second):
		t.Fatal("inbound queue full")
	}
}

type wireEvent struct {
	Type     domain.EventType     `json:"type"`
	Messages []domain.MessageView `json:"messages"`
	domain.MessageView
}

func readEvent(t *testing.T, out <-chan []byte) wireEvent {
	t.Helper()
	select {
	case data := <-out:
		var ev wireEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return wireEvent{}
	}
}

func assertNoEvent(t *testing.T, out <-chan []byte) {
	t.Helper()
	select {
	case data := <-out:
		t.Fatalf("unexpected event %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

type testEnv struct {
	svc    *ChatService
	hub    *RoomHub
	repo   repository.MessageRepository
	tokens *token.Manager
}

func newSQLiteMessageRepo(t *testing.T) repository.MessageRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, repository.AutoMigrate(db))

	return repository.NewGormMessageRepository(db)
}

func testUsers() *MockUserRepository {
	users := new(MockUserRepository)
	for _, u := range []domain.Identity{customer, provider, stranger} {
		users.On("FindByID", mock.Anything, u.ID).Return(u, nil)
	}
	users.On("FindByID", mock.Anything, mock.Anything).Return(domain.Identity{}, domain.ErrUserNotFound)
	users.On("FindUsernames", mock.Anything, mock.Anything).
		Return(map[int64]string{1: customer.Username, 2: provider.Username, 3: stranger.Username}, nil)
	return users
}

func newTestEnv(t *testing.T, repo repository.MessageRepository, cfg SessionConfig) *testEnv {
	t.Helper()
	logger.SetNewNop()

	if repo == nil {
		repo = newSQLiteMessageRepo(t)
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = time.Hour
	}

	tokens := token.NewManager(testSecret, "", 0)
	users := testUsers()
	bookings := bookingRepoWith42()
	hub := NewRoomHub()

	svc := NewChatService(
		NewTokenAuthenticator(tokens, users),
		NewAuthorizer(bookings),
		NewMessageUseCase(repo, bookings, users, nil),
		hub,
		cfg,
	)
	return &testEnv{svc: svc, hub: hub, repo: repo, tokens: tokens}
}

func (e *testEnv) token(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := e.tokens.Generate(userID, time.Minute)
	require.NoError(t, err)
	return tok
}

// join 連線並讀掉 message_history
func (e *testEnv) join(t *testing.T, userID int64, room string) (*Session, *fakeConn, wireEvent) {
	t.Helper()

	s, err := e.svc.Connect(context.Background(), e.token(t, userID), room)
	require.NoError(t, err)

	fc := newFakeConn()
	go s.Serve(fc)
	t.Cleanup(func() { fc.Close() })

	history := readEvent(t, fc.out)
	require.Equal(t, domain.EventMessageHistory, history.Type)
	require.Equal(t, StateJoined, s.State())
	return s, fc, history
}

func seed(t *testing.T, repo repository.MessageRepository, room string, senders ...int64) []domain.ChatMessage {
	t.Helper()
	var out []domain.ChatMessage
	for _, sender := range senders {
		m := &domain.ChatMessage{SenderID: sender, RoomIdentifier: room, MessageContent: "seed"}
		require.NoError(t, repo.Create(context.Background(), m))
		out = append(out, *m)
	}
	return out
}

func TestSessionSendBroadcastsToRoom(t *testing.T) {
	env := newTestEnv(t, nil, SessionConfig{HistoryLimit: 50})

	_, customerConn, _ := env.join(t, customer.ID, "booking_42")
	_, providerConn, _ := env.join(t, provider.ID, "booking_42")
	assert.Equal(t, 2, env.hub.Members("booking_42"))

	customerConn.send(t, `{"message": "hello", "extra": true}`)

	mine := readEvent(t, customerConn.out)
	theirs := readEvent(t, providerConn.out)

	assert.Equal(t, domain.EventChatMessage, mine.Type)
	assert.Equal(t, domain.EventChatMessage, theirs.Type)
	assert.Equal(t, mine.ID, theirs.ID)
	assert.True(t, mine.IsSelf)
	assert.False(t, theirs.IsSelf)
	assert.Equal(t, "hello", theirs.Message)
	assert.Equal(t, customer.ID, theirs.SenderID)
	assert.Equal(t, customer.Username, theirs.SenderUsername)
	assert.Equal(t, "booking_42", theirs.RoomName)
	_, err := time.Parse(time.RFC3339Nano, theirs.Timestamp)
	assert.NoError(t, err)

	assertNoEvent(t, customerConn.out)
	assertNoEvent(t, providerConn.out)

	stored, err := env.repo.FindRecent(context.Background(), "booking_42", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, mine.ID, stored[0].ID)
	require.NotNil(t, stored[0].BookingID)
	assert.Equal(t, int64(42), *stored[0].BookingID)
}

func TestSessionHistoryOnJoin(t *testing.T) {
	env := newTestEnv(t, nil, SessionConfig{HistoryLimit: 2})
	seeded := seed(t, env.repo, "booking_42", provider.ID, provider.ID, customer.ID)
	seed(t, env.repo, "booking_9", provider.ID)

	_, _, history := env.join(t, customer.ID, "booking_42")

	require.Len(t, history.Messages, 2)
	assert.Equal(t, seeded[1].ID, history.Messages[0].ID)
	assert.Equal(t, seeded[2].ID, history.Messages[1].ID)
	assert.False(t, history.Messages[0].IsSelf)
	assert.True(t, history.Messages[1].IsSelf)
	assert.Equal(t, provider.Username, history.Messages[0].SenderUsername)

	ctx := context.Background()
	unread, err := env.repo.CountUnread(ctx, "booking_42", customer.ID)
	require.NoError(t, err)
	assert.Zero(t, unread, "join marks others' messages read")

	unread, err = env.repo.CountUnread(ctx, "booking_42", provider.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread, "joining identity's own message stays unread")

	unread, err = env.repo.CountUnread(ctx, "booking_9", customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

func TestSessionEmptyHistory(t *testing.T) {
	env := newTestEnv(t, nil, SessionConfig{HistoryLimit: 50})
	_, _, history := env.join(t, 5, "chat_user_5_user_9")
	assert.NotNil(t, history.Messages)
	assert.Empty(t, history.Messages)
}

func TestSessionPendingBroadcastsFollowHistory(t *testing.T) {
	env := newTestEnv(t, nil, SessionConfig{HistoryLimit: 50})
	seeded := seed(t, env.repo, "booking_42", provider.ID)

	s, err := env.svc.Connect(context.Background(), env.token(t, customer.ID), "booking_42")
	require.NoError(t, err)

	// 還沒送 history 前收到的廣播先暫存, 已在 history 內的不重送
	s.Deliver(domain.Broadcast{ID: seeded[0].ID, SenderID: provider.ID, RoomName: "booking_42"})
	s.Deliver(domain.Broadcast{ID: seeded[0].ID + 100, SenderID: provider.ID, RoomName: "booking_42", Message: "late"})

	fc := newFakeConn()
	defer fc.Close()
	go s.Serve(fc)

	first := readEvent(t, fc.out)
	assert.Equal(t, domain.EventMessageHistory, first.Type)
	require.Len(t, first.Messages, 1)

	second := readEvent(t, fc.out)
	assert.Equal(t, domain.EventChatMessage, second.Type)
	assert.Equal(t, "late", second.Message)
	assertNoEvent(t, fc.out)
}

func TestSessionEmptyMessageIgnored(t *testing.T) {
	env := newTestEnv(t, nil, SessionConfig{HistoryLimit: 50})
	_, fc, _ := env.join(t, customer.ID, "booking_42")

	fc.send(t, `{"message": ""}`)
	fc.send(t, `{"message": "   \n\t"}`)
	fc.send(t, `{"message": "real"}`)

	ev := readEvent(t, fc.out)
	assert.Equal(t, domain.EventChatMessage, ev.Type)
	assert.Equal(t, "real", ev.Message)

	stored, err := env.repo.FindRecent(context.Background(), "booking_42", 10)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestSessionMalformedPayload(t *testing.T) {
	env := newTestEnv(t, nil, SessionConfig{HistoryLimit: 50})
	s, fc, _ := env.join(t, customer.ID, "booking_42")

	for _, payload := range []string{`not json`, `{"msg": "x"}`, `{"message": 5}`, `{"message": null}`, `[]`} {
		fc.send(t, payload)
		ev := readEvent(t, fc.out)
		assert.Equal(t, domain.EventError, ev.Type, payload)
		assert.Equal(t, domain.ErrTextInvalidFormat, ev.Message, payload)
	}
	assert.Equal(t, StateJoined, s.State())

	fc.send(t, `{"message": "still here"}`)
	assert.Equal(t, domain.EventChatMessage, readEvent(t, fc.out).Type)
}

func TestSessionPersistenceFailure(t *testing.T) {
	repo := new(MockMessageRepository)
	repo.On("MarkRead", mock.Anything, "booking_42", mock.Anything).Return(int64(0), nil)
	repo.On("FindRecent", mock.Anything, "booking_42", 50).Return([]domain.ChatMessage{}, nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("constraint violation"))

	env := newTestEnv(t, repo, SessionConfig{HistoryLimit: 50})
	s, senderConn, _ := env.join(t, customer.ID, "booking_42")
	_, otherConn, _ := env.join(t, provider.ID, "booking_42")

	senderConn.send(t, `{"message": "hello"}`)

	ev := readEvent(t, senderConn.out)
	assert.Equal(t, domain.EventError, ev.Type)
	assert.Equal(t, domain.ErrTextSaveFailed, ev.Message)
	assertNoEvent(t, otherConn.out)
	assert.Equal(t, StateJoined, s.State())
	repo.AssertNumberOfCalls(t, "Create", 1)
}

func TestSessionCloseLeavesRoom(t *testing.T) {
	env := newTestEnv(t, nil, SessionConfig{HistoryLimit: 50})
	s, fc, _ := env.join(t, customer.ID, "booking_42")
	_, otherConn, _ := env.join(t, provider.ID, "booking_42")
	require.Equal(t, 2, env.hub.Members("booking_42"))

	// client 斷線
	fc.Close()
	assert.Eventually(t, func() bool { return s.State() == StateClosed }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return env.hub.Members("booking_42") == 1 }, time.Second, 5*time.Millisecond)

	s.Close()
	s.Close()
	assert.Equal(t, 1, env.hub.Members("booking_42"))

	otherConn.send(t, `{"message": "anyone?"}`)
	assert.Equal(t, domain.EventChatMessage, readEvent(t, otherConn.out).Type)
	select {
	case <-s.Done():
	default:
		t.Fatal("closed session context not cancelled")
	}
}

func TestSessionRefused(t *testing.T) {
	env := newTestEnv(t, nil, SessionConfig{HistoryLimit: 50})
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
		room  string
		kind  error
	}{
		{"no token", "", "booking_42", domain.ErrAuthentication},
		{"bad token", "garbage", "booking_42", domain.ErrAuthentication},
		{"unknown user", env.token(t, 404), "booking_42", domain.ErrAuthentication},
		{"not a party", env.token(t, stranger.ID), "booking_42", domain.ErrAuthorization},
		{"missing booking", env.token(t, customer.ID), "booking_7", domain.ErrAuthorization},
		{"unrecognized room", env.token(t, customer.ID), "lobby", domain.ErrAuthorization},
		{"direct room outsider", env.token(t, stranger.ID), "chat_user_1_user_2", domain.ErrAuthorization},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := env.svc.Connect(ctx, tt.token, tt.room)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, StateClosed, s.State())

			fc := newFakeConn()
			assert.ErrorIs(t, s.Join(fc), ErrInvalidTransition)
			assert.Zero(t, env.hub.Members(tt.room))
		})
	}

	stored, err := env.repo.FindRecent(ctx, "booking_42", 10)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSessionStateOrder(t *testing.T) {
	env := newTestEnv(t, nil, SessionConfig{HistoryLimit: 50})
	s := env.svc.NewSession()
	assert.Equal(t, StateConnecting, s.State())

	assert.ErrorIs(t, s.Authorize(context.Background(), "booking_42"), ErrInvalidTransition)
	assert.ErrorIs(t, s.Join(newFakeConn()), ErrInvalidTransition)

	require.NoError(t, s.Authenticate(context.Background(), env.token(t, customer.ID)))
	assert.Equal(t, StateAuthorizing, s.State())
	assert.ErrorIs(t, s.Authenticate(context.Background(), env.token(t, customer.ID)), ErrInvalidTransition)

	require.NoError(t, s.Authorize(context.Background(), "booking_42"))
	s.Close()
	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.Join(newFakeConn()), ErrInvalidTransition)
}

func TestSessionSlowConsumerClosed(t *testing.T) {
	env := newTestEnv(t, nil, SessionConfig{HistoryLimit: 50, SendBuffer: 1})

	s, err := env.svc.Connect(context.Background(), env.token(t, customer.ID), "booking_42")
	require.NoError(t, err)

	fc := newFakeConn()
	fc.gate = make(chan struct{}) // 永遠寫不出去
	defer fc.Close()
	go s.Serve(fc)

	require.Eventually(t, func() bool { return env.hub.Members("booking_42") == 1 }, time.Second, 5*time.Millisecond)
	for i := 0; i < 10; i++ {
		env.hub.Deliver("booking_42", domain.Broadcast{ID: int64(1000 + i)})
	}

	assert.Eventually(t, func() bool { return s.State() == StateClosed }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return env.hub.Members("booking_42") == 0 }, time.Second, 5*time.Millisecond)
}

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		err     error
	}{
		{"valid", `{"message": "hi"}`, "hi", nil},
		{"keeps surrounding spaces", `{"message": " hi "}`, " hi ", nil},
		{"unknown fields ignored", `{"message": "hi", "type": "x"}`, "hi", nil},
		{"empty", `{"message": ""}`, "", domain.ErrEmptyMessage},
		{"whitespace", `{"message": "  "}`, "", domain.ErrEmptyMessage},
		{"missing field", `{}`, "", domain.ErrMalformedPayload},
		{"null", `{"message": null}`, "", domain.ErrMalformedPayload},
		{"wrong type", `{"message": 1}`, "", domain.ErrMalformedPayload},
		{"not json", `hello`, "", domain.ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInbound([]byte(tt.payload))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
