package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionState connection lifecycle, 不會回到之前的狀態
type SessionState int32

const (
	// StateConnecting 剛建立
	StateConnecting SessionState = iota
	// StateAuthenticating 解析 token 中
	StateAuthenticating
	// StateAuthorizing 檢查 room 權限
	StateAuthorizing
	// StateJoined 已加入 room
	StateJoined
	// StateClosed terminal
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthorizing:
		return "authorizing"
	case StateJoined:
		return "joined"
	default:
		return "closed"
	}
}

// ErrInvalidTransition 狀態不允許這個操作
var ErrInvalidTransition = errors.New("invalid session state transition")

// Conn *websocket.Conn 需要的部分
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// SessionConfig per connection setting
type SessionConfig struct {
	HistoryLimit int
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
}

var payloadValidator = validator.New()

// Session 一條 websocket 連線; socket 只由 writeLoop 寫入
type Session struct {
	id    string
	svc   *ChatService
	state atomic.Int32

	principal domain.Principal
	identity  domain.Identity
	room      domain.RoomDescriptor
	// authorized Authorize 成功後才能 Join
	authorized bool

	conn       Conn
	out        chan []byte
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
	joined     atomic.Bool
	writerDone chan struct{}

	// history 送出前收到的廣播先暫存
	mu          sync.Mutex
	historySent bool
	pending     []domain.Broadcast
}

func newSession(svc *ChatService) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:         uuid.NewString(),
		svc:        svc,
		out:        make(chan []byte, svc.cfg.SendBuffer),
		ctx:        ctx,
		cancel:     cancel,
		writerDone: make(chan struct{}),
	}
}

// ID session id (uuid)
func (s *Session) ID() string { return s.id }

// State current state
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Identity 只有 authenticated 後有值
func (s *Session) Identity() (domain.Identity, bool) { return s.principal.Identity() }

// Room parsed room
func (s *Session) Room() domain.RoomDescriptor { return s.room }

// Done closed after Close
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) transition(from, to SessionState) error {
	if !s.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%w: %s -> %s (current %s)", ErrInvalidTransition, from, to, s.State())
	}
	return nil
}

func (s *Session) fields() []zap.Field {
	return []zap.Field{
		zap.String("session_id", s.id),
		zap.String("room", s.room.Name),
		zap.Int64("user_id", s.identity.ID),
	}
}

// Authenticate Connecting -> Authenticating -> Authorizing; 失敗直接 Closed
func (s *Session) Authenticate(ctx context.Context, token string) error {
	if err := s.transition(StateConnecting, StateAuthenticating); err != nil {
		return err
	}

	p, err := s.svc.authn.Resolve(ctx, token)
	s.principal = p
	id, ok := p.Identity()
	if err != nil || !ok {
		s.Close()
		if err == nil {
			err = domain.ErrAuthentication
		}
		return err
	}
	s.identity = id

	return s.transition(StateAuthenticating, StateAuthorizing)
}

// Authorize 解析 room 並檢查權限; 失敗 Closed
func (s *Session) Authorize(ctx context.Context, roomName string) error {
	if s.State() != StateAuthorizing {
		return fmt.Errorf("%w: authorize in %s", ErrInvalidTransition, s.State())
	}

	s.room = domain.ParseRoom(roomName)
	if err := s.svc.authz.Check(ctx, s.principal, s.room); err != nil {
		s.Close()
		return err
	}
	s.authorized = true
	return nil
}

// Join Authorizing -> Joined: 登記到 broadcaster, 標記已讀, 送出 history
func (s *Session) Join(conn Conn) error {
	if !s.authorized {
		return fmt.Errorf("%w: join before authorize", ErrInvalidTransition)
	}
	if err := s.transition(StateAuthorizing, StateJoined); err != nil {
		return err
	}

	s.conn = conn
	go s.writeLoop()

	s.joined.Store(true)
	s.svc.hub.Join(s.room.GroupName(), s)
	logger.Log.Info("session joined", s.fields()...)

	if err := s.svc.messages.MarkRead(s.ctx, s.room.Name, s.identity); err != nil {
		logger.Log.Warn("mark read on join failed", append(s.fields(), zap.Error(err))...)
	}

	views, err := s.svc.messages.HistoryViews(s.ctx, s.room.Name, s.svc.cfg.HistoryLimit, s.identity.ID)
	if err != nil {
		logger.Log.Error("load history failed", append(s.fields(), zap.Error(err))...)
		s.Close()
		return err
	}
	s.flushHistory(views)
	return nil
}

// Serve Join 後讀取直到斷線, 回傳前 writer 已結束
func (s *Session) Serve(conn Conn) {
	if err := s.Join(conn); err != nil {
		if s.conn == nil {
			_ = conn.Close()
			return
		}
	} else {
		s.readLoop()
	}
	s.Close()
	<-s.writerDone
}

func (s *Session) readLoop() {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) || s.State() == StateClosed {
				logger.Log.Info("connection closed", s.fields()...)
			} else {
				//直接斷線 1006
				logger.Log.Warn("websocket read error", append(s.fields(), zap.Error(err))...)
			}
			return
		}

		if mt != websocket.TextMessage {
			s.sendError(domain.ErrTextInvalidFormat)
			continue
		}
		s.handleInbound(data)
	}
}

// ParseInbound {"message": "..."}; 空白訊息回傳 domain.ErrEmptyMessage
func ParseInbound(data []byte) (string, error) {
	var req domain.WSRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrMalformedPayload, err)
	}
	if err := payloadValidator.Struct(req); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrMalformedPayload, err)
	}
	if strings.TrimSpace(*req.Message) == "" {
		return "", domain.ErrEmptyMessage
	}
	return *req.Message, nil
}

func (s *Session) handleInbound(data []byte) {
	body, err := ParseInbound(data)
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		return
	case err != nil:
		logger.Log.Debug("malformed payload", append(s.fields(), zap.Error(err))...)
		s.sendError(domain.ErrTextInvalidFormat)
		return
	}

	msg, err := s.svc.messages.Save(s.ctx, s.identity, s.room.Name, body)
	if err != nil {
		s.sendError(domain.ErrTextSaveFailed)
		return
	}

	b := domain.NewBroadcast(msg, s.identity.Username)
	if err := s.svc.hub.Publish(s.ctx, s.room.GroupName(), b); err != nil {
		logger.Log.Error("broadcast failed", append(s.fields(), zap.Int64("message_id", msg.ID), zap.Error(err))...)
	}
}

// Deliver Subscriber, 由 broadcaster 呼叫
func (s *Session) Deliver(b domain.Broadcast) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.historySent {
		s.pending = append(s.pending, b)
		return
	}
	s.enqueueLocked(domain.NewChatMessageEvent(b, s.identity.ID))
}

func (s *Session) flushHistory(views []domain.MessageView) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastID int64
	if len(views) > 0 {
		lastID = views[len(views)-1].ID
	}
	if views == nil {
		views = []domain.MessageView{}
	}

	s.enqueueLocked(domain.HistoryEvent{Type: domain.EventMessageHistory, Messages: views})
	s.historySent = true

	// history 已包含的訊息不重送
	for _, b := range s.pending {
		if b.ID > lastID {
			s.enqueueLocked(domain.NewChatMessageEvent(b, s.identity.ID))
		}
	}
	s.pending = nil
}

func (s *Session) sendError(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked(domain.NewErrorEvent(text))
}

// enqueueLocked 不阻塞; buffer 滿代表 client 太慢, 直接關閉
func (s *Session) enqueueLocked(v interface{}) {
	if s.State() == StateClosed {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		logger.Log.Error("marshal outbound event failed", append(s.fields(), zap.Error(err))...)
		return
	}

	select {
	case s.out <- data:
	default:
		logger.Log.Warn("send buffer full, closing slow consumer", s.fields()...)
		s.Close()
	}
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)

	ticker := time.NewTicker(s.svc.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-s.out:
			if err := s.write(websocket.TextMessage, data); err != nil {
				logger.Log.Warn("websocket write error", append(s.fields(), zap.Error(err))...)
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, []byte("ping")); err != nil {
				logger.Log.Warn("ping error", append(s.fields(), zap.Error(err))...)
				s.Close()
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) write(mt int, data []byte) error {
	if s.svc.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.svc.cfg.WriteTimeout))
	}
	return s.conn.WriteMessage(mt, data)
}

// Close 可重複呼叫, 只會執行一次: 取消進行中的操作, 離開 room, 關閉 socket
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		prev := SessionState(s.state.Swap(int32(StateClosed)))
		s.cancel()

		if s.joined.Load() {
			s.svc.hub.Leave(s.room.GroupName(), s)
		}
		if s.conn != nil {
			_ = s.conn.Close()
		}
		logger.Log.Info("session closed", append(s.fields(), zap.Stringer("from", prev))...)
	})
}
