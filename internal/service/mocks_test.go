package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/botdesk/bridge-server-go/internal/gateway"
	"github.com/botdesk/bridge-server-go/internal/model"
	"github.com/botdesk/bridge-server-go/internal/session"
	"github.com/botdesk/bridge-server-go/internal/sse"
)

type mockConversationRepo struct {
	mock.Mock
}

func (m *mockConversationRepo) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *mockConversationRepo) List(ctx context.Context, limit, offset int) ([]model.Conversation, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conversation), args.Error(1)
}

func (m *mockConversationRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockConversationRepo) Upsert(ctx context.Context, params model.UpsertConversationParams) (*model.Conversation, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *mockConversationRepo) UpdateControl(ctx context.Context, id string, isAutomated bool, operatorID *string) (*model.Conversation, error) {
	args := m.Called(ctx, id, isAutomated, operatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *mockConversationRepo) UpdateLastMessage(ctx context.Context, id string, summary string, at time.Time) error {
	args := m.Called(ctx, id, summary, at)
	return args.Error(0)
}

func (m *mockConversationRepo) UpdateStatus(ctx context.Context, id string, status model.ConversationStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *mockConversationRepo) CloseInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockMessageRepo struct {
	mock.Mock
}

func (m *mockMessageRepo) FindByID(ctx context.Context, id string) (*model.ChatMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatMessage), args.Error(1)
}

func (m *mockMessageRepo) FindByConversationID(ctx context.Context, conversationID string, limit, offset int) ([]model.ChatMessage, error) {
	args := m.Called(ctx, conversationID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChatMessage), args.Error(1)
}

func (m *mockMessageRepo) CountByConversationID(ctx context.Context, conversationID string) (int, error) {
	args := m.Called(ctx, conversationID)
	return args.Int(0), args.Error(1)
}

func (m *mockMessageRepo) CountUnreadByConversationID(ctx context.Context, conversationID string) (int, error) {
	args := m.Called(ctx, conversationID)
	return args.Int(0), args.Error(1)
}

func (m *mockMessageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.ChatMessage, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatMessage), args.Error(1)
}

func (m *mockMessageRepo) MarkConversationRead(ctx context.Context, conversationID string) (int64, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).(int64), args.Error(1)
}

// fakeSession is a scriptable stand-in for the session lifecycle manager.
type fakeSession struct {
	status       session.Status
	startErr     error
	awaitErr     error
	sendErr      error
	media        *gateway.Media
	mediaErr     error
	startCalls   int
	awaitCalls   int
	sentTo       []string
	sentBodies   []string
	connectAfter bool // flips status to connected after a successful start
}

func (f *fakeSession) Status() session.Snapshot {
	return session.Snapshot{Status: f.status}
}

func (f *fakeSession) Start(ctx context.Context) (session.Snapshot, error) {
	f.startCalls++
	if f.startErr != nil {
		return session.Snapshot{Status: session.StatusDisconnected}, f.startErr
	}
	if f.connectAfter {
		f.status = session.StatusConnected
	}
	return session.Snapshot{Status: f.status}, nil
}

func (f *fakeSession) AwaitConnected(ctx context.Context) error {
	f.awaitCalls++
	return f.awaitErr
}

func (f *fakeSession) SendText(ctx context.Context, to, body string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTo = append(f.sentTo, to)
	f.sentBodies = append(f.sentBodies, body)
	return nil
}

func (f *fakeSession) FetchMedia(ctx context.Context, messageID string) (*gateway.Media, error) {
	return f.media, f.mediaErr
}

type fakeResponder struct {
	reply string
	err   error
	calls int
}

func (f *fakeResponder) Respond(ctx context.Context, message *model.ChatMessage, conversation *model.Conversation) (string, error) {
	f.calls++
	return f.reply, f.err
}

type fakePublisher struct {
	events []sse.Event
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, event sse.Event) error {
	f.events = append(f.events, event)
	return nil
}
