package handler

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/botdesk/bridge-server-go/internal/gateway"
	"github.com/botdesk/bridge-server-go/internal/model"
	"github.com/botdesk/bridge-server-go/internal/session"
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

// fakeSessionGateway satisfies service.SessionGateway for dispatch wiring.
type fakeSessionGateway struct {
	status  session.Status
	sendErr error
	sentTo  []string
}

func (f *fakeSessionGateway) Status() session.Snapshot {
	return session.Snapshot{Status: f.status}
}

func (f *fakeSessionGateway) Start(ctx context.Context) (session.Snapshot, error) {
	f.status = session.StatusConnected
	return session.Snapshot{Status: f.status}, nil
}

func (f *fakeSessionGateway) AwaitConnected(ctx context.Context) error { return nil }

func (f *fakeSessionGateway) SendText(ctx context.Context, to, body string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTo = append(f.sentTo, to)
	return nil
}

func (f *fakeSessionGateway) FetchMedia(ctx context.Context, messageID string) (*gateway.Media, error) {
	return nil, nil
}
