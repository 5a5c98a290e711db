package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/harun/ragent/pkg/remote"
	"github.com/harun/ragent/pkg/toolchannel"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSession is a mock implementation of Session
type MockSession struct {
	mock.Mock
}

func (m *MockSession) Initialize(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSession) Send(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *MockSession) Close() error {
	return m.Called().Error(0)
}

// MockChannel is a mock implementation of ToolChannel
type MockChannel struct {
	mock.Mock
	name  string
	tools map[string]bool
}

func newMockChannel(name string, tools ...string) *MockChannel {
	m := &MockChannel{name: name, tools: map[string]bool{}}
	for _, tool := range tools {
		m.tools[tool] = true
	}
	return m
}

func (m *MockChannel) Name() string {
	return m.name
}

func (m *MockChannel) Initialize(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockChannel) HasTool(name string) bool {
	return m.tools[name]
}

func (m *MockChannel) Invoke(ctx context.Context, name string, params map[string]any) (*toolchannel.ToolResult, error) {
	args := m.Called(ctx, name, params)
	if res := args.Get(0); res != nil {
		return res.(*toolchannel.ToolResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChannel) Close() error {
	return m.Called().Error(0)
}

func newReadyOrchestrator(t *testing.T, session *MockSession, channels ...ToolChannel) *Orchestrator {
	t.Helper()
	session.On("Initialize", mock.Anything).Return(nil)
	for _, ch := range channels {
		ch.(*MockChannel).On("Initialize", mock.Anything).Return(nil)
	}

	o, err := New(Config{
		Session:      session,
		Channels:     channels,
		SystemPrompt: "You are a writer.",
		Context:      "Sun Wukong is the Monkey King.",
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, o.Initialize(context.Background()))
	return o
}

func requireStage(t *testing.T, err error, stage Stage) *StageError {
	t.Helper()
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr), "expected a StageError, got %v", err)
	assert.Equal(t, stage, stageErr.Stage)
	return stageErr
}

func TestNew(t *testing.T) {
	t.Run("should require a session", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})

	t.Run("should reject nil channels", func(t *testing.T) {
		_, err := New(Config{Session: &MockSession{}, Channels: []ToolChannel{nil}})
		assert.Error(t, err)
	})
}

func TestInitialize(t *testing.T) {
	t.Run("should initialize the session and every channel", func(t *testing.T) {
		session := &MockSession{}
		fetch := newMockChannel("fetch", "fetch")
		file := newMockChannel("file", "writeOutput")

		newReadyOrchestrator(t, session, fetch, file)

		session.AssertExpectations(t)
		fetch.AssertExpectations(t)
		file.AssertExpectations(t)
	})

	t.Run("should abort when a channel fails", func(t *testing.T) {
		session := &MockSession{}
		session.On("Initialize", mock.Anything).Return(nil)
		file := newMockChannel("file", "writeOutput")
		file.On("Initialize", mock.Anything).Return(errors.New("spawn failed"))

		o, err := New(Config{Session: session, Channels: []ToolChannel{file}, Logger: zerolog.Nop()})
		require.NoError(t, err)

		err = o.Initialize(context.Background())
		requireStage(t, err, StageInitialize)
		assert.Contains(t, err.Error(), "channel file")

		_, err = o.Run(context.Background(), "task")
		se := requireStage(t, err, StageInitialize)
		assert.ErrorIs(t, se, ErrNotInitialized)
	})

	t.Run("should abort when the session fails", func(t *testing.T) {
		session := &MockSession{}
		session.On("Initialize", mock.Anything).Return(remote.NewServiceError("chat", "initialize", errors.New("unknown model")))

		o, err := New(Config{Session: session, Logger: zerolog.Nop()})
		require.NoError(t, err)

		err = o.Initialize(context.Background())
		requireStage(t, err, StageInitialize)
		var svcErr *remote.ServiceError
		assert.True(t, errors.As(err, &svcErr))
	})
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist the parsed reply through the file channel", func(t *testing.T) {
		session := &MockSession{}
		session.On("Send", mock.Anything, mock.MatchedBy(func(p string) bool {
			return p == BuildPrompt("You are a writer.", "Sun Wukong is the Monkey King.", "Write a story.")
		})).Return(`Here is JSON: {"content":"Hi","filename":"a.md"}`, nil).Once()

		fetch := newMockChannel("fetch", "fetch")
		file := newMockChannel("file", "writeFile", "writeOutput")
		file.On("Invoke", mock.Anything, "writeOutput", map[string]any{"path": "a.md", "content": "Hi"}).
			Return(&toolchannel.ToolResult{Route: toolchannel.LocalFastPath, Path: "/out/a.md"}, nil).Once()

		o := newReadyOrchestrator(t, session, fetch, file)
		result, err := o.Run(ctx, "Write a story.")
		require.NoError(t, err)

		assert.Equal(t, TaskResult{Content: "Hi", Filename: "a.md"}, result.TaskResult)
		assert.Equal(t, TierJSON, result.Tier)
		assert.Equal(t, "file", result.Channel)
		assert.Equal(t, "writeOutput", result.Tool)
		assert.Equal(t, "/out/a.md", result.Path)

		session.AssertExpectations(t)
		file.AssertExpectations(t)
		fetch.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("should fall back to writeFile", func(t *testing.T) {
		session := &MockSession{}
		session.On("Send", mock.Anything, mock.Anything).Return(`content: "Hi" filename: "a.md"`, nil)
		file := newMockChannel("file", "writeFile")
		file.On("Invoke", mock.Anything, "writeFile", mock.Anything).
			Return(&toolchannel.ToolResult{Route: toolchannel.RemoteCall}, nil)

		o := newReadyOrchestrator(t, session, file)
		result, err := o.Run(ctx, "task")
		require.NoError(t, err)
		assert.Equal(t, TierPattern, result.Tier)
		assert.Equal(t, "writeFile", result.Tool)
		assert.Equal(t, "a.md", result.Path)
	})

	t.Run("should reject an empty task", func(t *testing.T) {
		session := &MockSession{}
		o := newReadyOrchestrator(t, session)

		_, err := o.Run(ctx, "   ")
		se := requireStage(t, err, StagePrompt)
		assert.ErrorIs(t, se, ErrEmptyTask)
		session.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("should report chat failures", func(t *testing.T) {
		session := &MockSession{}
		session.On("Send", mock.Anything, mock.Anything).
			Return("", remote.NewServiceError("chat", "send", errors.New("rate limited")))

		o := newReadyOrchestrator(t, session)
		_, err := o.Run(ctx, "task")
		requireStage(t, err, StageChat)
		var svcErr *remote.ServiceError
		assert.True(t, errors.As(err, &svcErr))
	})

	t.Run("should not write anything for a malformed reply", func(t *testing.T) {
		session := &MockSession{}
		session.On("Send", mock.Anything, mock.Anything).Return("not parseable", nil)
		file := newMockChannel("file", "writeOutput")

		o := newReadyOrchestrator(t, session, file)
		_, err := o.Run(ctx, "task")
		requireStage(t, err, StageParse)

		var malformed *MalformedAgentReplyError
		require.True(t, errors.As(err, &malformed))
		assert.Equal(t, "not parseable", malformed.Excerpt)
		file.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("should fail without a file tool", func(t *testing.T) {
		session := &MockSession{}
		session.On("Send", mock.Anything, mock.Anything).Return(`{"content":"Hi","filename":"a.md"}`, nil)
		fetch := newMockChannel("fetch", "fetch")

		o := newReadyOrchestrator(t, session, fetch)
		_, err := o.Run(ctx, "task")
		se := requireStage(t, err, StageLocateTool)
		assert.ErrorIs(t, se, ErrNoFileTool)
	})

	t.Run("should report persist failures", func(t *testing.T) {
		session := &MockSession{}
		session.On("Send", mock.Anything, mock.Anything).Return(`{"content":"Hi","filename":"a.md"}`, nil)
		file := newMockChannel("file", "writeOutput")
		file.On("Invoke", mock.Anything, "writeOutput", mock.Anything).
			Return(nil, &toolchannel.TransportError{Channel: "file", Op: "call", Attempts: 3, Err: errors.New("broken pipe")})

		o := newReadyOrchestrator(t, session, file)
		_, err := o.Run(ctx, "task")
		requireStage(t, err, StagePersist)
		var te *toolchannel.TransportError
		assert.True(t, errors.As(err, &te))
	})
}

func TestRunWithLocalWrite(t *testing.T) {
	root := t.TempDir()

	file, err := toolchannel.New(toolchannel.Options{
		Name:       "mcp-server-file",
		Command:    "unused",
		LocalTools: []string{"writeOutput"},
		OutputRoot: root,
		Factory: func(cfg toolchannel.TransportConfig) toolchannel.Transport {
			return &idleTransport{}
		},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	session := &MockSession{}
	session.On("Initialize", mock.Anything).Return(nil)
	session.On("Send", mock.Anything, mock.Anything).
		Return(`{"content":"# Journey West","filename":"stories/wukong.md"}`, nil)
	session.On("Close").Return(nil)

	o, err := New(Config{Session: session, Channels: []ToolChannel{file}, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, o.Initialize(context.Background()))

	result, err := o.Run(context.Background(), "Write a story about Sun Wukong.")
	require.NoError(t, err)

	want := filepath.Join(root, "stories", "wukong.md")
	assert.Equal(t, want, result.Path)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "# Journey West", string(data))

	require.NoError(t, o.Close(context.Background()))
	assert.Equal(t, toolchannel.StateClosed, file.State())
}

type idleTransport struct{}

func (idleTransport) Connect(ctx context.Context) error { return nil }

func (idleTransport) ListTools(ctx context.Context) ([]toolchannel.ToolDescriptor, error) {
	return nil, nil
}

func (idleTransport) CallTool(ctx context.Context, name string, args map[string]any) (*toolchannel.CallResult, error) {
	return nil, errors.New("unexpected remote call")
}

func (idleTransport) Close() error { return nil }

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	session := &MockSession{}
	session.On("Initialize", mock.Anything).Return(nil)
	session.On("Send", mock.Anything, mock.Anything).Return("not parseable", nil)
	session.On("Close").Return(nil)
	file := newMockChannel("file", "writeOutput")
	file.On("Initialize", mock.Anything).Return(nil)
	file.On("Close").Return(nil)

	o, err := New(Config{Session: session, Channels: []ToolChannel{file}, Logger: zerolog.New(&buf)})
	require.NoError(t, err)

	t.Run("should log initialization", func(t *testing.T) {
		require.NoError(t, o.Initialize(context.Background()))
		assert.Contains(t, buf.String(), "Orchestrator initialized")
	})

	t.Run("should log the failing stage with the run ID", func(t *testing.T) {
		buf.Reset()
		_, err := o.Run(context.Background(), "task")
		requireStage(t, err, StageParse)

		out := buf.String()
		assert.Contains(t, out, "Run failed")
		assert.Contains(t, out, `"stage":"parse"`)
		assert.Contains(t, out, `"run_id":`)
	})

	require.NoError(t, o.Close())
}

func TestClose(t *testing.T) {
	t.Run("should join every teardown error", func(t *testing.T) {
		session := &MockSession{}
		session.On("Close").Return(errors.New("session boom")).Once()
		a := newMockChannel("a")
		a.On("Close").Return(errors.New("a boom")).Once()
		b := newMockChannel("b")
		b.On("Close").Return(nil).Once()

		o, err := New(Config{Session: session, Channels: []ToolChannel{a, b}, Logger: zerolog.Nop()})
		require.NoError(t, err)

		err = o.Close(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "session boom")
		assert.Contains(t, err.Error(), "channel a: a boom")

		assert.NoError(t, o.Close(context.Background()))
		session.AssertExpectations(t)
		a.AssertExpectations(t)
		b.AssertExpectations(t)
	})

	t.Run("should not affect a finished run result", func(t *testing.T) {
		session := &MockSession{}
		session.On("Send", mock.Anything, mock.Anything).Return(`{"content":"Hi","filename":"a.md"}`, nil)
		session.On("Close").Return(nil)
		file := newMockChannel("file", "writeOutput")
		file.On("Invoke", mock.Anything, "writeOutput", mock.Anything).
			Return(&toolchannel.ToolResult{Route: toolchannel.LocalFastPath, Path: "a.md"}, nil)
		file.On("Close").Return(errors.New("already gone"))

		o := newReadyOrchestrator(t, session, file)
		result, runErr := o.Run(context.Background(), "task")
		closeErr := o.Close(context.Background())

		require.NoError(t, runErr)
		assert.Equal(t, "a.md", result.Path)
		assert.Error(t, closeErr)

		_, err := o.Run(context.Background(), "task")
		requireStage(t, err, StageInitialize)
	})
}
