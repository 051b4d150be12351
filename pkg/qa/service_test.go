package qa

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	derrors "github.com/docdiff/docdiff/pkg/errors"
)

type mockModel struct {
	mock.Mock
}

func (m *mockModel) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *mockModel) Stream(ctx context.Context, prompt string, onChunk func(string) error) (string, error) {
	args := m.Called(ctx, prompt, onChunk)
	if chunks, ok := args.Get(2).([]string); ok {
		for _, c := range chunks {
			if err := onChunk(c); err != nil {
				return "", err
			}
		}
	}
	return args.String(0), args.Error(1)
}

type text string

func (t text) String() string { return string(t) }

func TestBuildPrompt_NoHistory(t *testing.T) {
	got := BuildPrompt("report body", "what changed?", nil)
	assert.Equal(t, "Comparison Summary:\nreport body\n\nQuestion: what changed?\nAnswer:", got)
}

func TestBuildPrompt_WithHistory(t *testing.T) {
	got := BuildPrompt("r", "q3", []Exchange{
		{Question: "q1", Answer: "a1"},
		{Question: "q2", Answer: "a2"},
	})
	assert.True(t, strings.HasPrefix(got, "Conversation History:\nQ: q1\nA: a1\nQ: q2\nA: a2\n\n"))
	assert.True(t, strings.HasSuffix(got, "Comparison Summary:\nr\n\nQuestion: q3\nAnswer:"))
}

func TestService_AskRecordsHistory(t *testing.T) {
	m := new(mockModel)
	m.On("Generate", mock.Anything, "Comparison Summary:\nR\n\nQuestion: first\nAnswer:").
		Return(" one ", nil).Once()
	m.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Q: first\nA: one\n") && strings.HasSuffix(p, "Question: second\nAnswer:")
	})).Return("two", nil).Once()

	svc := NewService(m, nil)
	sess := NewSession(10)

	answer, err := svc.Ask(context.Background(), text("R"), "first", sess)
	require.NoError(t, err)
	assert.Equal(t, "one", answer)

	answer, err = svc.Ask(context.Background(), text("R"), "second", sess)
	require.NoError(t, err)
	assert.Equal(t, "two", answer)

	h := sess.History()
	require.Len(t, h, 2)
	assert.Equal(t, "first", h[0].Question)
	assert.Equal(t, "two", h[1].Answer)
	m.AssertExpectations(t)
}

func TestService_AskStream(t *testing.T) {
	m := new(mockModel)
	m.On("Stream", mock.Anything, mock.Anything, mock.Anything).
		Return("Hello world", nil, []string{"Hello", " world"})

	var got []string
	answer, err := NewService(m, nil).AskStream(context.Background(), text("R"), "q", nil, func(c string) error {
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", answer)
	assert.Equal(t, []string{"Hello", " world"}, got)
}

func TestService_AskFailureIsCoded(t *testing.T) {
	m := new(mockModel)
	m.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("quota"))

	sess := NewSession(10)
	_, err := NewService(m, nil).Ask(context.Background(), text("R"), "q", sess)
	require.Error(t, err)
	assert.True(t, derrors.IsCode(err, derrors.CodeLLMFailed))
	assert.Empty(t, sess.History(), "failed exchanges must not be recorded")
}

func TestService_AskCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := new(mockModel)
	m.On("Generate", mock.Anything, mock.Anything).Return("", context.Canceled)

	_, err := NewService(m, nil).Ask(ctx, text("R"), "q", nil)
	assert.True(t, derrors.IsCode(err, derrors.CodeCanceled))
}

func TestService_EmptyQuestion(t *testing.T) {
	m := new(mockModel)
	_, err := NewService(m, nil).Ask(context.Background(), text("R"), "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	m.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestService_GenerateSQL(t *testing.T) {
	m := new(mockModel)
	m.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.HasPrefix(p, "Generate SQL for the following request: top customers") &&
			strings.Contains(p, "people(id, name)")
	})).Return("```sql\nSELECT * FROM people\n```", nil)

	sql, err := NewService(m, nil).GenerateSQL(context.Background(), "top customers", "people(id, name)")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM people", sql)
}

func TestService_Standardize(t *testing.T) {
	m := new(mockModel)
	m.On("Generate", mock.Anything, "Please rephrase the following text in a more standard and formal language: 'wanna see diffs'").
		Return("'I would like to see the differences.'", nil)

	out, err := NewService(m, nil).Standardize(context.Background(), "wanna see diffs")
	require.NoError(t, err)
	assert.Equal(t, "I would like to see the differences.", out)

	out, err = NewService(m, nil).Standardize(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, "SELECT 1", StripCodeFence("SELECT 1"))
	assert.Equal(t, "SELECT 1", StripCodeFence("```\nSELECT 1\n```"))
	assert.Equal(t, "SELECT 1", StripCodeFence("```SELECT 1```"))
}

func TestHistory_Bounded(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(Exchange{Question: string(rune('a' + i))})
	}
	ex := h.Exchanges()
	require.Len(t, ex, 3)
	assert.Equal(t, "c", ex[0].Question)
	assert.Equal(t, "e", ex[2].Question)

	assert.Equal(t, DefaultHistorySize, NewHistory(0).Limit())
}

func TestSession_ConcurrentRecord(t *testing.T) {
	s := NewSession(10)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Record("q", "a")
		}()
	}
	wg.Wait()
	assert.Len(t, s.History(), 10)
}

func TestSession_StateRoundTrip(t *testing.T) {
	s := NewSession(2)
	s.Record("q1", "a1")
	s.Record("q2", "a2")
	s.Record("q3", "a3")

	restored := RestoreSession(s.State())
	assert.Equal(t, s.ID, restored.ID)
	assert.Equal(t, s.History(), restored.History())

	restored.Reset()
	assert.Empty(t, restored.History())
	assert.Len(t, s.History(), 2)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	s := NewSession(5)
	require.NoError(t, store.Save(ctx, s))
	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, store.Delete(ctx, s.ID))
	assert.ErrorIs(t, store.Delete(ctx, s.ID), ErrSessionNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestCachedModel(t *testing.T) {
	m := new(mockModel)
	m.On("Generate", mock.Anything, "p").Return("answer", nil).Once()
	m.On("Stream", mock.Anything, "s", mock.Anything).Return("streamed", nil, []string{"streamed"}).Once()

	c := NewCachedModel(m, 8, time.Minute)
	for i := 0; i < 3; i++ {
		got, err := c.Generate(context.Background(), "p")
		require.NoError(t, err)
		assert.Equal(t, "answer", got)
	}

	var chunks []string
	collect := func(s string) error { chunks = append(chunks, s); return nil }
	_, err := c.Stream(context.Background(), "s", collect)
	require.NoError(t, err)
	_, err = c.Stream(context.Background(), "s", collect)
	require.NoError(t, err)
	assert.Equal(t, []string{"streamed", "streamed"}, chunks)

	assert.Equal(t, 2, c.Len())
	m.AssertExpectations(t)
}
