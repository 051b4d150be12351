package tui

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdiff/docdiff/pkg/loader"
	"github.com/docdiff/docdiff/pkg/qa"
	"github.com/docdiff/docdiff/pkg/voice"
)

// scriptedModel answers every question with "answer to <question>",
// except "slow", which blocks until canceled.
type scriptedModel struct{}

func (scriptedModel) Generate(ctx context.Context, prompt string) (string, error) {
	return scriptedModel{}.Stream(ctx, prompt, func(string) error { return nil })
}

func (scriptedModel) Stream(ctx context.Context, prompt string, onChunk func(string) error) (string, error) {
	q := prompt[strings.LastIndex(prompt, "Question: ")+len("Question: "):]
	q = strings.TrimSuffix(q, "\nAnswer:")
	if q == "slow" {
		<-ctx.Done()
		return "", ctx.Err()
	}
	answer := "answer to " + q
	if err := onChunk(answer); err != nil {
		return "", err
	}
	return answer, nil
}

type fakeRecognizer struct{ text string }

func (f fakeRecognizer) Listen(context.Context) (string, error) { return f.text, nil }

type recordingSynth struct{ spoken []string }

func (r *recordingSynth) Speak(_ context.Context, text string) error {
	r.spoken = append(r.spoken, text)
	return nil
}

func writeFixtures(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	require.NoError(t, os.WriteFile(a, []byte("id,name\n1,x\n2,y\n"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("id,name\n1,x\n2,z\n"), 0644))
	return a, b
}

func runSession(t *testing.T, cfg SessionConfig, script string) (*Session, string) {
	t.Helper()
	var out bytes.Buffer
	cfg.In = strings.NewReader(script)
	cfg.Out = &out
	if cfg.Loader == nil {
		cfg.Loader = loader.New(loader.Options{}, nil)
	}
	s := NewSession(cfg)
	require.NoError(t, s.Run(context.Background()))
	return s, out.String()
}

func TestSession_AddCompareRemove(t *testing.T) {
	a, b := writeFixtures(t)
	script := ":add " + a + " " + b + "\n:compare\n:rm 1\n:ls\n"

	s, out := runSession(t, SessionConfig{}, script)

	assert.Contains(t, out, "Added 2 source(s), 2 attached")
	assert.Contains(t, out, "Comparing source 1 with source 2:")
	assert.Contains(t, out, `name: "y" vs "z"`)
	assert.Contains(t, out, "Removed 1 source(s), 1 attached")
	require.Len(t, s.Sources(), 1)
	assert.Contains(t, out, b)
}

func TestSession_Warnings(t *testing.T) {
	script := ":ls\n:compare\n:add /does/not/exist.csv\n:bogus\n:voice on\nwhat changed?\n"

	_, out := runSession(t, SessionConfig{}, script)

	assert.Contains(t, out, "No sources attached.")
	assert.Contains(t, out, "No sources attached. Use :add <paths> first.")
	assert.Contains(t, out, "File not found: /does/not/exist.csv")
	assert.Contains(t, out, "Unknown command :bogus")
	assert.Contains(t, out, "Voice is not configured.")
	assert.Contains(t, out, "Question answering is not configured")
}

func TestSession_QuestionNeedsSources(t *testing.T) {
	_, out := runSession(t, SessionConfig{QA: qa.NewService(scriptedModel{}, nil)}, "hello\n")
	assert.Contains(t, out, "No sources attached. Use :add <paths> first.")
}

func TestSession_AskRecordsHistory(t *testing.T) {
	a, b := writeFixtures(t)
	script := ":add " + a + " " + b + "\nwhat changed?\n"

	s, out := runSession(t, SessionConfig{QA: qa.NewService(scriptedModel{}, nil)}, script)

	assert.Contains(t, out, "answer to what changed?")
	history := s.Conversation().History()
	require.Len(t, history, 1)
	assert.Equal(t, "what changed?", history[0].Question)
}

func TestSession_NewQuestionCancelsInFlight(t *testing.T) {
	a, b := writeFixtures(t)
	script := ":add " + a + " " + b + "\nslow\nfast\n"

	s, out := runSession(t, SessionConfig{QA: qa.NewService(scriptedModel{}, nil)}, script)

	assert.Contains(t, out, "(canceled)")
	assert.Contains(t, out, "answer to fast")
	history := s.Conversation().History()
	require.Len(t, history, 1)
	assert.Equal(t, "fast", history[0].Question)
}

func TestSession_QuitStopsReading(t *testing.T) {
	a, b := writeFixtures(t)
	_, out := runSession(t, SessionConfig{}, ":quit\n:add "+a+" "+b+"\n")
	assert.NotContains(t, out, "Added")
}

func TestSession_Voice(t *testing.T) {
	a, b := writeFixtures(t)
	syn := &recordingSynth{}
	assistant := voice.NewAssistant(fakeRecognizer{text: "which rows differ"}, syn, nil, nil)

	script := ":add " + a + " " + b + "\n:voice on\n:mic\n"
	_, out := runSession(t, SessionConfig{
		QA:        qa.NewService(scriptedModel{}, nil),
		Assistant: assistant,
	}, script)

	assert.Contains(t, out, "Voice responses on")
	assert.Contains(t, out, "> which rows differ")
	assert.Contains(t, out, "answer to which rows differ")
	assert.Equal(t, []string{voice.Greeting, "answer to which rows differ"}, syn.spoken)
}

func TestSession_InterruptWithoutQuestion(t *testing.T) {
	s := NewSession(SessionConfig{In: strings.NewReader(""), Out: &bytes.Buffer{}})
	assert.False(t, s.Interrupt())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/a.csv", ExpandPath(` "/tmp/a.csv" `))
	assert.Equal(t, filepath.Join(home, "x.csv"), ExpandPath("~/x.csv"))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2<<20))
}
