package voice

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "github.com/docdiff/docdiff/pkg/errors"
)

type fakeRecognizer struct {
	text string
	err  error
}

func (f *fakeRecognizer) Listen(context.Context) (string, error) { return f.text, f.err }

type fakeSynth struct {
	spoken []string
	err    error
}

func (f *fakeSynth) Speak(_ context.Context, text string) error {
	f.spoken = append(f.spoken, text)
	return f.err
}

type fakeStd struct {
	out string
	err error
}

func (f *fakeStd) Standardize(context.Context, string) (string, error) { return f.out, f.err }

func TestAssistant_GetQuery(t *testing.T) {
	syn := &fakeSynth{}
	a := NewAssistant(&fakeRecognizer{text: "show diffs"}, syn, &fakeStd{out: "Please show the differences."}, nil)

	q, err := a.GetQuery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Please show the differences.", q)
	assert.Equal(t, []string{Greeting}, syn.spoken)
}

func TestAssistant_NotRecognized(t *testing.T) {
	syn := &fakeSynth{}
	a := NewAssistant(&fakeRecognizer{err: ErrNotRecognized}, syn, nil, nil)

	_, err := a.GetQuery(context.Background())
	assert.ErrorIs(t, err, ErrNotRecognized)
	assert.Len(t, syn.spoken, 2)
}

func TestAssistant_StandardizeFailureFallsBack(t *testing.T) {
	a := NewAssistant(&fakeRecognizer{text: "raw"}, nil, &fakeStd{err: errors.New("down")}, nil)
	q, err := a.GetQuery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "raw", q)
}

func TestAssistant_RespondError(t *testing.T) {
	a := NewAssistant(nil, &fakeSynth{err: errors.New("no audio")}, nil, nil)
	assert.Error(t, a.Respond(context.Background(), "hello"))
	assert.NoError(t, a.Respond(context.Background(), "  "))
}

func TestCommandRecognizer(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	r := &CommandRecognizer{Command: "echo", Args: []string{"hello {lang}"}, Language: "en-US"}
	text, err := r.Listen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello en-US", text)

	empty := &CommandRecognizer{Command: "true"}
	_, err = empty.Listen(context.Background())
	assert.ErrorIs(t, err, ErrNotRecognized)

	_, err = (&CommandRecognizer{}).Listen(context.Background())
	assert.True(t, derrors.IsCode(err, derrors.CodeVoiceFailed))
}

func TestCommandSynthesizer_Cancel(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	s := &CommandSynthesizer{Command: "sleep", Args: []string{"5"}}
	start := time.Now()
	err := s.Speak(ctx, "ignored")
	assert.True(t, derrors.IsCode(err, derrors.CodeCanceled))
	assert.Less(t, time.Since(start), 4*time.Second)
}
