// Package voice adds spoken input and output around the QA service.
//
// Recognition and synthesis are delegated to external commands (for example
// a whisper wrapper and espeak), so any engine with a CLI can be plugged in.
// Every call takes a context; cancelling it kills the running command.
package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	derrors "github.com/docdiff/docdiff/pkg/errors"
	"github.com/docdiff/docdiff/pkg/logging"
)

// ErrNotRecognized is returned when recognition produced no text.
var ErrNotRecognized = errors.New("voice: speech not recognized")

// Greeting is spoken before listening.
const Greeting = "How can I help you today?"

// Recognizer turns speech into text.
type Recognizer interface {
	Listen(ctx context.Context) (string, error)
}

// Synthesizer speaks text aloud.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Standardizer rephrases recognized text; qa.Service satisfies it.
type Standardizer interface {
	Standardize(ctx context.Context, text string) (string, error)
}

// CommandRecognizer runs a speech-to-text command and reads the transcript
// from its stdout. "{lang}" in the arguments is replaced by Language.
type CommandRecognizer struct {
	Command  string
	Args     []string
	Language string
}

// Listen implements Recognizer.
func (r *CommandRecognizer) Listen(ctx context.Context) (string, error) {
	if r.Command == "" {
		return "", derrors.New(derrors.CodeVoiceFailed, "no recognition command configured")
	}

	args := make([]string, len(r.Args))
	for i, a := range r.Args {
		args[i] = strings.ReplaceAll(a, "{lang}", r.Language)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", derrors.Canceled("listen", ctx.Err())
		}
		return "", derrors.Wrap(err, derrors.CodeVoiceFailed, "recognition failed").
			WithContext("stderr", strings.TrimSpace(stderr.String()))
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", ErrNotRecognized
	}
	return text, nil
}

// CommandSynthesizer pipes text to a text-to-speech command's stdin.
type CommandSynthesizer struct {
	Command string
	Args    []string
}

// Speak implements Synthesizer.
func (s *CommandSynthesizer) Speak(ctx context.Context, text string) error {
	if s.Command == "" {
		return derrors.New(derrors.CodeVoiceFailed, "no speech command configured")
	}

	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return derrors.Canceled("speak", ctx.Err())
		}
		return derrors.Wrap(err, derrors.CodeVoiceFailed, "synthesis failed").
			WithContext("output", strings.TrimSpace(string(out)))
	}
	return nil
}

// Assistant combines recognition, standardization and synthesis.
type Assistant struct {
	rec    Recognizer
	syn    Synthesizer
	std    Standardizer
	logger *zap.Logger
}

// NewAssistant creates an assistant. std may be nil to skip rephrasing.
func NewAssistant(rec Recognizer, syn Synthesizer, std Standardizer, logger *zap.Logger) *Assistant {
	return &Assistant{rec: rec, syn: syn, std: std, logger: logging.OrNop(logger)}
}

// GetQuery greets the user, listens, and returns the standardized question.
func (a *Assistant) GetQuery(ctx context.Context) (string, error) {
	if err := a.Respond(ctx, Greeting); err != nil {
		a.logger.Warn("greeting failed", zap.Error(err))
	}

	text, err := a.rec.Listen(ctx)
	if err != nil {
		if errors.Is(err, ErrNotRecognized) {
			_ = a.Respond(ctx, "Sorry, I could not understand the audio.")
		}
		return "", err
	}

	if a.std == nil {
		return text, nil
	}
	std, err := a.std.Standardize(ctx, text)
	if err != nil {
		a.logger.Warn("standardize failed, using raw transcript", zap.Error(err))
		return text, nil
	}
	if std == "" {
		return text, nil
	}
	return std, nil
}

// Respond speaks text. The returned error is advisory: the caller has
// already shown text on screen.
func (a *Assistant) Respond(ctx context.Context, text string) error {
	if a.syn == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	if err := a.syn.Speak(ctx, text); err != nil {
		return fmt.Errorf("voice response: %w", err)
	}
	return nil
}
