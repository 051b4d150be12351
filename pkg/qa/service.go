// Package qa answers natural-language questions about comparison results
// using a language model, with per-session bounded history.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	derrors "github.com/docdiff/docdiff/pkg/errors"
	"github.com/docdiff/docdiff/pkg/logging"
)

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("qa: empty question")

// Service builds prompts and calls the model. It holds no conversation
// state of its own; history lives in the Session passed per call.
type Service struct {
	model  Model
	logger *zap.Logger
	tracer trace.Tracer
}

// NewService creates a service.
func NewService(model Model, logger *zap.Logger) *Service {
	return &Service{
		model:  model,
		logger: logging.OrNop(logger),
		tracer: otel.Tracer("github.com/docdiff/docdiff/pkg/qa"),
	}
}

// Ask answers question about subject (a report, summary or source). When
// sess is non-nil its history is included in the prompt and the new
// exchange is recorded on success.
func (s *Service) Ask(ctx context.Context, subject fmt.Stringer, question string, sess *Session) (string, error) {
	return s.ask(ctx, subject, question, sess, nil)
}

// AskStream is Ask with incremental delivery through onChunk.
func (s *Service) AskStream(ctx context.Context, subject fmt.Stringer, question string, sess *Session, onChunk func(string) error) (string, error) {
	return s.ask(ctx, subject, question, sess, onChunk)
}

func (s *Service) ask(ctx context.Context, subject fmt.Stringer, question string, sess *Session, onChunk func(string) error) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	ctx, span := s.tracer.Start(ctx, "qa.Ask",
		trace.WithAttributes(attribute.Bool("docdiff.stream", onChunk != nil)))
	defer span.End()

	var history []Exchange
	if sess != nil {
		history = sess.History()
		span.SetAttributes(attribute.String("docdiff.session", sess.ID))
	}

	text := ""
	if subject != nil {
		text = subject.String()
	}
	prompt := BuildPrompt(text, question, history)

	var (
		answer string
		err    error
	)
	if onChunk != nil {
		answer, err = s.model.Stream(ctx, prompt, onChunk)
	} else {
		answer, err = s.model.Generate(ctx, prompt)
	}
	if err != nil {
		err = s.wrap(ctx, "ask", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return answer, err
	}

	answer = strings.TrimSpace(answer)
	if sess != nil {
		sess.Record(question, answer)
	}
	return answer, nil
}

// Standardize rephrases informal (typically transcribed) text formally.
func (s *Service) Standardize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	out, err := s.model.Generate(ctx, standardizePrompt(text))
	if err != nil {
		return "", s.wrap(ctx, "standardize", err)
	}
	return strings.Trim(strings.TrimSpace(out), "'\""), nil
}

// GenerateSQL turns a natural-language request into a single SQL
// statement. schema, if non-empty, describes the available tables.
func (s *Service) GenerateSQL(ctx context.Context, request, schema string) (string, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return "", ErrEmptyQuestion
	}
	out, err := s.model.Generate(ctx, sqlPrompt(request, schema))
	if err != nil {
		return "", s.wrap(ctx, "generate sql", err)
	}
	return StripCodeFence(out), nil
}

func (s *Service) wrap(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return derrors.Canceled(op, err)
	}
	s.logger.Error("language model request failed", zap.String("op", op), zap.Error(err))
	return derrors.Wrap(err, derrors.CodeLLMFailed, op+" failed")
}
