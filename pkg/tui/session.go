package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/docdiff/docdiff/internal/model"
	"github.com/docdiff/docdiff/pkg/compare"
	derrors "github.com/docdiff/docdiff/pkg/errors"
	"github.com/docdiff/docdiff/pkg/loader"
	"github.com/docdiff/docdiff/pkg/logging"
	"github.com/docdiff/docdiff/pkg/qa"
	"github.com/docdiff/docdiff/pkg/voice"
)

const helpText = `  :add <paths>     attach files (csv, tsv, xlsx, pdf, docx, txt, sql, parquet, s3://, sql://)
  :rm <paths|n>    detach files by path or position
  :ls              list attached files
  :compare         print the comparison report
  :reset           forget the conversation
  :voice on|off    speak answers aloud
  :mic             ask a question by voice
  :quit            exit
  anything else is a question about the attached files`

// SessionConfig wires an interactive session.
type SessionConfig struct {
	In     io.Reader
	Out    io.Writer
	Loader *loader.Loader
	Engine *compare.Engine

	// QA answers questions. Nil disables questions.
	QA *qa.Service

	// Assistant enables :voice and :mic. Nil disables them.
	Assistant *voice.Assistant

	HistorySize int
	Logger      *zap.Logger
}

// Session is the interactive read-eval loop. Sources are attached and
// detached by command; other lines are questions answered against the
// current comparison. A question runs in the background until it
// completes, a newer question replaces it, or Interrupt is called.
type Session struct {
	in        io.Reader
	out       *syncWriter
	loader    *loader.Loader
	engine    *compare.Engine
	qa        *qa.Service
	assistant *voice.Assistant
	conv      *qa.Session
	logger    *zap.Logger

	paths   []string
	sources []*model.Source
	voice   bool

	mu       sync.Mutex
	inflight *question
}

type question struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates an interactive session.
func NewSession(cfg SessionConfig) *Session {
	in := cfg.In
	if in == nil {
		in = os.Stdin
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	engine := cfg.Engine
	if engine == nil {
		engine = compare.New(compare.WithLogger(cfg.Logger))
	}
	return &Session{
		in:        in,
		out:       &syncWriter{w: out},
		loader:    cfg.Loader,
		engine:    engine,
		qa:        cfg.QA,
		assistant: cfg.Assistant,
		conv:      qa.NewSession(cfg.HistorySize),
		logger:    logging.OrNop(cfg.Logger),
	}
}

// Conversation returns the question history holder.
func (s *Session) Conversation() *qa.Session {
	return s.conv
}

// Sources returns the attached sources in attach order.
func (s *Session) Sources() []*model.Source {
	return s.sources
}

// Run reads lines until :quit, end of input or ctx is done. At end of
// input an in-flight question is allowed to finish.
func (s *Session) Run(ctx context.Context) error {
	PrintHeader(s.out)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			s.Interrupt()
			return nil
		case line, ok := <-lines:
			if !ok {
				s.wait()
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			if quit := s.Handle(ctx, line); quit {
				s.Interrupt()
				return nil
			}
		}
	}
}

// Handle executes one input line and reports whether the session should
// end.
func (s *Session) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, ":") {
		s.Ask(ctx, line)
		return false
	}

	cmd, rest, _ := strings.Cut(line[1:], " ")
	args := strings.Fields(rest)

	switch strings.ToLower(cmd) {
	case "quit", "exit", "q":
		return true
	case "help", "h":
		PrintMuted(s.out, helpText)
	case "add":
		s.Add(ctx, args)
	case "rm", "remove":
		s.Remove(args)
	case "ls", "list":
		PrintSources(s.out, s.paths, s.sources)
	case "compare":
		s.Compare(ctx)
	case "reset":
		s.conv.Reset()
		PrintSuccess(s.out, "Conversation cleared")
	case "voice":
		s.setVoice(args)
	case "mic":
		s.mic(ctx)
	default:
		PrintWarning(s.out, fmt.Sprintf("Unknown command :%s (try :help)", cmd))
	}
	return false
}

// Add attaches files. Unknown formats and missing local files are
// reported and skipped.
func (s *Session) Add(ctx context.Context, args []string) {
	if len(args) == 0 {
		PrintWarning(s.out, "Usage: :add <paths>")
		return
	}

	var uris []string
	for _, arg := range args {
		uri := ExpandPath(arg)
		if !strings.Contains(uri, "://") {
			if _, err := os.Stat(uri); err != nil {
				PrintWarning(s.out, "File not found: "+uri)
				continue
			}
		}
		if loader.DetectFormat(uri) == loader.FormatUnknown && !strings.HasPrefix(uri, "s3://") {
			PrintWarning(s.out, fmt.Sprintf("Unsupported file type: %s (supported: %s)",
				uri, strings.Join(loader.SupportedExtensions(), " ")))
			continue
		}
		uris = append(uris, uri)
	}
	if len(uris) == 0 {
		return
	}

	bar := ShowProgress(s.out, int64(len(uris)), "Loading")
	sources := s.loader.LoadAll(ctx, uris, func(done, total int, uri string) {
		bar.Set(done)
	})
	bar.Finish()

	s.paths = append(s.paths, uris...)
	s.sources = append(s.sources, sources...)
	PrintSuccess(s.out, fmt.Sprintf("Added %d source(s), %d attached", len(uris), len(s.sources)))
}

// Remove detaches sources by path or 1-based position.
func (s *Session) Remove(args []string) {
	if len(args) == 0 {
		PrintWarning(s.out, "Usage: :rm <paths|n>")
		return
	}

	drop := make(map[int]bool)
	for _, arg := range args {
		if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(s.paths) {
			drop[n-1] = true
			continue
		}
		found := false
		path := ExpandPath(arg)
		for i, p := range s.paths {
			if p == path {
				drop[i] = true
				found = true
			}
		}
		if !found {
			PrintWarning(s.out, "Not attached: "+arg)
		}
	}
	if len(drop) == 0 {
		return
	}

	var paths []string
	var sources []*model.Source
	for i := range s.paths {
		if !drop[i] {
			paths = append(paths, s.paths[i])
			sources = append(sources, s.sources[i])
		}
	}
	s.paths, s.sources = paths, sources
	PrintSuccess(s.out, fmt.Sprintf("Removed %d source(s), %d attached", len(drop), len(s.sources)))
}

// Compare prints the comparison of the attached sources.
func (s *Session) Compare(ctx context.Context) {
	result, ok := s.comparison(ctx)
	if !ok {
		return
	}
	PrintResult(s.out, result)
}

func (s *Session) comparison(ctx context.Context) (*compare.Result, bool) {
	result, err := s.engine.Compare(ctx, s.sources)
	if err != nil {
		if derrors.IsCode(err, derrors.CodeInsufficientSources) {
			PrintWarning(s.out, "No sources attached. Use :add <paths> first.")
		} else {
			PrintError(s.out, err)
		}
		return nil, false
	}
	return result, true
}

// Ask starts answering question in the background, canceling any
// question still in flight.
func (s *Session) Ask(ctx context.Context, text string) {
	if s.qa == nil {
		PrintWarning(s.out, "Question answering is not configured (set GEMINI_API_KEY).")
		return
	}
	result, ok := s.comparison(ctx)
	if !ok {
		return
	}

	s.Interrupt()

	qctx, cancel := context.WithCancel(ctx)
	q := &question{cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.inflight = q
	s.mu.Unlock()

	speak := s.voice
	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			if s.inflight == q {
				s.inflight = nil
			}
			s.mu.Unlock()
			close(q.done)
		}()
		s.answer(qctx, result, text, speak)
	}()
}

func (s *Session) answer(ctx context.Context, subject fmt.Stringer, text string, speak bool) {
	s.out.Write([]byte("\n"))
	answer, err := s.qa.AskStream(ctx, subject, text, s.conv, func(chunk string) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := s.out.Write([]byte(chunk))
		return err
	})
	s.out.Write([]byte("\n\n"))

	if err != nil {
		if derrors.IsCode(err, derrors.CodeCanceled) || errors.Is(err, context.Canceled) {
			PrintMuted(s.out, "  (canceled)")
			return
		}
		PrintError(s.out, err)
		return
	}

	if speak && s.assistant != nil {
		if err := s.assistant.Respond(ctx, answer); err != nil {
			PrintWarning(s.out, err.Error())
		}
	}
}

// Interrupt cancels the in-flight question and waits for it to stop. It
// reports whether one was running.
func (s *Session) Interrupt() bool {
	s.mu.Lock()
	q := s.inflight
	s.inflight = nil
	s.mu.Unlock()

	if q == nil {
		return false
	}
	q.cancel()
	<-q.done
	return true
}

// wait blocks until the in-flight question, if any, completes.
func (s *Session) wait() {
	s.mu.Lock()
	q := s.inflight
	s.mu.Unlock()
	if q != nil {
		<-q.done
	}
}

func (s *Session) setVoice(args []string) {
	if s.assistant == nil {
		PrintWarning(s.out, "Voice is not configured.")
		return
	}
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		PrintWarning(s.out, "Usage: :voice on|off")
		return
	}
	s.voice = args[0] == "on"
	PrintSuccess(s.out, "Voice responses "+args[0])
}

func (s *Session) mic(ctx context.Context) {
	if s.assistant == nil {
		PrintWarning(s.out, "Voice is not configured.")
		return
	}
	s.Interrupt()

	text, err := s.assistant.GetQuery(ctx)
	if err != nil {
		if errors.Is(err, voice.ErrNotRecognized) {
			PrintWarning(s.out, "Sorry, I could not understand the audio.")
			return
		}
		PrintError(s.out, err)
		return
	}
	PrintMuted(s.out, "  > "+text)
	s.Ask(ctx, text)
}

// syncWriter serializes writes from the prompt loop and the answer
// goroutine.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
