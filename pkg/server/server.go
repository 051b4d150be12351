// Package server provides the HTTP API for comparing uploaded sources and
// asking questions about them.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docdiff/docdiff/internal/model"
	"github.com/docdiff/docdiff/pkg/compare"
	derrors "github.com/docdiff/docdiff/pkg/errors"
	"github.com/docdiff/docdiff/pkg/logging"
	"github.com/docdiff/docdiff/pkg/qa"
)

// DefaultMaxUploadSize bounds one upload request.
const DefaultMaxUploadSize = 100 << 20

var errUnknownSource = errors.New("unknown source")

// Config wires the server to its collaborators.
type Config struct {
	Engine *compare.Engine
	Loader SourceLoader

	// QA answers questions. Nil disables the ask endpoints.
	QA *qa.Service

	// Sessions keeps conversations. Nil means in-memory.
	Sessions qa.Store

	Logger *zap.Logger

	// UploadDir holds uploaded files and their index. Empty means a
	// temporary directory removed on Close.
	UploadDir     string
	MaxUploadSize int64
	HistorySize   int
	CORSOrigins   []string
}

// Server handles HTTP requests.
type Server struct {
	engine   *compare.Engine
	loader   SourceLoader
	qa       *qa.Service
	sessions qa.Store
	logger   *zap.Logger

	sources     *SourceStore
	uploadDir   string
	tempDir     bool
	maxUpload   int64
	historySize int
	origins     []string
	locks       *sessionLocks

	mux *http.ServeMux
}

// NewServer creates a new HTTP server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Loader == nil {
		return nil, fmt.Errorf("server: loader is required")
	}

	s := &Server{
		engine:      cfg.Engine,
		loader:      cfg.Loader,
		qa:          cfg.QA,
		sessions:    cfg.Sessions,
		logger:      logging.OrNop(cfg.Logger),
		uploadDir:   cfg.UploadDir,
		maxUpload:   cfg.MaxUploadSize,
		historySize: cfg.HistorySize,
		origins:     cfg.CORSOrigins,
		locks:       newSessionLocks(),
		mux:         http.NewServeMux(),
	}
	if s.engine == nil {
		s.engine = compare.New(compare.WithLogger(cfg.Logger))
	}
	if s.sessions == nil {
		s.sessions = qa.NewMemoryStore()
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadSize
	}
	if s.historySize <= 0 {
		s.historySize = qa.DefaultHistorySize
	}

	indexDir := s.uploadDir
	if s.uploadDir == "" {
		dir, err := os.MkdirTemp("", "docdiff-uploads-")
		if err != nil {
			return nil, err
		}
		s.uploadDir = dir
		s.tempDir = true
		indexDir = ""
	}

	store, err := NewSourceStore(indexDir)
	if err != nil {
		return nil, fmt.Errorf("server: source index: %w", err)
	}
	s.sources = store

	s.setupRoutes()
	return s, nil
}

// setupRoutes configures HTTP handlers.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("POST /api/sources", s.handleUpload)
	s.mux.HandleFunc("GET /api/sources", s.handleListSources)
	s.mux.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource)

	s.mux.HandleFunc("POST /api/compare", s.handleCompare)
	s.mux.HandleFunc("POST /api/ask", s.handleAsk)
	s.mux.HandleFunc("POST /api/ask/stream", s.handleAskStream)

	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	s.mux.ServeHTTP(w, r)
}

func (s *Server) allowOrigin(origin string) string {
	if slices.Contains(s.origins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(s.origins, origin) {
		return origin
	}
	return ""
}

// Close releases resources. Uploads in a temporary directory are removed.
func (s *Server) Close() error {
	if s.tempDir {
		return os.RemoveAll(s.uploadDir)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"sources": s.sources.Count(),
		"qa":      s.qa != nil,
	})
}

// handleUpload attaches one or more files sent as multipart "file" parts.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, http.StatusBadRequest, "", "Failed to parse upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		jsonError(w, http.StatusBadRequest, "", "No file provided")
		return
	}

	added := make([]*Upload, 0, len(files))
	for _, fh := range files {
		u, err := s.attach(r.Context(), fh)
		if err != nil {
			s.writeError(w, err)
			return
		}
		added = append(added, u)
	}

	jsonResponse(w, http.StatusCreated, added)
}

// attach saves the file under a fresh id, keeping its name so the loader
// can detect the format, and loads it once to validate.
func (s *Server) attach(ctx context.Context, fh *multipart.FileHeader) (*Upload, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, derrors.IOFailed(fh.Filename, err)
	}
	defer file.Close()

	id := uuid.NewString()
	name := filepath.Base(fh.Filename)
	path := filepath.Join(s.uploadDir, id+"-"+name)

	out, err := os.Create(path)
	if err != nil {
		return nil, derrors.IOFailed(path, err)
	}
	size, err := io.Copy(out, file)
	out.Close()
	if err != nil {
		os.Remove(path)
		return nil, derrors.IOFailed(path, err)
	}

	src, err := s.loader.LoadE(ctx, path)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	u := &Upload{
		ID:       id,
		Name:     name,
		Path:     path,
		Kind:     src.Kind.String(),
		Shape:    src.Shape(),
		Size:     size,
		Uploaded: time.Now(),
		source:   src,
	}
	if err := s.sources.Put(u); err != nil {
		s.logger.Warn("failed to persist source index", zap.Error(err))
	}

	s.logger.Info("source attached",
		zap.String("id", id),
		zap.String("name", name),
		zap.String("kind", u.Kind),
		zap.Int64("size", size))
	return u, nil
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.sources.List())
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	u, ok, err := s.sources.Delete(id)
	if !ok {
		jsonError(w, http.StatusNotFound, "", "Source not found")
		return
	}
	if err != nil {
		s.logger.Warn("failed to persist source index", zap.Error(err))
	}
	os.Remove(u.Path)
	w.WriteHeader(http.StatusNoContent)
}

// resolve returns the sources for ids, or every attached source when ids
// is empty.
func (s *Server) resolve(ctx context.Context, ids []string) ([]*model.Source, error) {
	var uploads []*Upload
	if len(ids) == 0 {
		uploads = s.sources.List()
	} else {
		for _, id := range ids {
			u, ok := s.sources.Get(id)
			if !ok {
				return nil, fmt.Errorf("%w: %s", errUnknownSource, id)
			}
			uploads = append(uploads, u)
		}
	}

	out := make([]*model.Source, 0, len(uploads))
	for _, u := range uploads {
		src, err := u.Source(ctx, s.loader)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

type compareRequest struct {
	SourceIDs []string `json:"source_ids"`
}

type compareResponse struct {
	Kind      string `json:"kind"` // summary | report
	Report    string `json:"report"`
	Sources   int    `json:"sources"`
	Pairs     int    `json:"pairs"`
	Failures  int    `json:"failures"`
	Identical bool   `json:"identical"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	result, err := s.comparison(r.Context(), req.SourceIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := compareResponse{Kind: "summary", Report: result.String(), Sources: 1}
	if result.Report != nil {
		resp.Kind = "report"
		resp.Sources = result.Report.Sources
		resp.Pairs = len(result.Report.Pairs)
		resp.Failures = len(result.Report.Failures())
		resp.Identical = result.Report.Identical()
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) comparison(ctx context.Context, ids []string) (*compare.Result, error) {
	sources, err := s.resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	return s.engine.Compare(ctx, sources)
}

type askRequest struct {
	SessionID string   `json:"session_id"`
	SourceIDs []string `json:"source_ids"`
	Question  string   `json:"question"`
}

type askResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

// prepareAsk validates the request and resolves its session and subject.
// It writes the error response itself and returns ok=false on failure. On
// success the session stays locked until release is called, so the
// history read here and the save after answering form one unit.
func (s *Server) prepareAsk(w http.ResponseWriter, r *http.Request) (req askRequest, sess *qa.Session, result *compare.Result, release func(), ok bool) {
	release = func() {}
	if s.qa == nil {
		jsonError(w, http.StatusServiceUnavailable, "", "Question answering is not configured")
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "", "Invalid request")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, qa.ErrEmptyQuestion)
		return
	}

	var err error
	result, err = s.comparison(r.Context(), req.SourceIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if req.SessionID != "" {
		release = s.locks.lock(req.SessionID)
	}
	sess, err = s.session(r.Context(), req.SessionID)
	if err != nil {
		release()
		release = func() {}
		s.writeError(w, err)
		return
	}
	return req, sess, result, release, true
}

func (s *Server) session(ctx context.Context, id string) (*qa.Session, error) {
	if id == "" {
		return qa.NewSession(s.historySize), nil
	}
	return s.sessions.Get(ctx, id)
}

func (s *Server) saveSession(ctx context.Context, sess *qa.Session) {
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.Warn("failed to save session", zap.String("session", sess.ID), zap.Error(err))
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, sess, result, release, ok := s.prepareAsk(w, r)
	if !ok {
		return
	}
	defer release()

	answer, err := s.qa.Ask(r.Context(), result, req.Question, sess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.saveSession(r.Context(), sess)

	jsonResponse(w, http.StatusOK, askResponse{SessionID: sess.ID, Answer: answer})
}

// handleAskStream streams the answer as SSE "chunk" events followed by a
// single "complete" or "error" event.
func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	req, sess, result, release, ok := s.prepareAsk(w, r)
	if !ok {
		return
	}
	defer release()

	stream, err := newSSEWriter(w)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "", err.Error())
		return
	}

	answer, err := s.qa.AskStream(r.Context(), result, req.Question, sess, func(chunk string) error {
		return stream.Send(SSEEvent{Event: "chunk", Data: map[string]string{"text": chunk}})
	})
	if err != nil {
		stream.Send(SSEEvent{Event: "error", Data: errorBody(err)})
		return
	}
	s.saveSession(r.Context(), sess)

	stream.Send(SSEEvent{Event: "complete", Data: askResponse{SessionID: sess.ID, Answer: answer}})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, sess.State())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helper functions

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnknownSource), errors.Is(err, qa.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, qa.ErrEmptyQuestion):
		return http.StatusBadRequest
	}

	switch derrors.GetCode(err) {
	case derrors.CodeInsufficientSources:
		return http.StatusBadRequest
	case derrors.CodeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case derrors.CodeParseFailed, derrors.CodeIOFailed:
		return http.StatusUnprocessableEntity
	case derrors.CodeLLMFailed:
		return http.StatusBadGateway
	case derrors.CodeCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) map[string]string {
	body := map[string]string{"error": err.Error()}
	if code := derrors.GetCode(err); code != derrors.CodeUnknown {
		body["code"] = string(code)
	}
	return body
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	jsonResponse(w, status, errorBody(err))
}

// decodeOptional decodes a JSON body, accepting an empty one.
func decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, http.StatusBadRequest, "", "Invalid request")
		return false
	}
	return true
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, code derrors.Code, message string) {
	body := map[string]string{"error": message}
	if code != "" {
		body["code"] = string(code)
	}
	jsonResponse(w, status, body)
}
