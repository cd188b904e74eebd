// Package api serves the chapter analysis engine over JSON/HTTP.
//
//	POST /v1/analyze                                  stateless full analysis
//	POST /v1/authors/{author}/chapters                analysis with the author's name registry
//	GET  /v1/authors/{author}/names                   the author's name registry
//	POST /v1/authors/{author}/names/{name}/variants   accept a spelling variant
//	POST /v1/correct                                  correction pass only
//	POST /v1/repetitions                              repetition detector only
//	POST /v1/names                                    name extraction and consistency only
//	POST /v1/awkward                                  awkward phrasing pass only
//	GET  /v1/capabilities                             which model-backed passes are available
//
// Request and response bodies are JSON. Errors are JSON objects of the form
// {"error": "..."}; invalid input answers 400.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/quillmate/internal/analyzer"
	"github.com/MrWong99/quillmate/internal/observe"
	"github.com/MrWong99/quillmate/internal/registry"
	"github.com/MrWong99/quillmate/pkg/types"
)

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 4 << 20

// Server holds the HTTP handlers. It is safe for concurrent use.
type Server struct {
	svc     *analyzer.Service
	maxBody int64
}

// Option configures a [Server].
type Option func(*Server)

// WithMaxBodyBytes overrides [DefaultMaxBodyBytes]. Non-positive values are
// ignored.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// New creates a Server backed by svc.
func New(svc *analyzer.Service, opts ...Option) *Server {
	s := &Server{svc: svc, maxBody: DefaultMaxBodyBytes}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /v1/authors/{author}/chapters", s.handleChapter)
	mux.HandleFunc("GET /v1/authors/{author}/names", s.handleRegistry)
	mux.HandleFunc("POST /v1/authors/{author}/names/{name}/variants", s.handleAddVariant)
	mux.HandleFunc("POST /v1/correct", s.handleCorrect)
	mux.HandleFunc("POST /v1/repetitions", s.handleRepetitions)
	mux.HandleFunc("POST /v1/names", s.handleNames)
	mux.HandleFunc("POST /v1/awkward", s.handleAwkward)
	mux.HandleFunc("GET /v1/capabilities", s.handleCapabilities)
}

// Handler returns a mux serving only the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// ── Errors ───────────────────────────────────────────────────────────────────

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps err onto a status code. Unexpected errors are logged and
// answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status = http.StatusInternalServerError
		msg    = "internal error"
		maxErr *http.MaxBytesError
	)
	switch {
	case analyzer.IsInputError(err):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.As(err, &maxErr):
		status, msg = http.StatusRequestEntityTooLarge, "request body too large"
	case errors.Is(err, registry.ErrNameNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, registry.ErrVariantConflict):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, registry.ErrRegistryUnavailable):
		status, msg = http.StatusServiceUnavailable, "name registry unavailable"
	}
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads the JSON body of r into dst. Unknown fields are rejected.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return &analyzer.InputError{Field: "body", Reason: err.Error()}
	}
	return nil
}

// textField returns the required chapter text of a request.
func textField(text *string) (string, error) {
	if text == nil {
		return "", &analyzer.InputError{Field: "text", Reason: "is required"}
	}
	if err := analyzer.ValidateText(*text); err != nil {
		return "", err
	}
	return *text, nil
}

// ── Full analysis ────────────────────────────────────────────────────────────

type analyzeRequest struct {
	Text     *string             `json:"text"`
	Registry []types.TrackedName `json:"registry"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	text, err := textField(req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Analyzer().AnalyzeChapter(r.Context(), text, req.Registry)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type chapterRequest struct {
	ChapterNumber int     `json:"chapterNumber"`
	Text          *string `json:"text"`
}

func (s *Server) handleChapter(w http.ResponseWriter, r *http.Request) {
	var req chapterRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	text, err := textField(req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.ProcessChapter(r.Context(), analyzer.ChapterRequest{
		AuthorID:      r.PathValue("author"),
		ChapterNumber: req.ChapterNumber,
		Text:          text,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ── Registry ─────────────────────────────────────────────────────────────────

type registryResponse struct {
	Names []types.TrackedName `json:"names"`
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	names, err := s.svc.Registry(r.Context(), r.PathValue("author"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registryResponse{Names: registry.Clone(names)})
}

type variantRequest struct {
	Variant string `json:"variant"`
}

func (s *Server) handleAddVariant(w http.ResponseWriter, r *http.Request) {
	var req variantRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	names, err := s.svc.AddVariant(r.Context(), r.PathValue("author"), r.PathValue("name"), req.Variant)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registryResponse{Names: names})
}

// ── Single passes ────────────────────────────────────────────────────────────

type textRequest struct {
	Text *string `json:"text"`
}

func (s *Server) decodeText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req textRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return "", false
	}
	text, err := textField(req.Text)
	if err != nil {
		writeError(w, r, err)
		return "", false
	}
	return text, true
}

type correctResponse struct {
	CorrectedText string                 `json:"correctedText"`
	Corrections   []types.Correction     `json:"corrections"`
	CorrectedBy   types.CorrectionSource `json:"correctedBy"`
	Usage         types.TokenUsage       `json:"usage"`
	Diagnostics   []string               `json:"diagnostics,omitempty"`
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	text, ok := s.decodeText(w, r)
	if !ok {
		return
	}
	if text == "" {
		writeJSON(w, http.StatusOK, correctResponse{Corrections: []types.Correction{}, CorrectedBy: types.SourceRule})
		return
	}
	res := s.svc.Analyzer().Correct(r.Context(), text)
	writeJSON(w, http.StatusOK, correctResponse{
		CorrectedText: res.CorrectedText,
		Corrections:   res.Corrections,
		CorrectedBy:   res.Source,
		Usage:         res.Usage,
		Diagnostics:   res.Diagnostics,
	})
}

type repetitionsResponse struct {
	Repetitions []types.RepetitionMatch `json:"repetitions"`
}

func (s *Server) handleRepetitions(w http.ResponseWriter, r *http.Request) {
	text, ok := s.decodeText(w, r)
	if !ok {
		return
	}
	reps := s.svc.Analyzer().Repetitions(text)
	if reps == nil {
		reps = []types.RepetitionMatch{}
	}
	writeJSON(w, http.StatusOK, repetitionsResponse{Repetitions: reps})
}

type namesRequest struct {
	Text     *string             `json:"text"`
	Registry []types.TrackedName `json:"registry"`
}

type namesResponse struct {
	Names       []types.NamedEntity     `json:"names"`
	Consistency []types.ConsistencyFlag `json:"consistency"`
}

func (s *Server) handleNames(w http.ResponseWriter, r *http.Request) {
	var req namesRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	text, err := textField(req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a := s.svc.Analyzer()
	out := namesResponse{Names: a.Names(text)}
	out.Consistency = a.Consistency(out.Names, req.Registry)
	if out.Names == nil {
		out.Names = []types.NamedEntity{}
	}
	if out.Consistency == nil {
		out.Consistency = []types.ConsistencyFlag{}
	}
	writeJSON(w, http.StatusOK, out)
}

type awkwardResponse struct {
	AwkwardPhrasing []types.AwkwardPhrase `json:"awkwardPhrasing"`
	Usage           types.TokenUsage      `json:"usage"`
	Diagnostics     []string              `json:"diagnostics,omitempty"`
}

func (s *Server) handleAwkward(w http.ResponseWriter, r *http.Request) {
	text, ok := s.decodeText(w, r)
	if !ok {
		return
	}
	out := awkwardResponse{AwkwardPhrasing: []types.AwkwardPhrase{}}
	ed := s.svc.Analyzer().Editor()
	if ed == nil {
		out.Diagnostics = []string{"no language model configured; awkward phrasing unavailable"}
		writeJSON(w, http.StatusOK, out)
		return
	}
	phrases, usage, err := ed.AwkwardPhrasing(r.Context(), text)
	if err != nil {
		out.Diagnostics = []string{"awkward phrasing unavailable"}
	} else if phrases != nil {
		out.AwkwardPhrasing = phrases
	}
	out.Usage = usage
	writeJSON(w, http.StatusOK, out)
}

// ── Capabilities ─────────────────────────────────────────────────────────────

type capabilities struct {
	LLMConfigured   bool                   `json:"llmConfigured"`
	Correction      types.CorrectionSource `json:"correction"`
	AwkwardPhrasing bool                   `json:"awkwardPhrasing"`
	Feedback        bool                   `json:"feedback"`
}

func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	a := s.svc.Analyzer()
	f := a.Features()
	c := capabilities{
		LLMConfigured:   a.Corrector().HasPrimary() || a.Editor() != nil,
		Correction:      types.SourceRule,
		AwkwardPhrasing: f.Awkward,
		Feedback:        f.Feedback,
	}
	if a.Corrector().HasPrimary() {
		c.Correction = types.SourceAI
	}
	writeJSON(w, http.StatusOK, c)
}
