package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/MrWong99/quillmate/internal/observe"
	"github.com/MrWong99/quillmate/internal/registry"
	"github.com/MrWong99/quillmate/pkg/types"
)

// ChapterRequest asks the [Service] to analyse one chapter of an author.
type ChapterRequest struct {
	AuthorID      string
	ChapterNumber int
	Text          string
}

// ChapterResult is the analysis plus the registry bookkeeping it caused.
type ChapterResult struct {
	*types.AnalysisResult

	// AddedNames is the number of names newly registered by this chapter.
	AddedNames int `json:"addedNames"`
}

// Service owns the per-author workflow around [Analyzer.AnalyzeChapter]:
// load the registry, analyse, register new names, save. Work for one author
// is serialised; different authors never wait on each other.
type Service struct {
	analyzer atomic.Pointer[Analyzer]
	store    registry.Store
	locks    registry.KeyedMutex
}

// NewService creates a Service.
func NewService(a *Analyzer, store registry.Store) *Service {
	s := &Service{store: store}
	s.analyzer.Store(a)
	return s
}

// Analyzer returns the current stateless analyzer.
func (s *Service) Analyzer() *Analyzer { return s.analyzer.Load() }

// SetAnalyzer replaces the analyzer used by subsequent requests. Requests
// already running finish with the analyzer they started with.
func (s *Service) SetAnalyzer(a *Analyzer) { s.analyzer.Store(a) }

// Ping checks the registry backend.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// ProcessChapter analyses req.Text against the author's registry and records
// names seen for the first time. When the registry cannot be loaded the
// chapter is still analysed, without consistency flags, and nothing is
// saved. A failed save is reported in Diagnostics.
func (s *Service) ProcessChapter(ctx context.Context, req ChapterRequest) (*ChapterResult, error) {
	if strings.TrimSpace(req.AuthorID) == "" {
		return nil, &InputError{Field: "authorId", Reason: "must not be empty"}
	}
	if req.ChapterNumber < 1 {
		return nil, &InputError{Field: "chapterNumber", Reason: "must be at least 1"}
	}

	unlock, err := s.locks.Lock(ctx, req.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("analyzer: wait for author %q: %w", req.AuthorID, err)
	}
	defer unlock()

	log := observe.Logger(ctx).With("author", req.AuthorID, "chapter", req.ChapterNumber)

	names, loadErr := s.store.Load(ctx, req.AuthorID)
	if loadErr != nil {
		log.Warn("registry unavailable, analysing without it", "err", loadErr)
		names = nil
	}

	res, err := s.Analyzer().AnalyzeChapter(ctx, req.Text, names)
	if err != nil {
		return nil, err
	}
	out := &ChapterResult{AnalysisResult: res}

	if loadErr != nil {
		res.Consistency = []types.ConsistencyFlag{}
		res.Highlights = highlights(req.Text, res)
		res.Diagnostics = append(res.Diagnostics, "name registry unavailable; consistency checks skipped")
		return out, nil
	}

	merged, added := registry.Merge(names, res.Names, res.Consistency, req.ChapterNumber)
	if added == 0 {
		return out, nil
	}
	if err := s.store.Save(ctx, req.AuthorID, merged); err != nil {
		log.Warn("registry save failed", "err", err)
		res.Diagnostics = append(res.Diagnostics, "name registry unavailable; new names were not saved")
		return out, nil
	}
	out.AddedNames = added
	log.Info("registered new names", "added", added, "total", len(merged))
	return out, nil
}

// Registry returns the registry of authorID.
func (s *Service) Registry(ctx context.Context, authorID string) ([]types.TrackedName, error) {
	if strings.TrimSpace(authorID) == "" {
		return nil, &InputError{Field: "authorId", Reason: "must not be empty"}
	}
	return s.store.Load(ctx, authorID)
}

// AddVariant accepts variant as a spelling of the author's tracked name
// canonical, so it is no longer flagged, and returns the updated registry.
func (s *Service) AddVariant(ctx context.Context, authorID, canonical, variant string) ([]types.TrackedName, error) {
	if strings.TrimSpace(authorID) == "" {
		return nil, &InputError{Field: "authorId", Reason: "must not be empty"}
	}
	if strings.TrimSpace(variant) == "" {
		return nil, &InputError{Field: "variant", Reason: "must not be empty"}
	}

	unlock, err := s.locks.Lock(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("analyzer: wait for author %q: %w", authorID, err)
	}
	defer unlock()

	names, err := s.store.Load(ctx, authorID)
	if err != nil {
		return nil, err
	}
	updated, err := registry.AddVariant(names, canonical, variant)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, authorID, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// IsInputError reports whether err is or wraps an [*InputError].
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
