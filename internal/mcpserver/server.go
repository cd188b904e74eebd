// Package mcpserver exposes the analysis engine as MCP tools, so editors and
// agents that speak the Model Context Protocol can call it over stdio.
//
// Tools:
//   - "analyze_chapter"    full analysis; with author_id the author's name
//     registry is used and updated.
//   - "detect_repetitions" repeated words within their window.
//   - "extract_names"      named entities, checked against an author's
//     registry when author_id is given.
//   - "segment_dialogue"   quoted dialogue spans with attribution.
//
// Every tool returns its result as a single JSON text content.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/quillmate/internal/analyzer"
	"github.com/MrWong99/quillmate/internal/observe"
	"github.com/MrWong99/quillmate/pkg/types"
)

// Server wraps an MCP server whose tools call an [analyzer.Service].
type Server struct {
	svc    *analyzer.Service
	server *mcp.Server
}

// New creates a Server with all tools registered. version is reported to
// clients during initialisation.
func New(svc *analyzer.Service, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{
		svc:    svc,
		server: mcp.NewServer(&mcp.Implementation{Name: "quillmate", Version: version}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "analyze_chapter",
		Description: "Analyse a fiction chapter: spelling and grammar corrections, word repetitions, dialogue, character and place names, name consistency, statistics and highlights. Pass author_id and chapter_number to check names against the author's earlier chapters and record new ones.",
	}, s.analyzeChapter)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "detect_repetitions",
		Description: "Find words repeated too close together in a passage.",
	}, s.detectRepetitions)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "extract_names",
		Description: "Extract character and place names from a passage. With author_id, names that look like misspellings of the author's tracked names are flagged.",
	}, s.extractNames)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "segment_dialogue",
		Description: "Find quoted dialogue in a passage and the speaker it is attributed to.",
	}, s.segmentDialogue)

	return s
}

// MCP returns the underlying SDK server, for custom transports.
func (s *Server) MCP() *mcp.Server { return s.server }

// Run serves over stdin/stdout until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcpserver: run: %w", err)
	}
	return nil
}

// ── Tool inputs ──────────────────────────────────────────────────────────────

type textArgs struct {
	Text string `json:"text" jsonschema:"the chapter or passage to analyse"`
}

type analyzeArgs struct {
	Text          string `json:"text" jsonschema:"the chapter text"`
	AuthorID      string `json:"author_id,omitempty" jsonschema:"author whose name registry to use and update"`
	ChapterNumber int    `json:"chapter_number,omitempty" jsonschema:"1-based chapter number, required with author_id"`
}

type namesArgs struct {
	Text     string `json:"text" jsonschema:"the passage to scan for names"`
	AuthorID string `json:"author_id,omitempty" jsonschema:"author whose name registry to check against"`
}

// ── Handlers ─────────────────────────────────────────────────────────────────

func (s *Server) analyzeChapter(ctx context.Context, _ *mcp.CallToolRequest, args analyzeArgs) (*mcp.CallToolResult, any, error) {
	ctx, span := observe.StartSpan(ctx, "mcp.analyze_chapter")
	defer span.End()

	if args.AuthorID == "" {
		res, err := s.svc.Analyzer().AnalyzeChapter(ctx, args.Text, nil)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(res)
	}
	res, err := s.svc.ProcessChapter(ctx, analyzer.ChapterRequest{
		AuthorID:      args.AuthorID,
		ChapterNumber: args.ChapterNumber,
		Text:          args.Text,
	})
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(res)
}

func (s *Server) detectRepetitions(_ context.Context, _ *mcp.CallToolRequest, args textArgs) (*mcp.CallToolResult, any, error) {
	if err := analyzer.ValidateText(args.Text); err != nil {
		return nil, nil, err
	}
	return jsonResult(struct {
		Repetitions []types.RepetitionMatch `json:"repetitions"`
	}{s.svc.Analyzer().Repetitions(args.Text)})
}

func (s *Server) extractNames(ctx context.Context, _ *mcp.CallToolRequest, args namesArgs) (*mcp.CallToolResult, any, error) {
	if err := analyzer.ValidateText(args.Text); err != nil {
		return nil, nil, err
	}
	var reg []types.TrackedName
	if args.AuthorID != "" {
		var err error
		if reg, err = s.svc.Registry(ctx, args.AuthorID); err != nil {
			return nil, nil, err
		}
	}
	a := s.svc.Analyzer()
	out := struct {
		Names       []types.NamedEntity     `json:"names"`
		Consistency []types.ConsistencyFlag `json:"consistency"`
	}{Names: a.Names(args.Text)}
	out.Consistency = a.Consistency(out.Names, reg)
	if out.Names == nil {
		out.Names = []types.NamedEntity{}
	}
	if out.Consistency == nil {
		out.Consistency = []types.ConsistencyFlag{}
	}
	return jsonResult(out)
}

func (s *Server) segmentDialogue(_ context.Context, _ *mcp.CallToolRequest, args textArgs) (*mcp.CallToolResult, any, error) {
	if err := analyzer.ValidateText(args.Text); err != nil {
		return nil, nil, err
	}
	spans := s.svc.Analyzer().Dialogue(args.Text)
	if spans == nil {
		spans = []types.DialogueSpan{}
	}
	return jsonResult(struct {
		Dialogue []types.DialogueSpan `json:"dialogue"`
	}{spans})
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
