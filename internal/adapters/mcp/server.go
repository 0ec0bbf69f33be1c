package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/docstack/internal/core/ports"
)

const serverVersion = "1.0.0"

// Server exposes the document Q&A surface over the Model Context
// Protocol so agent runtimes can use the corpus as a tool. Transport is
// stdio; the process is started per client session.
type Server struct {
	mcp   *server.MCPServer
	query ports.DocumentQueryService
}

func NewServer(query ports.DocumentQueryService) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			"docstack",
			serverVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		query: query,
	}

	s.mcp.AddTool(mcp.NewTool("query_documents",
		mcp.WithDescription("Answer a question from the user's uploaded documents. Returns the answer text with cited sources."),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Owner whose documents are searched. Results never cross users."),
		),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer."),
		),
		mcp.WithString("conversation_id",
			mcp.Description("Optional conversation to continue; a new one is started when omitted."),
		),
	), s.handleQueryDocuments)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Retrieve the raw document excerpts most similar to a query, with similarity scores. No answer is generated."),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Owner whose documents are searched."),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Text to search for."),
		),
	), s.handleSearchDocuments)

	return s
}

// ServeStdio blocks until the client closes stdin.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleQueryDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	conversationID := request.GetString("conversation_id", "")

	answer, err := s.query.Ask(ctx, userID, conversationID, question)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}

	payload, err := json.MarshalIndent(answer, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode answer: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	chunks, err := s.query.Search(ctx, userID, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	type hit struct {
		DocumentName string  `json:"document_name"`
		Folder       string  `json:"folder,omitempty"`
		ChunkIndex   int     `json:"chunk_index"`
		Similarity   float64 `json:"similarity"`
		Text         string  `json:"text"`
	}
	hits := make([]hit, 0, len(chunks))
	for _, c := range chunks {
		hits = append(hits, hit{
			DocumentName: c.DocumentName,
			Folder:       c.Folder,
			ChunkIndex:   c.Index,
			Similarity:   c.Similarity,
			Text:         c.Text,
		})
	}

	payload, err := json.MarshalIndent(hits, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode hits: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}
