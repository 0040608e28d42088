// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the creation gallery as tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/atelier/internal/apperr"
	"github.com/starford/atelier/internal/collection"
	"github.com/starford/atelier/internal/content"
	"github.com/starford/atelier/internal/generate"
	"github.com/starford/atelier/internal/models"
	"github.com/starford/atelier/internal/mutation"
	"github.com/starford/atelier/internal/remote"
)

// settleTimeout bounds how long a tool waits for a mutation to reconcile.
const settleTimeout = 30 * time.Second

// Server wraps the MCP server with gallery tools.
type Server struct {
	mcp   *server.MCPServer
	views map[remote.Scope]*collection.Controller
}

type creationSummary struct {
	ID        string      `json:"id"`
	Kind      models.Kind `json:"type"`
	Title     string      `json:"title"`
	Excerpt   string      `json:"excerpt,omitempty"`
	Likes     int         `json:"likes"`
	Liked     bool        `json:"liked"`
	Published bool        `json:"publish"`
	CreatedAt time.Time   `json:"created_at"`
}

type pageResult struct {
	Scope      remote.Scope      `json:"scope"`
	Filter     models.Filter     `json:"filter"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
	Filtered   int               `json:"filtered_count"`
	Stale      bool              `json:"stale,omitempty"`
	Items      []creationSummary `json:"items"`
}

// New creates a new MCP server over the given mounted views.
func New(views ...*collection.Controller) *Server {
	s := &Server{views: make(map[remote.Scope]*collection.Controller, len(views))}
	for _, v := range views {
		s.views[v.Scope()] = v
	}

	s.mcp = server.NewMCPServer(
		"Atelier",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	scopeArg := mcp.WithString("scope", mcp.Enum("own", "community"), mcp.Description("Collection to use (default own)"))

	s.mcp.AddTool(mcp.NewTool("list_creations",
		mcp.WithDescription("List one page of creations, newest first, optionally filtered by type."),
		scopeArg,
		mcp.WithString("filter", mcp.Description("all, article, blog-title, image or resume-review")),
		mcp.WithNumber("page", mcp.Description("1-based page number")),
	), s.listCreations)

	s.mcp.AddTool(mcp.NewTool("read_creation",
		mcp.WithDescription("Read the full content of a creation. Images return their URL."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Creation id")),
		scopeArg,
	), s.readCreation)

	s.mcp.AddTool(mcp.NewTool("search_creations",
		mcp.WithDescription("Search prompts and content of the locally cached collection."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		scopeArg,
	), s.searchCreations)

	s.mcp.AddTool(mcp.NewTool("toggle_like",
		mcp.WithDescription("Like a creation, or remove the like if already liked."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Creation id")),
		scopeArg,
	), s.toggleLike)

	s.mcp.AddTool(mcp.NewTool("delete_creation",
		mcp.WithDescription("Delete one of your own creations."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Creation id")),
	), s.deleteCreation)

	s.mcp.AddTool(mcp.NewTool("export_creation",
		mcp.WithDescription("Save a creation to the configured export destination."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Creation id")),
		mcp.WithString("filename", mcp.Description("Optional file name")),
		scopeArg,
	), s.exportCreation)

	s.mcp.AddTool(mcp.NewTool("generate_article",
		mcp.WithDescription("Write an article. Read "+guideURI+" for accepted lengths."),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Article topic")),
		mcp.WithNumber("length", mcp.Description("800, 1200 or 1600 words (default 800)")),
	), s.generateArticle)

	s.mcp.AddTool(mcp.NewTool("generate_blog_titles",
		mcp.WithDescription("Suggest blog titles for a keyword in a category."),
		mcp.WithString("keyword", mcp.Required(), mcp.Description("Keyword or topic")),
		mcp.WithString("category", mcp.Enum(generate.Categories...), mcp.Description("Category (default General)")),
	), s.generateBlogTitles)

	s.mcp.AddTool(mcp.NewTool("generate_image",
		mcp.WithDescription("Generate an image from a description."),
		mcp.WithString("description", mcp.Required(), mcp.Description("What the image shows")),
		mcp.WithString("style", mcp.Enum(generate.Styles...), mcp.Description("Style (default Realistic)")),
		mcp.WithBoolean("publish", mcp.Description("Share the image with the community")),
	), s.generateImage)

	s.mcp.AddTool(mcp.NewTool("upload_image",
		mcp.WithDescription("Edit an image given as an http(s) URL or base64 data URI: remove its background or erase one object."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Image URL or data URI")),
		mcp.WithString("operation", mcp.Required(), mcp.Enum("remove-background", "remove-object")),
		mcp.WithString("object", mcp.Description("Single-word object name for remove-object")),
	), s.uploadImage)

	s.mcp.AddResource(
		mcp.NewResource(guideURI, "Generation Guide",
			mcp.WithResourceDescription("Accepted lengths, categories and styles for generation tools."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) view(req mcp.CallToolRequest) (*collection.Controller, error) {
	sc, err := remote.ParseScope(req.GetString("scope", ""))
	if err != nil {
		return nil, err
	}
	v, ok := s.views[sc]
	if !ok {
		return nil, fmt.Errorf("view %q is not mounted", sc)
	}
	return v, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(apperr.UserMessage(err))
}

func (s *Server) listCreations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, err := s.view(req)
	if err != nil {
		return errorResult(err), nil
	}
	f, err := models.ParseFilter(req.GetString("filter", ""))
	if err != nil {
		return errorResult(err), nil
	}
	if f != v.View().Filter {
		v.SetFilter(f)
	}
	if page := req.GetInt("page", 0); page > 0 {
		if err := v.SetPage(page); err != nil {
			return errorResult(err), nil
		}
	}

	view := v.View()
	res := pageResult{
		Scope:      view.Scope,
		Filter:     view.Filter,
		Page:       view.Page.Page,
		TotalPages: view.Page.TotalPages,
		Filtered:   view.Page.FilteredCount,
		Stale:      view.Stale,
		Items:      make([]creationSummary, 0, len(view.Page.Items)),
	}
	for _, a := range view.Page.Items {
		p := content.Describe(a)
		res.Items = append(res.Items, creationSummary{
			ID:        a.ID,
			Kind:      a.Kind,
			Title:     p.Title,
			Excerpt:   p.Excerpt,
			Likes:     a.LikedBy.Len(),
			Liked:     a.LikedByUser(v.UserID()),
			Published: a.Published,
			CreatedAt: a.CreatedAt,
		})
	}
	return jsonResult(res), nil
}

func (s *Server) readCreation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.view(req)
	if err != nil {
		return errorResult(err), nil
	}
	a, err := v.Store().Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return mcp.NewToolResultText(a.Content), nil
}

func (s *Server) searchCreations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.view(req)
	if err != nil {
		return errorResult(err), nil
	}
	results, err := v.Search(query, 20)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) toggleLike(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.view(req)
	if err != nil {
		return errorResult(err), nil
	}
	p, err := v.ToggleLike(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	if err := settle(ctx, p); err != nil {
		return errorResult(err), nil
	}
	a, err := v.Store().Get(id)
	if err != nil {
		return errorResult(err), nil
	}
	if a.LikedByUser(v.UserID()) {
		return mcp.NewToolResultText(fmt.Sprintf("liked: %s (%d likes)", id, a.LikedBy.Len())), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("unliked: %s (%d likes)", id, a.LikedBy.Len())), nil
}

func (s *Server) deleteCreation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, ok := s.views[remote.ScopeOwn]
	if !ok {
		return mcp.NewToolResultError("own creations are not mounted"), nil
	}
	p, err := v.Delete(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	if err := settle(ctx, p); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) exportCreation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.view(req)
	if err != nil {
		return errorResult(err), nil
	}
	receipt, err := v.ExportAs(ctx, id, req.GetString("filename", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(receipt), nil
}

func (s *Server) generateArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic, err := req.RequireString("topic")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.runGenerate(ctx, generate.Article{Topic: topic, Words: req.GetInt("length", generate.Lengths[0].Words)})
}

func (s *Server) generateBlogTitles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keyword, err := req.RequireString("keyword")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.runGenerate(ctx, generate.BlogTitle{Keyword: keyword, Category: req.GetString("category", generate.Categories[0])})
}

func (s *Server) generateImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	desc, err := req.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.runGenerate(ctx, generate.Image{
		Description: desc,
		Style:       req.GetString("style", generate.Styles[0]),
		Publish:     req.GetBool("publish", false),
	})
}

func (s *Server) runGenerate(ctx context.Context, gen generate.Request) (*mcp.CallToolResult, error) {
	v, ok := s.views[remote.ScopeOwn]
	if !ok {
		return mcp.NewToolResultError("own creations are not mounted"), nil
	}
	out, err := v.Generate(ctx, gen)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) readGuideResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideURI,
			MIMEType: "text/markdown",
			Text:     GenerationGuide(),
		},
	}, nil
}

func settle(ctx context.Context, p *mutation.Pending) error {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	return p.Wait(ctx)
}
