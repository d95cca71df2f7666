// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the notebook conversion and archive tools via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mlops-catalog/internal/archive"
	"github.com/starford/mlops-catalog/internal/converter"
	"github.com/starford/mlops-catalog/internal/models"
	"github.com/starford/mlops-catalog/internal/notebook"
	"github.com/starford/mlops-catalog/internal/workflow"
)

// Server wraps the MCP server with the notebook tools. All paths are
// resolved inside the workspace root.
type Server struct {
	mcp    *server.MCPServer
	root   string
	conv   *converter.Converter
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new MCP server rooted at workspace with all tools registered.
func New(workspace string, logger *slog.Logger) (*Server, error) {
	root, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: resolve workspace: %w", err)
	}
	s := &Server{root: root, logger: logger, now: time.Now}
	s.conv = converter.New(logger, converter.WithClock(func() time.Time { return s.now() }))

	s.mcp = server.NewMCPServer(
		"mlops-catalog",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("convert_notebook",
		mcp.WithDescription("Convert between .py scripts, .ipynb notebooks and .json notebooks. "+
			"Formats are taken from the file extensions. Converting a .json file to .ipynb "+
			"archives the .json source. Read the script format first via the "+
			"get_script_format tool or the mlops://script-format resource."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source path relative to the workspace (e.g. notebook_jsons/report.json)")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target path relative to the workspace (e.g. notebooks/report.ipynb)")),
	), s.convertNotebook)

	s.mcp.AddTool(mcp.NewTool("get_script_format",
		mcp.WithDescription("Returns the cell-marked script format used for .py conversions."),
	), s.getScriptFormat)

	s.mcp.AddTool(mcp.NewTool("list_archives",
		mcp.WithDescription("List archived JSON notebooks with their original stem and timestamp."),
	), s.listArchives)

	s.mcp.AddTool(mcp.NewTool("restore_archive",
		mcp.WithDescription("Copy an archived JSON notebook back to notebook_jsons/. The archive copy is kept."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Archived file name as returned by list_archives")),
	), s.restoreArchive)

	s.mcp.AddTool(mcp.NewTool("purge_archives",
		mcp.WithDescription("Delete archived JSON notebooks older than the retention window."),
		mcp.WithNumber("retention_days", mcp.Description("Retention window in days (default 30)")),
	), s.purgeArchives)

	s.mcp.AddTool(mcp.NewTool("roundtrip_diff",
		mcp.WithDescription("Show the line diff between a .py script and its script to notebook to script round trip. "+
			"An empty diff means the script converts losslessly."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Script path relative to the workspace")),
	), s.roundtripDiff)

	// Resource: script format contract.
	s.mcp.AddResource(
		mcp.NewResource("mlops://script-format", "Script Cell Format",
			mcp.WithResourceDescription("Cell-marked script format used when converting scripts and notebooks."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readScriptFormatResource,
	)

	return s, nil
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// resolve maps a workspace-relative path to an absolute one, rejecting
// paths that leave the workspace.
func (s *Server) resolve(rel string) (string, error) {
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path %q must be relative to the workspace", rel)
	}
	return filepath.Join(s.root, rel), nil
}

func (s *Server) archiveManager() (*archive.Manager, error) {
	return archive.NewManager(filepath.Join(s.root, workflow.JSONDirName), s.logger, archive.WithClock(s.now))
}

type convertResult struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Checksum    string `json:"checksum"`
	ArchivePath string `json:"archive_path,omitempty"`
	Warning     string `json:"warning,omitempty"`
}

func (s *Server) convertNotebook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	src, err := s.resolve(source)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dst, err := s.resolve(target)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.conv.Convert(src, dst)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := convertResult{
		Source:   s.rel(res.Source),
		Target:   s.rel(res.Target),
		Checksum: res.Checksum,
	}
	if res.ArchivePath != "" {
		out.ArchivePath = s.rel(res.ArchivePath)
	}
	if res.ArchiveErr != nil {
		out.Warning = res.ArchiveErr.Error()
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) rel(p string) string {
	r, err := filepath.Rel(s.root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(r)
}

func (s *Server) getScriptFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ScriptFormatContract), nil
}

func (s *Server) readScriptFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "mlops://script-format",
			MIMEType: "text/markdown",
			Text:     ScriptFormatContract,
		},
	}, nil
}

func (s *Server) listArchives(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mgr, err := s.archiveManager()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries := []models.ArchiveEntry{}
	for e := range mgr.Entries() {
		e.Path = s.rel(e.Path)
		entries = append(entries, e)
	}
	data, _ := json.MarshalIndent(entries, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) restoreArchive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mgr, err := s.archiveManager()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dst, err := mgr.Restore(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("restored: %s", s.rel(dst))), nil
}

func (s *Server) purgeArchives(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days := req.GetFloat("retention_days", archive.DefaultRetentionDays)
	mgr, err := s.archiveManager()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := mgr.Purge(int(days))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("deleted %d, errors: %v", n, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %d", n)), nil
}

func (s *Server) roundtripDiff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if filepath.Ext(path) != converter.ExtScript {
		return mcp.NewToolResultError(fmt.Sprintf("%s is not a %s script", path, converter.ExtScript)), nil
	}
	abs, err := s.resolve(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	back, err := notebook.RoundTrip(data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(notebook.LineDiff(string(data), string(back))), nil
}
