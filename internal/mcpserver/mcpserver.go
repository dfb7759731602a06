// Package mcpserver exposes the command registry over the Model Context
// Protocol. Every template is published as a prompt, and tools let a client
// list, bind and run commands.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/CR94168/learn-claude-code-cli/internal/approval"
	"github.com/CR94168/learn-claude-code-cli/internal/binder"
	"github.com/CR94168/learn-claude-code-cli/internal/dispatch"
	"github.com/CR94168/learn-claude-code-cli/internal/event"
	"github.com/CR94168/learn-claude-code-cli/internal/logging"
	"github.com/CR94168/learn-claude-code-cli/internal/template"
)

// Name and Version identify the server to clients.
const (
	Name    = "dispatch"
	Version = "0.1.0"
)

// Server wraps an MCP server bound to a dispatch service.
type Server struct {
	mcp *server.MCPServer
	svc *dispatch.Service

	mu          sync.Mutex
	prompts     []string
	unsubscribe func()
}

// New creates the MCP server and registers the current templates. Prompts
// follow registry reloads.
func New(svc *dispatch.Service) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			Name,
			Version,
			server.WithToolCapabilities(true),
			server.WithPromptCapabilities(true),
		),
		svc: svc,
	}

	s.mcp.AddTool(mcp.NewTool("list_commands",
		mcp.WithDescription("Lists the available command templates"),
	), s.listCommands)

	s.mcp.AddTool(mcp.NewTool("bind_command",
		mcp.WithDescription("Binds arguments to a command template and returns the instruction text"),
		commandParam(),
		inputParam(),
		argsParam(),
	), s.bindCommand)

	s.mcp.AddTool(mcp.NewTool("start_run",
		mcp.WithDescription("Starts a run of a command and returns the drafted plan awaiting approval"),
		commandParam(),
		inputParam(),
		argsParam(),
	), s.startRun)

	s.mcp.AddTool(mcp.NewTool("signal_run",
		mcp.WithDescription("Sends an approval signal to a run awaiting approval"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run identifier")),
		mcp.WithString("signal",
			mcp.Required(),
			mcp.Description("approve, approve <task ids>, iterate <feedback>, or cancel"),
		),
	), s.signalRun)

	s.mcp.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Returns the current state of a run"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run identifier")),
	), s.getRun)

	s.SyncPrompts()
	s.unsubscribe = svc.Bus().Subscribe(event.RegistryReloaded, func(event.Event) {
		s.SyncPrompts()
	})
	return s
}

func commandParam() mcp.ToolOption {
	return mcp.WithString("command", mcp.Required(), mcp.Description("Command name"))
}

func inputParam() mcp.ToolOption {
	return mcp.WithString("input", mcp.Description("Free-text arguments, split shell-style for positional placeholders"))
}

func argsParam() mcp.ToolOption {
	return mcp.WithArray("args",
		mcp.Description("Positional arguments; overrides input for positional placeholders"),
		mcp.Items(map[string]any{
			"type": "string",
		}),
	)
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves the protocol over a reader and writer until ctx ends or
// the input closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	logger := logging.Component("mcp")
	stdio.SetErrorLogger(log.New(logger, "", 0))
	return stdio.Listen(ctx, in, out)
}

// Close stops following registry reloads.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// SyncPrompts replaces the published prompts with the current templates.
func (s *Server) SyncPrompts() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.prompts) > 0 {
		s.mcp.DeletePrompts(s.prompts...)
	}
	s.prompts = s.prompts[:0]

	for _, tmpl := range s.svc.Commands() {
		s.mcp.AddPrompt(promptFor(tmpl), s.promptHandler(tmpl.Name))
		s.prompts = append(s.prompts, tmpl.Name)
	}
}

func promptFor(tmpl *template.Template) mcp.Prompt {
	desc := tmpl.Description
	if desc == "" {
		desc = "Run the " + tmpl.Name + " command"
	}
	argDesc := "Command arguments"
	if tmpl.ArgumentHint != "" {
		argDesc = tmpl.ArgumentHint
	}
	opts := []mcp.PromptOption{
		mcp.WithPromptDescription(desc),
	}
	if tmpl.Usage.Positional() {
		opts = append(opts, mcp.WithArgument("args", mcp.ArgumentDescription(argDesc), mcp.RequiredArgument()))
	} else {
		opts = append(opts, mcp.WithArgument("args", mcp.ArgumentDescription(argDesc)))
	}
	return mcp.NewPrompt(tmpl.Name, opts...)
}

// promptHandler looks the template up again on every call so a reload is
// picked up even before prompts are re-synced.
func (s *Server) promptHandler(name string) server.PromptHandlerFunc {
	return func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		tmpl, inst, err := s.svc.Bind(binder.Request{
			Command: name,
			Input:   request.Params.Arguments["args"],
		})
		if err != nil {
			return nil, err
		}
		return mcp.NewGetPromptResult(tmpl.Description, []mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(inst.Text)),
		}), nil
	}
}

func (s *Server) listCommands(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type entry struct {
		Name         string `json:"name"`
		Description  string `json:"description,omitempty"`
		ArgumentHint string `json:"argumentHint,omitempty"`
		Arity        int    `json:"arity"`
	}
	cmds := s.svc.Commands()
	list := make([]entry, 0, len(cmds))
	for _, t := range cmds {
		list = append(list, entry{
			Name:         t.Name,
			Description:  t.Description,
			ArgumentHint: t.ArgumentHint,
			Arity:        t.Usage.Arity(),
		})
	}
	return jsonResult(list)
}

func (s *Server) bindCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := bindRequest(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	_, inst, err := s.svc.Bind(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(inst.Text), nil
}

func (s *Server) startRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := bindRequest(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	run, err := s.svc.Start(context.WithoutCancel(ctx), req)
	if err != nil && run == nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(run.Snapshot())
}

func (s *Server) signalRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	line, err := request.RequireString("signal")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sig, err := approval.ParseSignal(line)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid signal: %v", err)), nil
	}
	if err := s.svc.Signal(context.WithoutCancel(ctx), id, sig); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap, err := s.svc.Snapshot(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(snap)
}

func (s *Server) getRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap, err := s.svc.Snapshot(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(snap)
}

func bindRequest(request mcp.CallToolRequest) (binder.Request, error) {
	command, err := request.RequireString("command")
	if err != nil {
		return binder.Request{}, err
	}
	req := binder.Request{
		Command: command,
		Input:   request.GetString("input", ""),
	}
	if raw, ok := request.GetArguments()["args"]; ok {
		args, err := toStringSlice(raw)
		if err != nil {
			return binder.Request{}, fmt.Errorf("invalid args: %w", err)
		}
		req.Args = args
	}
	return req, nil
}

// toStringSlice converts a decoded JSON array to []string.
func toStringSlice(v any) ([]string, error) {
	switch arr := v.(type) {
	case []string:
		return arr, nil
	case []any:
		out := make([]string, len(arr))
		for i, elem := range arr {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is not a string: %T", i, elem)
			}
			out[i] = s
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("expected array, got %T", v)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
