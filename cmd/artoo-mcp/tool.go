package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/michaelbrown/artoo/internal/dispatch"
	"github.com/michaelbrown/artoo/internal/sandbox"
)

// maxToolOutput bounds the text handed back to the client.
const maxToolOutput = 4000

func runCodeTool(interpreters []string) mcp.Tool {
	return mcp.Tool{
		Name: "run_code",
		Description: fmt.Sprintf("Execute code in the Artoo sandbox with a hard timeout. Interpreters: %s.",
			strings.Join(interpreters, ", ")),
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"interpreter": map[string]any{
					"type":        "string",
					"description": "Interpreter to run the code with",
					"enum":        interpreters,
				},
				"code": map[string]any{
					"type":        "string",
					"description": "Source code to execute",
				},
			},
			Required: []string{"interpreter", "code"},
		},
	}
}

type runCode struct {
	exec         dispatch.Executor
	interpreters []string
}

func newRunCode(exec dispatch.Executor, interpreters []string) *runCode {
	return &runCode{exec: exec, interpreters: interpreters}
}

func (h *runCode) handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errResult("error: invalid arguments"), nil
	}

	interpreter, _ := args["interpreter"].(string)
	code, _ := args["code"].(string)
	if interpreter == "" || code == "" {
		return errResult("error: 'interpreter' and 'code' are required"), nil
	}
	if !slices.Contains(h.interpreters, interpreter) {
		return errResult(fmt.Sprintf("error: unknown interpreter %q", interpreter)), nil
	}

	res, err := h.exec.Execute(ctx, interpreter, code)
	if errors.Is(err, sandbox.ErrSpawn) {
		return errResult(fmt.Sprintf("error: could not start the %s interpreter", interpreter)), nil
	}
	if err != nil {
		return nil, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: formatResult(res)}},
		IsError: res.Status.TimedOut() || res.Status.ExitCode() != 0,
	}, nil
}

func formatResult(res sandbox.Result) string {
	var out strings.Builder
	out.WriteString(res.Stdout)
	if res.Stderr != "" {
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString("STDERR:\n" + res.Stderr)
	}
	switch {
	case res.Status.TimedOut():
		fmt.Fprintf(&out, "\nhalted after %s seconds", res.Status.Seconds())
	case res.Status.ExitCode() != 0:
		fmt.Fprintf(&out, "\nexit code: %d", res.Status.ExitCode())
	}

	text := out.String()
	if len(text) > maxToolOutput {
		cut := maxToolOutput
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "\n... (output truncated)"
	}
	return text
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
