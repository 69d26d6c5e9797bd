package casefile

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/casefile/pkg/domain"
)

// Runner drives one call from line input, standing in for the conversational
// layer. Each line is a tool name followed by key=value arguments, e.g.
//
//	confirm_identity confirmed=true
//	submit_spelled_email email="fox at example dot com"
//
// "state" prints the call context and "hangup", "exit" or EOF end the call.
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Headless bool
	Renderer ContentRenderer
}

// ContentRenderer transforms a prompt before it is written, e.g. markdown to ANSI.
type ContentRenderer func(string) (string, error)

// NewRunner creates a Runner. Input and Output must be set before Run.
func NewRunner() *Runner {
	return &Runner{}
}

func (r *Runner) say(msg string) {
	if msg == "" {
		return
	}
	out := msg
	if r.Renderer != nil {
		if rendered, err := r.Renderer(msg); err == nil {
			out = rendered
		}
	}
	fmt.Fprintln(r.Output, strings.TrimSpace(out))
}

// Run starts the call, reads tool invocations until the call ends and
// returns the post-call payload.
func (r *Runner) Run(ctx context.Context, app *App, callID, ani string) (domain.PostCallPayload, error) {
	if r.Input == nil {
		return domain.PostCallPayload{}, fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return domain.PostCallPayload{}, fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	lines := bufio.NewReader(r.Input)

	start, err := app.Engine.StartCall(ctx, callID, ani)
	if err != nil {
		return domain.PostCallPayload{}, err
	}
	if !r.Headless {
		fmt.Fprintf(r.Output, "--- casefile call %s from %s (%s) ---\n", callID, ani, start.File.RecordSource)
	}
	r.say(start.Greeting)

	step := start.Step
	for step != domain.StepWrapUp {
		if !r.Headless {
			fmt.Fprintf(r.Output, "[%s] > ", step)
		}
		text, err := lines.ReadString('\n')
		if err != nil && err != io.EOF {
			return domain.PostCallPayload{}, fmt.Errorf("input error: %w", err)
		}
		input := strings.TrimSpace(text)

		if input == "" {
			if err == io.EOF {
				break
			}
			continue
		}
		if input == "hangup" || input == "exit" || input == "quit" {
			break
		}
		if input == "state" {
			cur, err := app.Engine.Get(ctx, callID)
			if err != nil {
				return domain.PostCallPayload{}, err
			}
			data, _ := json.MarshalIndent(cur, "", "  ")
			fmt.Fprintln(r.Output, string(data))
			continue
		}

		tool, args, perr := ParseInvocation(input)
		if perr != nil {
			fmt.Fprintln(r.Output, "error:", perr)
			continue
		}
		res, ierr := app.Engine.Invoke(ctx, callID, tool, args)
		if ierr != nil {
			fmt.Fprintln(r.Output, "error:", ierr)
			continue
		}
		r.say(res.Message)
		r.say(res.Readback)
		step = res.Step

		if err == io.EOF {
			break
		}
	}

	return app.Engine.Hangup(ctx, callID)
}

// ParseInvocation splits "tool key=value key2=\"two words\"" into a tool and
// its arguments.
func ParseInvocation(line string) (domain.Tool, map[string]any, error) {
	fields, err := splitQuoted(line)
	if err != nil {
		return "", nil, err
	}
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("empty invocation")
	}
	tool, err := domain.ParseTool(fields[0])
	if err != nil {
		return "", nil, err
	}
	args := make(map[string]any, len(fields)-1)
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return "", nil, fmt.Errorf("argument %q is not key=value", f)
		}
		args[k] = v
	}
	return tool, args, nil
}

func splitQuoted(s string) ([]string, error) {
	var (
		out    []string
		cur    strings.Builder
		quoted bool
		inWord bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			inWord = true
		case r == ' ' && !quoted:
			if inWord {
				out = append(out, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quoted {
		return nil, fmt.Errorf("unterminated quote")
	}
	if inWord {
		out = append(out, cur.String())
	}
	return out, nil
}
