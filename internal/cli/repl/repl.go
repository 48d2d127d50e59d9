package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"fuzdispatch/internal/cli/command"
	httpclient "fuzdispatch/internal/cli/http"
	"fuzdispatch/internal/cli/state"
	pkgerrors "fuzdispatch/pkg/errors"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const defaultPrompt = "judgectl> "

// LineReader is the part of readline.Instance the session needs.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	state      *state.SessionState
	statePath  string
	prettyJSON bool
	out        io.Writer
	rnd        *rand.Rand
}

func New(client *httpclient.Client, commands map[string]command.Command, st *state.SessionState, statePath string, prettyJSON bool, out io.Writer) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		state:      st,
		statePath:  statePath,
		prettyJSON: prettyJSON,
		out:        out,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewReadline opens a line editor with history and command completion.
func NewReadline(historyFile string) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          defaultPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("submit"),
		readline.PcItem("verdict"),
		readline.PcItem("pending"),
		readline.PcItem("simulate"),
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("timeout")),
		readline.PcItem("show", readline.PcItem("config"), readline.PcItem("last")),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

// Run reads lines until exit, EOF or an interrupt on an empty line.
func (s *Session) Run(ctx context.Context, in LineReader) {
	for {
		in.SetPrompt(defaultPrompt)
		line, err := in.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if strings.TrimSpace(line) == "" {
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.printLine("read input failed: %v", err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if s.Exec(ctx, in, line) {
			return
		}
	}
}

// Exec runs one input line and reports whether the session should end.
func (s *Session) Exec(ctx context.Context, in LineReader, line string) bool {
	if quit, handled := s.handleSystemCommand(line); handled {
		return quit
	}
	if err := s.handleCommand(ctx, in, line); err != nil {
		s.printLine("error: %v", err)
	}
	return false
}

func (s *Session) handleSystemCommand(line string) (bool, bool) {
	switch line {
	case "exit", "quit":
		s.printLine("bye")
		return true, true
	case "help":
		s.printHelp()
		return false, true
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return false, true
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return false, true
	}
	return false, false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|timeout")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8090")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 10s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "last":
		if s.state.LastSubmissionID == "" {
			s.printLine("last submission: <none>")
			return
		}
		s.printLine("last submission: %s (job %s)", s.state.LastSubmissionID, s.state.LastJobID)
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("statePath: %s", s.statePath)
	default:
		s.printLine("usage: show last|config")
	}
}

func (s *Session) handleCommand(ctx context.Context, in LineReader, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	if tokens[0] == "simulate" {
		params, err := command.ParseParams(tokens[1:])
		if err != nil {
			return err
		}
		return s.simulate(ctx, params)
	}
	if _, ok := s.commands["judge "+tokens[0]]; ok {
		tokens = append([]string{"judge"}, tokens...)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <action> key=value ...")
	}
	key := fmt.Sprintf("%s %s", tokens[0], tokens[1])
	cmd, ok := s.commands[key]
	if !ok {
		return fmt.Errorf("unknown command: %s", key)
	}
	params, err := command.ParseParams(tokens[2:])
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)
	s.applyParamShortcuts(cmd, params)
	if err := s.promptMissing(in, cmd, params); err != nil {
		return err
	}
	return s.send(ctx, cmd, params)
}

func (s *Session) send(ctx context.Context, cmd command.Command, params command.Params) error {
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	s.rememberSubmission(cmd, resp)
	return nil
}

// applyParamShortcuts lets "verdict" without an id refer to the last submission.
func (s *Session) applyParamShortcuts(cmd command.Command, params command.Params) {
	if cmd.Service == "judge" && cmd.Action == "verdict" && params.Get("id") == "" && s.state.LastSubmissionID != "" {
		params.Set("id", s.state.LastSubmissionID)
	}
}

func (s *Session) promptMissing(in LineReader, cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required {
			continue
		}
		if params.Get(field.Name) != "" {
			continue
		}
		value, err := s.promptValue(in, field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(in LineReader, prompt string) (string, error) {
	in.SetPrompt(prompt + ": ")
	line, err := in.Readline()
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// simulate plays the fake upstream: count submissions against random
// problems, each carrying a stub source, spaced by interval.
func (s *Session) simulate(ctx context.Context, params command.Params) error {
	count := 1
	if raw := params.Get("count"); raw != "" {
		n, err := command.ParseInt(raw)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid count: %s", raw)
		}
		count = n
	}
	var interval time.Duration
	if raw := params.Get("interval"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid interval: %w", err)
		}
		interval = d
	}

	cmd := s.commands["judge submit"]
	for i := 0; i < count; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
		sub := command.SimulatedSubmission(s.rnd)
		s.printLine("creating job problem_id=%s", sub.Get("problem_id"))
		if err := s.send(ctx, cmd, sub); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) rememberSubmission(cmd command.Command, resp httpclient.ResponseInfo) {
	if cmd.Service != "judge" || cmd.Action != "submit" {
		return
	}
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return
	}
	type submitData struct {
		JobID        string `json:"job_id"`
		SubmissionID string `json:"submission_id"`
	}
	type respEnvelope struct {
		Code int        `json:"code"`
		Data submitData `json:"data"`
	}
	var env respEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return
	}
	if env.Code != int(pkgerrors.Success) || env.Data.SubmissionID == "" {
		return
	}
	s.state.LastSubmissionID = env.Data.SubmissionID
	s.state.LastJobID = env.Data.JobID
	s.state.SubmittedAt = time.Now()
	if s.statePath != "" {
		if err := state.Save(s.statePath, *s.state); err != nil {
			s.printLine("save session state failed: %v", err)
		}
	}
}

func (s *Session) printHelp() {
	s.printLine("usage: <action> key=value ...")
	s.printLine("actions: submit | verdict | pending | simulate")
	s.printLine("system: help | exit | set base|timeout | show last|config")
	s.printLine("examples:")
	s.printLine("  submit problem_id=1 source_file=./main.cpp")
	s.printLine("  verdict id=3f2a...")
	s.printLine("  simulate count=5 interval=5s")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
