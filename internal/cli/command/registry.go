package command

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

const (
	// SimulatedSource is the body of every simulated submission.
	SimulatedSource = "print('Hello world')"
	// SimulatedProblems bounds the problem ids simulated submissions target.
	SimulatedProblems = 2
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "judge",
			Action:       "submit",
			Method:       "POST",
			PathTemplate: "/api/v1/judge/submissions",
			Fields: []Field{
				{Name: "problem_id", Aliases: []string{"problem", "pid"}, Prompt: "problem_id", Type: FieldString, Required: true},
				{Name: "submission_id", Aliases: []string{"sid"}, Prompt: "submission_id", Type: FieldString},
				{Name: "source_code", Aliases: []string{"code"}, Prompt: "source_code", Type: FieldString},
				{Name: "source_file", Aliases: []string{"file", "src"}, Prompt: "source_file", Type: FieldFile},
			},
		},
		{
			Service:      "judge",
			Action:       "verdict",
			Method:       "GET",
			PathTemplate: "/api/v1/judge/submissions/:id",
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id", "sid"}, Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "judge",
			Action:       "pending",
			Method:       "GET",
			PathTemplate: "/api/v1/judge/queue",
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: map[string]string{},
		Body:    body,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	for _, key := range []string{"id"} {
		placeholder := ":" + key
		if strings.Contains(path, placeholder) {
			value := params.Get(key)
			if value == "" {
				return "", fmt.Errorf("missing path parameter: %s", key)
			}
			path = strings.ReplaceAll(path, placeholder, value)
		}
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	if cmd.Service == "judge" && cmd.Action == "submit" {
		return buildSubmitPayload(params)
	}
	return nil, nil
}

func buildSubmitPayload(params Params) (interface{}, error) {
	problemID := strings.TrimSpace(params.Get("problem_id"))
	if problemID == "" {
		return nil, fmt.Errorf("problem_id is required")
	}

	sourceCode := params.Get("source_code")
	if sourceCode == "" && params.Get("source_file") != "" {
		var err error
		sourceCode, err = ReadFile(params.Get("source_file"))
		if err != nil {
			return nil, err
		}
	}

	payload := map[string]interface{}{
		"problem_id": problemID,
	}
	if id := strings.TrimSpace(params.Get("submission_id")); id != "" {
		payload["submission_id"] = id
	}
	if sourceCode != "" {
		payload["source"] = sourceCode
	}
	return payload, nil
}

// SimulatedSubmission returns submit params for one fake upstream
// submission: a random problem in [1, SimulatedProblems] with a stub source.
func SimulatedSubmission(rnd *rand.Rand) Params {
	params := Params{}
	params.Set("problem_id", strconv.Itoa(rnd.Intn(SimulatedProblems)+1))
	params.Set("source_code", SimulatedSource)
	return params
}
