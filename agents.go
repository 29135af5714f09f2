package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

const agentName = "job_assistant"

// Analyzer sends a built prompt to the analysis service and returns the
// generated text. An empty string is a valid, non-error result.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string) (string, error)
}

var errMalformedResponse = errors.New("malformed response from analysis service")

func newGenaiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

// GeminiAnalyzer calls generateContent directly.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
}

func NewGeminiAnalyzer(client *genai.Client, model string) *GeminiAnalyzer {
	return &GeminiAnalyzer{client: client, model: model}
}

func (a *GeminiAnalyzer) Analyze(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil {
		return "", errMalformedResponse
	}
	return resp.Text(), nil
}

// VerifyCredentials makes one metadata call so a bad key fails at startup
// instead of on the first submission.
func VerifyCredentials(ctx context.Context, client *genai.Client, model string) error {
	if _, err := client.Models.Get(ctx, model, nil); err != nil {
		return fmt.Errorf("verify model %q: %w", model, err)
	}
	return nil
}

// AgentAnalyzer runs the prompt through an llmagent. Every call gets its own
// agent session, deleted once the final response arrives.
type AgentAnalyzer struct {
	runner   *runner.Runner
	sessions session.Service
	appName  string
}

func GetAgent(ctx context.Context, apiKey, modelName string) (agent.Agent, error) {
	model, err := gemini.NewModel(ctx, modelName, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %v", err)
	}

	customAgent, err := llmagent.New(llmagent.Config{
		Name:        agentName,
		Model:       model,
		Description: "Compare a resume against a job description",
		Instruction: agentInstruction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %v", err)
	}

	return customAgent, nil
}

func NewAgentAnalyzer(ctx context.Context, apiKey, modelName string) (*AgentAnalyzer, error) {
	analyzer, err := GetAgent(ctx, apiKey, modelName)
	if err != nil {
		return nil, err
	}

	inMemoryService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        analyzer.Name(),
		Agent:          analyzer,
		SessionService: inMemoryService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	return &AgentAnalyzer{
		runner:   r,
		sessions: inMemoryService,
		appName:  analyzer.Name(),
	}, nil
}

func (a *AgentAnalyzer) Analyze(ctx context.Context, prompt string) (string, error) {
	created, err := a.sessions.Create(ctx, &session.CreateRequest{
		AppName:   a.appName,
		UserID:    "assistant",
		SessionID: uuid.NewString(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create agent session: %w", err)
	}
	agentSession := created.Session
	defer func() {
		_ = a.sessions.Delete(context.WithoutCancel(ctx), &session.DeleteRequest{
			AppName:   agentSession.AppName(),
			UserID:    agentSession.UserID(),
			SessionID: agentSession.ID(),
		})
	}()

	stream := a.runner.Run(ctx, agentSession.UserID(), agentSession.ID(), &genai.Content{
		Role: "user",
		Parts: []*genai.Part{
			{Text: prompt},
		},
	}, agent.RunConfig{})

	var output string
	for event, err := range stream {
		if err != nil {
			return "", fmt.Errorf("agent stream: %w", err)
		}
		if event == nil || !event.IsFinalResponse() {
			continue
		}
		if event.Content == nil {
			return "", errMalformedResponse
		}
		if len(event.Content.Parts) > 0 {
			output = event.Content.Parts[0].Text
		}
	}
	return output, nil
}

// NewAnalyzer builds the analyzer selected by cfg.AnalyzerBackend.
func NewAnalyzer(ctx context.Context, cfg *Config, client *genai.Client) (Analyzer, error) {
	switch cfg.AnalyzerBackend {
	case "agent":
		return NewAgentAnalyzer(ctx, cfg.GoogleApiKey, cfg.Model)
	default:
		return NewGeminiAnalyzer(client, cfg.Model), nil
	}
}
