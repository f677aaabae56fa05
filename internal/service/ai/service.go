package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"medoai/internal/config"
	"medoai/internal/logger"
)

// CompletionRequest is one call to the hosted model.
type CompletionRequest struct {
	// Instruction is the fully rendered prompt.
	Instruction string
	Media       []Media
	// JSONShape describes the expected JSON object. Empty means free text.
	JSONShape string
	// AllowTools lets the call go through the tool-using agent when one is configured.
	AllowTools bool
}

// Completer sends a rendered request to the model and returns its raw text.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type einoCompleter struct {
	chatModel model.ToolCallingChatModel
	agent     *react.Agent
	log       *logger.Logger
}

// NewChatModel builds the eino chat model for a provider.
func NewChatModel(ctx context.Context, provider string, provCfg config.ProviderConfig, modelName string) (model.ToolCallingChatModel, error) {
	if modelName == "" {
		modelName = provCfg.Model
	}
	switch provider {
	case "openai":
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  provCfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 4096,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
}

// NewCompleter wires the configured provider, plus a web-search agent when enabled.
func NewCompleter(ctx context.Context, cfg *config.Config, log *logger.Logger) (Completer, error) {
	provCfg, ok := cfg.Providers[cfg.AI.Provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", cfg.AI.Provider)
	}
	chatModel, err := NewChatModel(ctx, cfg.AI.Provider, provCfg, cfg.AI.Model)
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	c := &einoCompleter{chatModel: chatModel, log: log.With("service", "ai.Completer", "provider", cfg.AI.Provider)}

	if cfg.AI.EnableWebSearch {
		if tools := InitToolsChain(ctx, c.log); len(tools) > 0 {
			c.agent, err = react.NewAgent(ctx, &react.AgentConfig{
				ToolCallingModel: chatModel,
				ToolsConfig: compose.ToolsNodeConfig{
					Tools: tools,
				},
			})
			if err != nil {
				return nil, fmt.Errorf("init react agent: %w", err)
			}
		}
	}
	return c, nil
}

func (c *einoCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if strings.TrimSpace(req.Instruction) == "" && len(req.Media) == 0 {
		return "", errors.New("empty completion request")
	}
	messages := buildMessages(req)

	var (
		out *schema.Message
		err error
	)
	if req.AllowTools && c.agent != nil {
		out, err = c.agent.Generate(ctx, messages)
	} else {
		out, err = c.chatModel.Generate(ctx, messages)
	}
	if err != nil {
		return "", fmt.Errorf("generate completion: %w", err)
	}
	if out == nil {
		return "", nil
	}
	c.log.Debug("completion finished", "chars", len(out.Content), "media", len(req.Media))
	return out.Content, nil
}

func buildMessages(req CompletionRequest) []*schema.Message {
	var messages []*schema.Message
	if req.JSONShape != "" {
		messages = append(messages, schema.SystemMessage(
			"Reply with a single JSON object and nothing else. The object must match this shape:\n"+req.JSONShape))
	}
	user := &schema.Message{Role: schema.User}
	if len(req.Media) == 0 {
		user.Content = req.Instruction
	} else {
		parts := make([]schema.ChatMessagePart, 0, len(req.Media)+1)
		if req.Instruction != "" {
			parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: req.Instruction})
		}
		for _, m := range req.Media {
			parts = append(parts, m.part())
		}
		user.MultiContent = parts
	}
	return append(messages, user)
}
