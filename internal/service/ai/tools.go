package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"medoai/internal/logger"
)

const webSearchHTTPTimeout = 10 * time.Second

// InitToolsChain returns the tools the chat agent may call.
func InitToolsChain(ctx context.Context, log *logger.Logger) []tool.BaseTool {
	var tools []tool.BaseTool
	if ws := initWebSearch(ctx, log); ws != nil {
		tools = append(tools, ws)
	}
	return tools
}

func initWebSearch(ctx context.Context, log *logger.Logger) tool.InvokableTool {
	googleTool := initGoogleSearch(ctx, log)
	duckTool := initDDGSearch(ctx, log)
	if googleTool == nil && duckTool == nil {
		log.Warn("web search tool disabled: no search providers available")
		return nil
	}

	ws := &webSearchTool{
		google:     googleTool,
		duck:       duckTool,
		httpClient: &http.Client{Timeout: webSearchHTTPTimeout},
		log:        log,
	}
	info := &schema.ToolInfo{
		Name: "web_search",
		Desc: "Search the web for study material, definitions or worked examples. " +
			"Accepts a natural language query or a URL to read.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Natural language query or URL",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, ws.run)
}

type webSearchTool struct {
	google     tool.InvokableTool
	duck       tool.InvokableTool
	httpClient *http.Client
	log        *logger.Logger
}

type webSearchParams struct {
	Query string `json:"query"`
}

func (w *webSearchTool) run(ctx context.Context, params *webSearchParams) (string, error) {
	if params == nil {
		return "", errors.New("missing search parameters")
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}

	if looksLikeURL(query) {
		content, err := w.fetchURL(ctx, query)
		if err == nil {
			return content, nil
		}
		w.log.Warn("web url fetch failed", "url", query, "error", err)
	}

	payloadBytes, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	payload := string(payloadBytes)

	// google first, duckduckgo as fallback
	for name, provider := range map[string]tool.InvokableTool{"google": w.google, "duckduckgo": w.duck} {
		if provider == nil {
			continue
		}
		result, err := provider.InvokableRun(ctx, payload)
		if err == nil {
			return result, nil
		}
		w.log.Warn("search provider failed", "provider", name, "error", err)
	}
	return "", errors.New("no search provider succeeded")
}

func (w *webSearchTool) fetchURL(ctx context.Context, target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("unsupported url scheme")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "MedoAi-WebSearch/1.0")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch url: %s", resp.Status)
	}
	const maxBodySize = 512 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func looksLikeURL(input string) bool {
	lower := strings.ToLower(input)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func initDDGSearch(ctx context.Context, log *logger.Logger) tool.InvokableTool {
	duckTool, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    webSearchHTTPTimeout,
	})
	if err != nil {
		log.Warn("duckduckgo search disabled", "error", err)
		return nil
	}
	return duckTool
}

func initGoogleSearch(ctx context.Context, log *logger.Logger) tool.InvokableTool {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	engineID := os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
	if apiKey == "" || engineID == "" {
		log.Info("google search disabled: missing GOOGLE_API_KEY or GOOGLE_SEARCH_ENGINE_ID")
		return nil
	}
	googleTool, err := googlesearch.NewTool(ctx, &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         apiKey,
		SearchEngineID: engineID,
		Lang:           "ar",
		Num:            5,
	})
	if err != nil {
		log.Warn("google search disabled", "error", err)
		return nil
	}
	return googleTool
}
