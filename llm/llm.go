// Package llm is the chat assistant client: a thin wrapper over a hosted
// chat-completions endpoint that answers astrology questions in the persona
// of the 幸运星 astrologer, personalized with the consulting profile's chart
// data. Generation itself happens server-side at the provider.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/luckystar-app/luckystar/store"
)

var ErrGenerationFailed = errors.New("generation failed")

// historyWindow caps how much prior conversation is sent with each request.
const historyWindow = 10

// Message is one turn of prior conversation. Role is "user" or "model".
type Message struct {
	Role    string
	Content string
}

// Assistant generates astrologer replies.
type Assistant interface {
	Ask(ctx context.Context, prompt string, profile *store.Profile, history []Message) (string, error)
	AskStream(ctx context.Context, prompt string, profile *store.Profile, history []Message, onChunk func(string)) error
}

func systemPrompt(profile *store.Profile) string {
	nickname, sun, moon, asc := "游客", "未知", "未知", "未知"
	birthDate, birthTime, birthLocation := "未知", "未知", "未知"
	if profile != nil {
		if profile.Nickname != "" {
			nickname = profile.Nickname
		}
		if profile.SunSign != "" {
			sun = profile.SunSign
		}
		if profile.MoonSign != "" {
			moon = profile.MoonSign
		}
		if profile.AscendantSign != "" {
			asc = profile.AscendantSign
		}
		if profile.BirthInfo.BirthDate != "" {
			birthDate = profile.BirthInfo.BirthDate
		}
		if profile.BirthInfo.BirthTime != "" {
			birthTime = profile.BirthInfo.BirthTime
		}
		if profile.BirthInfo.BirthLocation != "" {
			birthLocation = profile.BirthInfo.BirthLocation
		}
	}
	return fmt.Sprintf(`你是一个名叫"幸运星"的专业占星师AI。

当前咨询者的详细档案：
- 姓名：%s
- 太阳星座：%s
- 月亮星座：%s
- 上升星座：%s
- 出生日期：%s
- 出生时间：%s
- 出生地点：%s

你的任务准则：
1. **高度个性化**：你的每一条建议都必须建立在上述星盘数据之上。如果是%s，请结合其核心特质；如果是%s，请分析其外在表现。
2. **专业术语**：在回复中适当提及宫位、相位和行星运行（如水逆、土星回归等），并将其转化为易懂的生活建议。
3. **慈悲与睿智**：语气应当温暖且富有启发性，给用户带来正向引导。
4. **严格限制**：不预测具体生老病死，不预测具体股票涨跌，不进行迷信恐吓。
5. **Markdown格式**：多用加粗、分级标题和列表。适当加入 🌟 🪐 ✨ 等 Emoji。`,
		nickname, sun, moon, asc, birthDate, birthTime, birthLocation, sun, asc)
}

// ChatCompletions talks to any OpenAI-compatible chat-completions endpoint
// (including Gemini's compatibility surface, configured via base URL).
type ChatCompletions struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// ChatCompletionsConfig configures the client. Zero values fall back to the
// provider defaults (API key from the environment, GPT-4o-mini).
type ChatCompletionsConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// NewChatCompletions builds the OpenAI-compatible assistant.
func NewChatCompletions(cfg ChatCompletionsConfig) *ChatCompletions {
	var opts []option.RequestOption
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &ChatCompletions{
		client: openai.NewClient(opts...),
		model:  model,
		logger: slog.With("component", "llm"),
	}
}

func (c *ChatCompletions) params(prompt string, profile *store.Profile, history []Message) openai.ChatCompletionNewParams {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(systemPrompt(profile)))
	for _, m := range history {
		if m.Role == "user" {
			messages = append(messages, openai.UserMessage(m.Content))
		} else {
			messages = append(messages, openai.AssistantMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(prompt))

	return openai.ChatCompletionNewParams{
		Messages:    openai.F(messages),
		Model:       openai.String(c.model),
		Temperature: openai.Float(0.7),
		TopP:        openai.Float(0.9),
	}
}

func (c *ChatCompletions) Ask(ctx context.Context, prompt string, profile *store.Profile, history []Message) (string, error) {
	res, err := c.client.Chat.Completions.New(ctx, c.params(prompt, profile, history))
	if err != nil {
		c.logger.Error("chat completion failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrGenerationFailed)
	}
	return res.Choices[0].Message.Content, nil
}

func (c *ChatCompletions) AskStream(ctx context.Context, prompt string, profile *store.Profile, history []Message, onChunk func(string)) error {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(prompt, profile, history))
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onChunk(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		c.logger.Error("chat completion stream failed", "error", err)
		return fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return nil
}
