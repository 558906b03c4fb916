package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"datachat/internal/ai"
	"datachat/internal/executor"
	"datachat/internal/model"
	"datachat/internal/pkg/imageutil"
	"datachat/internal/pkg/tabular"
)

const emptyReply = "The model returned an empty response."

type Completer interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
	StreamComplete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error)
}

type CodeRunner interface {
	Run(ctx context.Context, req executor.RunRequest) (*executor.RunResult, error)
}

type ChatService struct {
	sessions    *SessionService
	messages    *MessageService
	artifacts   *ArtifactService
	llm         Completer
	runner      CodeRunner
	defaultLLM  ai.ChatConfig
	maxContext  int
	maxAttempts int
}

type ChatOptions struct {
	MaxContext  int
	MaxAttempts int
}

type SendMessageInput struct {
	UserID    string
	SessionID string
	Content   string
	LLM       LLMOverride
}

type VisionMessageInput struct {
	SendMessageInput
	Image   []byte
	AltText string
}

type AnalyzeInput struct {
	UserID    string
	SessionID string
	Question  string
	LLM       LLMOverride
}

type LLMRequestLog struct {
	BaseURL      string `json:"base_url"`
	Model        string `json:"model"`
	APIKeyMasked string `json:"api_key_masked"`
	PromptTurns  int    `json:"prompt_turns"`
}

type SendMessageResult struct {
	Messages   []model.Message `json:"messages"`
	LLMRequest LLMRequestLog   `json:"llm_request"`
}

type AnalyzeResult struct {
	Messages []model.Message `json:"messages"`
	Attempts int             `json:"attempts"`
}

type LLMOverride struct {
	BaseURL string
	APIKey  string
	Model   string
}

func NewChatService(
	sessions *SessionService,
	messages *MessageService,
	artifacts *ArtifactService,
	llm Completer,
	runner CodeRunner,
	defaultLLM ai.ChatConfig,
	opts ChatOptions,
) *ChatService {
	if opts.MaxContext <= 0 {
		opts.MaxContext = 20
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &ChatService{
		sessions:    sessions,
		messages:    messages,
		artifacts:   artifacts,
		llm:         llm,
		runner:      runner,
		defaultLLM:  defaultLLM,
		maxContext:  opts.MaxContext,
		maxAttempts: opts.MaxAttempts,
	}
}

// SendMessage stores the user turn, asks the model with the recent history as context and
// stores the reply.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	content, cfg, err := s.prepare(input)
	if err != nil {
		return nil, err
	}
	return s.exchange(ctx, input, cfg, ai.ChatSystemPrompt, content)
}

// SendVisionMessage is SendMessage with an image attached to the user turn.
func (s *ChatService) SendVisionMessage(ctx context.Context, input VisionMessageInput) (*SendMessageResult, error) {
	content, cfg, err := s.prepare(input.SendMessageInput)
	if err != nil && !errors.Is(err, ErrMessageEmpty) {
		return nil, err
	}
	if len(input.Image) == 0 {
		return nil, ErrInvalidInput
	}
	image, err := s.artifacts.BuildImageArtifact(ctx, input.Image, "uploaded image", input.AltText)
	if err != nil {
		return nil, err
	}
	if content == "" {
		content = "Describe this image."
	}
	return s.exchange(ctx, input.SendMessageInput, cfg, ai.VisionSystemPrompt, content, image)
}

func (s *ChatService) prepare(input SendMessageInput) (string, ai.ChatConfig, error) {
	if input.UserID == "" || input.SessionID == "" {
		return "", ai.ChatConfig{}, ErrInvalidInput
	}
	cfg, err := s.resolveLLM(input.LLM)
	if err != nil {
		return "", ai.ChatConfig{}, err
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return "", cfg, ErrMessageEmpty
	}
	return content, cfg, nil
}

func (s *ChatService) exchange(
	ctx context.Context,
	input SendMessageInput,
	cfg ai.ChatConfig,
	systemPrompt string,
	content string,
	artifacts ...model.Artifact,
) (*SendMessageResult, error) {
	history, err := s.sessions.GetCompleteSession(ctx, input.SessionID, input.UserID, AssembleOptions{IncludeArtifacts: true})
	if err != nil {
		return nil, err
	}

	userMessage, err := s.messages.PushUserMessage(ctx, input.SessionID, input.UserID, content, artifacts...)
	if err != nil {
		return nil, err
	}

	prompt := s.buildPrompt(systemPrompt, history.Messages, userMessage)
	reply, err := s.llm.Complete(ctx, cfg, prompt)
	if err != nil {
		return nil, err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = emptyReply
	}

	assistantMessage, err := s.messages.PushAssistantMessage(ctx, input.SessionID, input.UserID, reply)
	if err != nil {
		return nil, err
	}

	return &SendMessageResult{
		Messages: []model.Message{*userMessage, *assistantMessage},
		LLMRequest: LLMRequestLog{
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			APIKeyMasked: maskSecret(cfg.APIKey),
			PromptTurns:  len(prompt),
		},
	}, nil
}

// StreamMessage is SendMessage with the reply forwarded chunk by chunk to onChunk.
func (s *ChatService) StreamMessage(
	ctx context.Context,
	input SendMessageInput,
	onChunk func(string) error,
) (*model.Message, error) {
	content, cfg, err := s.prepare(input)
	if err != nil {
		return nil, err
	}
	history, err := s.sessions.GetCompleteSession(ctx, input.SessionID, input.UserID, AssembleOptions{IncludeArtifacts: true})
	if err != nil {
		return nil, err
	}
	userMessage, err := s.messages.PushUserMessage(ctx, input.SessionID, input.UserID, content)
	if err != nil {
		return nil, err
	}

	full, err := s.llm.StreamComplete(ctx, cfg, s.buildPrompt(ai.ChatSystemPrompt, history.Messages, userMessage), onChunk)
	if err != nil {
		return nil, err
	}
	full = strings.TrimSpace(full)
	if full == "" {
		full = emptyReply
	}
	return s.messages.PushAssistantMessage(ctx, input.SessionID, input.UserID, full)
}

// Analyze answers a question about the session's latest CSV upload. The model writes code,
// the executor runs it with the table bound as df, and failed runs are fed back to the
// model up to maxAttempts times.
func (s *ChatService) Analyze(ctx context.Context, input AnalyzeInput) (*AnalyzeResult, error) {
	if input.UserID == "" || input.SessionID == "" {
		return nil, ErrInvalidInput
	}
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, ErrMessageEmpty
	}
	cfg, err := s.resolveLLM(input.LLM)
	if err != nil {
		return nil, err
	}

	dataset, err := s.sessions.LatestDataset(ctx, input.SessionID, input.UserID)
	if err != nil {
		return nil, err
	}
	stats, err := tabular.Inspect([]byte(dataset.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: dataset %s is unreadable: %v", ErrNoDataset, dataset.ID, err)
	}

	userMessage, err := s.messages.PushUserMessage(ctx, input.SessionID, input.UserID, question)
	if err != nil {
		return nil, err
	}

	conversation := []ai.ChatMessage{
		{Role: string(model.RoleSystem), Content: ai.AnalyzerSystemPrompt + "\n\n" + stats.Describe()},
		{Role: string(model.RoleUser), Content: question},
	}
	logger := log.WithFields(log.Fields{"session_id": input.SessionID, "dataset_id": dataset.ID})

	var lastError string
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		raw, err := s.llm.Complete(ctx, cfg, conversation)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
		}

		reply, ok := ai.ParseAnalysisReply(raw)
		if !ok {
			logger.Warn("analysis reply is not json, returning it as text")
		}
		if reply.Code == "" {
			return s.finishAnalysis(ctx, input, userMessage, reply.Explanation, attempt)
		}

		result, err := s.runner.Run(ctx, executor.RunRequest{
			Code:      reply.Code,
			Variables: map[string]executor.Variable{"df": {Kind: "csv", Value: dataset.Data}},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
		}
		if result.Failed() {
			lastError = result.Error
			logger.WithField("attempt", attempt).Warn("analysis code failed")
			conversation = append(conversation,
				ai.ChatMessage{Role: string(model.RoleAssistant), Content: raw},
				ai.ChatMessage{Role: string(model.RoleUser), Content: "Code execution failed. Fix the code and answer with the same JSON format. Error:\n" + result.Error},
			)
			continue
		}

		return s.finishAnalysis(ctx, input, userMessage, reply.Explanation, attempt, s.resultArtifacts(ctx, reply, result)...)
	}

	failure := fmt.Sprintf("I could not complete the analysis after %d attempts. Last error:\n%s", s.maxAttempts, lastError)
	if _, err := s.messages.PushAssistantMessage(ctx, input.SessionID, input.UserID, failure); err != nil {
		logger.WithError(err).Error("save analysis failure message failed")
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrAnalysisFailed, s.maxAttempts)
}

func (s *ChatService) finishAnalysis(
	ctx context.Context,
	input AnalyzeInput,
	userMessage *model.Message,
	explanation string,
	attempts int,
	artifacts ...model.Artifact,
) (*AnalyzeResult, error) {
	if strings.TrimSpace(explanation) == "" {
		explanation = emptyReply
	}
	assistantMessage, err := s.messages.PushAssistantMessage(ctx, input.SessionID, input.UserID, explanation, artifacts...)
	if err != nil {
		return nil, err
	}
	return &AnalyzeResult{
		Messages: []model.Message{*userMessage, *assistantMessage},
		Attempts: attempts,
	}, nil
}

// resultArtifacts keeps the code and turns the run result into an image (for a plot given
// as a data URL) or a text artifact.
func (s *ChatService) resultArtifacts(ctx context.Context, reply ai.AnalysisReply, result *executor.RunResult) []model.Artifact {
	out := []model.Artifact{s.artifacts.BuildCodeArtifact(ctx, reply.Code, "python", "analysis code")}
	text := result.Text()

	if reply.Plot == ai.PlotCreated {
		contentType, raw, err := imageutil.ParseDataURL(text)
		if err == nil && strings.HasPrefix(contentType, "image/") {
			image, err := s.artifacts.BuildImageArtifact(ctx, raw, "analysis chart", "")
			if err == nil {
				return append(out, image)
			}
			log.WithError(err).Warn("analysis chart could not be decoded")
		} else {
			log.Warn("analysis reported a plot but the result is not an image data url")
		}
	}
	if text != "" {
		out = append(out, s.artifacts.BuildTextArtifact(ctx, text, "analysis result"))
	}
	return out
}

// History returns the displayable tail of a session.
func (s *ChatService) History(ctx context.Context, sessionID, userID string, limit int) ([]model.Message, error) {
	session, err := s.sessions.GetCompleteSession(ctx, sessionID, userID, AssembleOptions{IncludeArtifacts: true, DisplayOnly: true})
	if err != nil {
		return nil, err
	}
	return trimMessages(session.Messages, limit), nil
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}

func (s *ChatService) resolveLLM(override LLMOverride) (ai.ChatConfig, error) {
	cfg := s.defaultLLM
	if strings.TrimSpace(override.BaseURL) != "" {
		cfg.BaseURL = strings.TrimSpace(override.BaseURL)
	}
	if strings.TrimSpace(override.APIKey) != "" {
		cfg.APIKey = strings.TrimSpace(override.APIKey)
	}
	if strings.TrimSpace(override.Model) != "" {
		cfg.Model = strings.TrimSpace(override.Model)
	}
	if cfg.APIKey == "" || cfg.Model == "" {
		return ai.ChatConfig{}, ErrLLMConfig
	}
	return cfg, nil
}

func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

func (s *ChatService) buildPrompt(systemPrompt string, history []model.Message, current *model.Message) []ai.ChatMessage {
	history = trimMessages(history, s.maxContext)
	prompt := make([]ai.ChatMessage, 0, len(history)+2)
	prompt = append(prompt, ai.ChatMessage{Role: string(model.RoleSystem), Content: systemPrompt})
	for i := range history {
		if history[i].Role == model.RoleSystem {
			continue
		}
		prompt = append(prompt, toChatMessage(&history[i]))
	}
	return append(prompt, toChatMessage(current))
}

// toChatMessage folds a message's artifacts into the prompt: images become image parts,
// tables a short description, code and text are appended inline.
func toChatMessage(msg *model.Message) ai.ChatMessage {
	out := ai.ChatMessage{Role: string(msg.Role)}
	if msg.Role == model.RoleTool {
		out.Role = string(model.RoleUser)
	}

	var b strings.Builder
	b.WriteString(msg.Content)
	for _, artifact := range msg.Artifacts {
		switch a := artifact.(type) {
		case *model.ImageArtifact:
			if a.URL != "" {
				out.Images = append(out.Images, a.URL)
			} else {
				out.Images = append(out.Images, "data:"+model.ContentType(a)+";base64,"+a.Data)
			}
		case *model.CSVArtifact:
			if stats, err := tabular.Inspect([]byte(a.Data)); err == nil {
				b.WriteString("\n\n" + stats.Describe())
			}
		case *model.CodeArtifact:
			language := a.Language
			if language == "" {
				language = "plaintext"
			}
			b.WriteString("\n\n```" + language + "\n" + a.Data + "\n```")
		case *model.TextArtifact:
			b.WriteString("\n\n" + a.Data)
		}
	}
	out.Content = b.String()
	if out.Role != string(model.RoleUser) {
		out.Images = nil
	}
	return out
}
