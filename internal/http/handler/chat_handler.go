package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-bff/internal/adapter/openclaw"
	"github.com/smallbiznis/valora-bff/internal/domain"
	"github.com/smallbiznis/valora-bff/internal/repository"
)

const maxChatBody = 4 << 20

// ChatGateway is the subset of the OpenClaw client used by the chat routes.
type ChatGateway interface {
	ChatCompletion(ctx context.Context, body []byte) (*http.Response, error)
	Models(ctx context.Context) ([]byte, error)
	Health(ctx context.Context) error
}

// ChatHandler proxies chat completions and persists their outcome.
type ChatHandler struct {
	Gateway       ChatGateway
	Conversations repository.ConversationRepository
	Usage         repository.UsageRepository
	Tracer        trace.Tracer
	DefaultModel  string
	Logger        *zap.Logger
}

func NewChatHandler(gateway ChatGateway, conversations repository.ConversationRepository, usage repository.UsageRepository, tracer trace.Tracer, defaultModel string, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		Gateway:       gateway,
		Conversations: conversations,
		Usage:         usage,
		Tracer:        tracer,
		DefaultModel:  defaultModel,
		Logger:        logger,
	}
}

// Completions forwards an OpenAI-compatible request. Streams are relayed
// event by event; the upstream call shares the client's context so a
// disconnect cancels it.
func (h *ChatHandler) Completions(c *gin.Context) {
	cl, ok := caller(c)
	if !ok {
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxChatBody))
	if err != nil {
		badRequest(c, "Unable to read request body.")
		return
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		badRequest(c, "Body must be a JSON object.")
		return
	}
	messages, _ := payload["messages"].([]any)
	if len(messages) == 0 {
		badRequest(c, "messages is required.")
		return
	}

	conversationID, _ := payload["conversation_id"].(string)
	delete(payload, "conversation_id")
	if model, _ := payload["model"].(string); strings.TrimSpace(model) == "" {
		payload["model"] = h.DefaultModel
	}
	model, _ := payload["model"].(string)
	stream, _ := payload["stream"].(bool)

	ctx := c.Request.Context()
	if conversationID != "" {
		if _, err := h.Conversations.Get(ctx, cl.UserID(), conversationID); err != nil {
			respondError(c, err)
			return
		}
		if content := lastUserMessage(messages); content != "" {
			if _, err := h.Conversations.AppendMessage(ctx, conversationID, "user", content, nil); err != nil {
				respondError(c, err)
				return
			}
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, span := h.tracer().Start(ctx, "openclaw.chat_completion", trace.WithAttributes(
		attribute.String("chat.model", model),
		attribute.Bool("chat.stream", stream),
	))
	defer span.End()

	resp, err := h.Gateway.ChatCompletion(ctx, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream request failed")
		respondError(c, err)
		return
	}
	defer resp.Body.Close()

	var result *openclaw.StreamResult
	if stream {
		header := c.Writer.Header()
		header.Set("Content-Type", "text/event-stream")
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
		header.Set("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()

		result, err = openclaw.RelayStream(resp.Body, c.Writer, c.Writer.Flush)
		if err != nil {
			// Headers are already sent; all that is left is to stop.
			span.RecordError(err)
			h.log().Warn("chat stream interrupted", zap.String("user_id", cl.UserID()), zap.Error(err))
			return
		}
	} else {
		upstream, err := io.ReadAll(resp.Body)
		if err != nil {
			respondError(c, err)
			return
		}
		result = openclaw.ParseCompletion(upstream)
		c.Data(http.StatusOK, jsonContentType, upstream)
	}

	h.persist(context.WithoutCancel(ctx), cl.UserID(), conversationID, model, result)
}

func (h *ChatHandler) persist(ctx context.Context, userID, conversationID, model string, result *openclaw.StreamResult) {
	if result == nil {
		return
	}
	if result.Model != "" {
		model = result.Model
	}
	if conversationID != "" && result.Content != "" {
		if _, err := h.Conversations.AppendMessage(ctx, conversationID, "assistant", result.Content, &model); err != nil {
			h.log().Error("append assistant message", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}
	if result.Usage != nil && h.Usage != nil {
		event := domain.UsageEvent{
			UserID:           userID,
			Model:            model,
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		}
		if conversationID != "" {
			event.ConversationID = &conversationID
		}
		if err := h.Usage.Record(ctx, event); err != nil {
			h.log().Error("record usage", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

func (h *ChatHandler) Models(c *gin.Context) {
	raw, err := h.Gateway.Models(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, jsonContentType, raw)
}

func (h *ChatHandler) Health(c *gin.Context) {
	if err := h.Gateway.Health(c.Request.Context()); err != nil {
		h.log().Warn("openclaw health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func lastUserMessage(messages []any) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m, ok := messages[i].(map[string]any)
		if !ok || m["role"] != "user" {
			continue
		}
		if content, ok := m["content"].(string); ok {
			return content
		}
	}
	return ""
}

func (h *ChatHandler) tracer() trace.Tracer {
	if h.Tracer != nil {
		return h.Tracer
	}
	return otel.Tracer("github.com/smallbiznis/valora-bff/internal/http/handler")
}

func (h *ChatHandler) log() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}
