package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/luckystar-app/luckystar/llm"
	"github.com/luckystar-app/luckystar/store"
)

func (b *Backend) chatRoutes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", WrapRestHandler(b.Chat))
	r.Post("/stream", b.ChatStream)

	return r
}

// ChatRequest is one user turn. ConversationID continues an existing
// conversation; when empty, a new one is created under the profile.
type ChatRequest struct {
	ProfileID      string `json:"profileId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Prompt         string `json:"prompt"`
}

// ChatResponse carries the assistant reply and the conversation it was
// appended to.
type ChatResponse struct {
	ConversationID string `json:"conversationId"`
	Reply          string `json:"reply"`
}

// chatContext resolves the profile and prior history for a request.
func (b *Backend) chatContext(req ChatRequest) (*store.Profile, store.Conversation, []llm.Message, error) {
	if req.Prompt == "" {
		return nil, store.Conversation{}, nil, CodedError(errors.New("prompt is required"), http.StatusBadRequest)
	}

	var profile *store.Profile
	if req.ProfileID != "" {
		p, err := b.store.Profile(req.ProfileID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.Conversation{}, nil, CodedError(err, http.StatusNotFound)
		}
		if err != nil {
			return nil, store.Conversation{}, nil, CodedError(err, http.StatusInternalServerError)
		}
		profile = &p
	} else if p, ok, err := b.store.CurrentUser(); err == nil && ok {
		profile = &p
	}

	conversation := store.Conversation{ProfileID: req.ProfileID}
	if profile != nil {
		conversation.ProfileID = profile.ID
	}
	if req.ConversationID != "" {
		profileID := conversation.ProfileID
		conversations, err := b.store.Conversations(profileID)
		if err != nil {
			return nil, store.Conversation{}, nil, CodedError(err, http.StatusInternalServerError)
		}
		found := false
		for _, c := range conversations {
			if c.ID == req.ConversationID {
				conversation = c
				found = true
				break
			}
		}
		if !found {
			return nil, store.Conversation{}, nil, CodedError(fmt.Errorf("conversation %s: %w", req.ConversationID, store.ErrNotFound), http.StatusNotFound)
		}
	}
	if conversation.Title == "" {
		conversation.Title = truncateTitle(req.Prompt)
	}

	history := make([]llm.Message, 0, len(conversation.Messages))
	for _, m := range conversation.Messages {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	return profile, conversation, history, nil
}

func truncateTitle(prompt string) string {
	runes := []rune(prompt)
	if len(runes) > 20 {
		return string(runes[:20])
	}
	return prompt
}

func (b *Backend) appendTurn(conversation store.Conversation, prompt, reply string) (store.Conversation, error) {
	now := time.Now().UnixMilli()
	conversation.Messages = append(conversation.Messages,
		store.ChatMessage{ID: uuid.NewString(), Role: "user", Content: prompt, Timestamp: now},
		store.ChatMessage{ID: uuid.NewString(), Role: "model", Content: reply, Timestamp: now},
	)
	return b.store.SaveConversation(conversation)
}

// Chat answers one prompt and persists the exchange.
func (b *Backend) Chat(r *http.Request) (any, error) {
	req, err := ParseRequestBody[ChatRequest](r)
	if err != nil {
		return nil, err
	}

	profile, conversation, history, err := b.chatContext(req)
	if err != nil {
		return nil, err
	}

	reply, err := b.assistant.Ask(r.Context(), req.Prompt, profile, history)
	if err != nil {
		return nil, CodedError(err, http.StatusBadGateway)
	}

	saved, err := b.appendTurn(conversation, req.Prompt, reply)
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	return ChatResponse{ConversationID: saved.ID, Reply: reply}, nil
}

// ChatStream answers one prompt as a plain-text chunk stream, then persists
// the full exchange. Errors after the first chunk surface as a marker line,
// since the status is already written.
func (b *Backend) ChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequestBody[ChatRequest](r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	profile, conversation, history, err := b.chatContext(req)
	if err != nil {
		var cerr *codedError
		if errors.As(err, &cerr) {
			http.Error(w, err.Error(), cerr.code)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	// A new conversation needs its id before the header goes out, or the
	// client cannot continue the conversation it just started.
	// SaveConversation keeps an already-assigned id.
	if conversation.ID == "" {
		conversation.ID = uuid.NewString()
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Conversation-Id", conversation.ID)
	flusher, _ := w.(http.Flusher)

	var reply string
	err = b.assistant.AskStream(r.Context(), req.Prompt, profile, history, func(chunk string) {
		reply += chunk
		fmt.Fprint(w, chunk)
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err != nil {
		fmt.Fprint(w, "\n\n*(由于星象波动，连接暂时中断，请重试。)*")
		return
	}

	if _, err := b.appendTurn(conversation, req.Prompt, reply); err != nil {
		// The reply already went out; the persistence failure can only be logged.
		slog.Error("error saving conversation", "error", err)
	}
}
