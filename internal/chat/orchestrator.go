// Package chat runs conversation turns: it admits a user message, persists
// it, drives the agent loop with the user's tools and streams the result
// through the output channel.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/apperr"
	"github.com/haasonsaas/conductor/internal/observability"
	"github.com/haasonsaas/conductor/internal/ratelimit"
	"github.com/haasonsaas/conductor/internal/storage"
	"github.com/haasonsaas/conductor/internal/streams"
	"github.com/haasonsaas/conductor/pkg/models"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	storage.ConversationStore
	storage.MessageStore
	storage.StreamStore
}

// Route binds a selectable model id to a provider.
type Route struct {
	Provider agent.LLMProvider
	// Model is the vendor model id; empty uses the provider default.
	Model string
	// Reasoning models stream thinking and are offered no tools.
	Reasoning bool
}

// Config configures the orchestrator.
type Config struct {
	// Routes maps selectable model ids to providers.
	Routes map[string]Route

	SystemPrompt         string
	MaxSteps             int
	MaxTokens            int
	ToolTimeout          time.Duration
	ThinkingBudgetTokens int

	// GenerateTitles asks the selected model for a title on the first turn.
	// Otherwise the title is derived from the message text.
	GenerateTitles bool

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Deps are the orchestrator's collaborators. Limiter and Quota are optional.
type Deps struct {
	Store    Store
	Registry *agent.ToolRegistry
	Channel  streams.Channel
	Limiter  *ratelimit.Limiter
	Quota    *ratelimit.Quota
}

// Orchestrator runs conversation turns.
type Orchestrator struct {
	store    Store
	registry *agent.ToolRegistry
	channel  streams.Channel
	limiter  *ratelimit.Limiter
	quota    *ratelimit.Quota
	config   Config
	logger   *slog.Logger
	locks    *conversationLocks
	now      func() time.Time
}

// Turn is an admitted turn whose events are streaming.
type Turn struct {
	ConversationID string
	StreamID       string
	Events         <-chan streams.Event
}

// NewOrchestrator validates deps and builds an orchestrator.
func NewOrchestrator(deps Deps, config Config) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("chat: store is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("chat: tool registry is required")
	}
	if deps.Channel == nil {
		return nil, errors.New("chat: output channel is required")
	}
	if len(config.Routes) == 0 {
		return nil, errors.New("chat: at least one model route is required")
	}
	if config.MaxSteps <= 0 {
		config.MaxSteps = 15
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    deps.Store,
		registry: deps.Registry,
		channel:  deps.Channel,
		limiter:  deps.Limiter,
		quota:    deps.Quota,
		config:   config,
		logger:   logger.With("component", "chat"),
		locks:    newConversationLocks(),
		now:      time.Now,
	}, nil
}

// Models returns the selectable model ids.
func (o *Orchestrator) Models() []string {
	ids := make([]string, 0, len(o.config.Routes))
	for id := range o.config.Routes {
		ids = append(ids, id)
	}
	return ids
}

// Resumable reports whether turns can be resumed after a disconnect.
func (o *Orchestrator) Resumable() bool { return o.channel.Resumable() }

// StartTurn admits req and starts generation. Every rejection happens
// before anything is persisted.
func (o *Orchestrator) StartTurn(ctx context.Context, user *models.User, req *TurnRequest) (*Turn, error) {
	if user == nil || user.ID == "" {
		o.reject("unauthorized")
		return nil, apperr.New(apperr.KindUnauthorized, "chat", "")
	}
	if req == nil {
		o.reject("bad_request")
		return nil, apperr.New(apperr.KindBadRequest, "api", "")
	}
	if err := req.Validate(o.Models()); err != nil {
		o.reject("bad_request")
		return nil, err
	}
	route := o.config.Routes[req.SelectedChatModel]

	if o.limiter != nil && !o.limiter.Allow(ratelimit.CompositeKey("chat", user.ID)) {
		o.reject("rate_limit")
		return nil, apperr.New(apperr.KindRateLimited, "chat", "")
	}
	if err := o.quota.Check(ctx, user); err != nil {
		o.reject("rate_limit")
		return nil, err
	}

	release, err := o.locks.lock(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			release()
		}
	}()

	inbound := &models.Message{
		ID:             req.Message.ID,
		ConversationID: req.ID,
		Role:           models.RoleUser,
		Parts:          req.Message.Parts,
		CreatedAt:      o.now(),
	}

	conv, err := o.ensureConversation(ctx, user, req, route, inbound)
	if err != nil {
		return nil, err
	}

	history, err := o.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if err := o.store.AppendMessage(ctx, inbound); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, apperr.Wrap(apperr.KindBadRequest, "api", err, "")
		}
		return nil, fmt.Errorf("persist message: %w", err)
	}

	streamID := uuid.NewString()
	if err := o.store.CreateStreamRecord(ctx, &models.StreamRecord{
		ID:             streamID,
		ConversationID: conv.ID,
		CreatedAt:      o.now(),
	}); err != nil {
		return nil, fmt.Errorf("create stream record: %w", err)
	}

	run := &turnRun{
		orchestrator: o,
		user:         user,
		conversation: conv,
		history:      append(history, inbound),
		route:        route,
		release:      release,
	}
	events, err := o.channel.Write(ctx, streamID, run.produce)
	if err != nil {
		o.config.Metrics.RecordError("stream", "write")
		return nil, apperr.Wrap(apperr.KindChannelUnavailable, "stream", err, "")
	}
	ok = true

	o.logger.InfoContext(ctx, "turn started",
		"conversation_id", conv.ID,
		"stream_id", streamID,
		"model", req.SelectedChatModel,
		"history", len(history))
	return &Turn{ConversationID: conv.ID, StreamID: streamID, Events: events}, nil
}

func (o *Orchestrator) reject(reason string) {
	o.config.Metrics.RecordTurn("rejected", 0)
	o.config.Metrics.RecordError("chat", reason)
}

func (o *Orchestrator) ensureConversation(ctx context.Context, user *models.User, req *TurnRequest, route Route, first *models.Message) (*models.Conversation, error) {
	conv, err := o.store.GetConversation(ctx, req.ID)
	if err == nil {
		if conv.UserID != user.ID {
			o.reject("forbidden")
			return nil, apperr.New(apperr.KindForbidden, "chat", "")
		}
		return conv, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	title := deriveTitle(first.Text())
	if o.config.GenerateTitles {
		title = generateTitle(ctx, route.Provider, route.Model, first)
	}
	conv = &models.Conversation{
		ID:         req.ID,
		UserID:     user.ID,
		Title:      title,
		Visibility: req.SelectedVisibilityType,
		CreatedAt:  o.now(),
	}
	if err := o.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// Resume returns the events of the conversation's newest stream. It returns
// nil events and no error when there is nothing to resume.
func (o *Orchestrator) Resume(ctx context.Context, user *models.User, conversationID string) (<-chan streams.Event, error) {
	if conversationID == "" {
		return nil, apperr.New(apperr.KindBadRequest, "api", "")
	}
	if user == nil {
		return nil, apperr.New(apperr.KindUnauthorized, "chat", "")
	}
	if _, err := o.readableConversation(ctx, user, conversationID); err != nil {
		return nil, err
	}
	if !o.channel.Resumable() {
		return nil, nil
	}

	records, err := o.store.ListStreamRecords(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	events, err := o.channel.Resume(ctx, records[0].ID)
	if errors.Is(err, streams.ErrStreamNotFound) || errors.Is(err, streams.ErrNotResumable) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindChannelUnavailable, "stream", err, "")
	}
	return events, nil
}

// History returns the conversation's messages to its owner, or to anyone
// when the conversation is public.
func (o *Orchestrator) History(ctx context.Context, user *models.User, conversationID string) ([]*models.Message, error) {
	if conversationID == "" {
		return nil, apperr.New(apperr.KindBadRequest, "api", "")
	}
	if user == nil {
		return nil, apperr.New(apperr.KindUnauthorized, "chat", "")
	}
	if _, err := o.readableConversation(ctx, user, conversationID); err != nil {
		return nil, err
	}
	return o.store.ListMessages(ctx, conversationID)
}

// ListConversations returns the user's conversations, newest first.
func (o *Orchestrator) ListConversations(ctx context.Context, user *models.User, limit int) ([]*models.Conversation, error) {
	if user == nil {
		return nil, apperr.New(apperr.KindUnauthorized, "chat", "")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return o.store.ListConversations(ctx, user.ID, limit)
}

// DeleteConversation deletes a conversation owned by user and returns it.
func (o *Orchestrator) DeleteConversation(ctx context.Context, user *models.User, conversationID string) (*models.Conversation, error) {
	if conversationID == "" {
		return nil, apperr.New(apperr.KindBadRequest, "api", "")
	}
	if user == nil {
		return nil, apperr.New(apperr.KindUnauthorized, "chat", "")
	}
	conv, err := o.conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != user.ID {
		return nil, apperr.New(apperr.KindForbidden, "chat", "")
	}
	if err := o.store.DeleteConversation(ctx, conversationID); err != nil {
		return nil, fmt.Errorf("delete conversation: %w", err)
	}
	o.logger.InfoContext(ctx, "conversation deleted", "conversation_id", conversationID)
	return conv, nil
}

func (o *Orchestrator) conversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := o.store.GetConversation(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "chat", "")
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return conv, nil
}

func (o *Orchestrator) readableConversation(ctx context.Context, user *models.User, id string) (*models.Conversation, error) {
	conv, err := o.conversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.Visibility != models.VisibilityPublic && conv.UserID != user.ID {
		return nil, apperr.New(apperr.KindForbidden, "chat", "")
	}
	return conv, nil
}
