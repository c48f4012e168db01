package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/observability"
	"github.com/haasonsaas/conductor/internal/streams"
	"github.com/haasonsaas/conductor/pkg/models"
)

// turnRun is the generation half of a turn. It holds the conversation lock
// until produce returns.
type turnRun struct {
	orchestrator *Orchestrator
	user         *models.User
	conversation *models.Conversation
	history      []*models.Message
	route        Route
	release      func()
}

func (r *turnRun) produce(ctx context.Context, emit streams.Emit) (err error) {
	defer r.release()

	o := r.orchestrator
	started := time.Now()
	status := "ok"
	defer func() {
		if err != nil && status == "ok" {
			status = "error"
		}
		o.config.Metrics.RecordTurn(status, time.Since(started).Seconds())
	}()

	ctx = observability.AddConversationID(ctx, r.conversation.ID)
	ctx = observability.AddUserID(ctx, r.user.ID)
	ctx, span := o.config.Tracer.TraceTurn(ctx, r.conversation.ID, r.route.Model)
	defer func() {
		o.config.Tracer.RecordError(span, err)
		span.End()
	}()

	assistantID := uuid.NewString()
	if err := emit(streams.Event{Type: streams.EventStart, MessageID: assistantID}); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Tools hand notices over synchronously, so a notice is only taken once
	// every chunk sent before it has been handled.
	notices := make(chan agent.Notice)
	toolset := r.orchestrator.registry.InstantiateAll(agent.Binding{
		UserID:         r.user.ID,
		User:           r.user,
		ConversationID: r.conversation.ID,
		Output: func(n agent.Notice) {
			select {
			case notices <- n:
			case <-loopCtx.Done():
			}
		},
	})
	var active []string
	if r.route.Reasoning {
		active = []string{}
	}

	loop := agent.NewAgenticLoop(r.route.Provider, &agent.LoopConfig{
		MaxSteps:    o.config.MaxSteps,
		MaxTokens:   o.config.MaxTokens,
		ToolTimeout: o.config.ToolTimeout,
		Logger:      o.logger,
		Metrics:     o.config.Metrics,
		Tracer:      o.config.Tracer,
	})
	chunks, err := loop.Run(loopCtx, agent.RunRequest{
		Model:                r.route.Model,
		System:               o.config.SystemPrompt,
		History:              toCompletionMessages(r.history),
		Tools:                toolset,
		ActiveTools:          active,
		EnableThinking:       r.route.Reasoning,
		ThinkingBudgetTokens: o.config.ThinkingBudgetTokens,
	})
	if err != nil {
		return fmt.Errorf("start agent loop: %w", err)
	}

	acc := newAccumulator()
	var (
		loopErr error
		emitErr error
		finish  *agent.Finish
	)
	send := func(events ...streams.Event) {
		if emitErr != nil {
			return
		}
		for _, e := range events {
			if emitErr = emit(e); emitErr != nil {
				cancel()
				return
			}
		}
	}

	for chunks != nil {
		var (
			chunk *agent.ResponseChunk
			ok    bool
		)
		// Buffered chunks go first.
		select {
		case chunk, ok = <-chunks:
		default:
			select {
			case chunk, ok = <-chunks:
			case n := <-notices:
				send(noticeEvent(n))
				continue
			}
		}
		if !ok {
			chunks = nil
			continue
		}

		switch {
		case chunk.Error != nil:
			loopErr = chunk.Error
		case chunk.Text != "":
			send(acc.text(chunk.Text))
		case chunk.Thinking != "":
			send(acc.reasoning(chunk.Thinking))
		case chunk.ToolEvent != nil:
			send(acc.tool(chunk.ToolEvent)...)
		case chunk.Finish != nil:
			finish = chunk.Finish
		}
	}

	if emitErr != nil {
		status = "canceled"
		return emitErr
	}
	if loopErr != nil {
		return fmt.Errorf("agent loop: %w", loopErr)
	}
	if finish == nil || finish.Reason == agent.FinishCanceled {
		status = "canceled"
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("agent loop canceled")
	}

	if len(acc.parts) > 0 {
		msg := &models.Message{
			ID:             assistantID,
			ConversationID: r.conversation.ID,
			Role:           models.RoleAssistant,
			Parts:          acc.parts,
			CreatedAt:      o.now(),
		}
		if err := o.store.AppendMessage(ctx, msg); err != nil {
			return fmt.Errorf("persist assistant message: %w", err)
		}
	}

	o.logger.InfoContext(ctx, "turn finished",
		"conversation_id", r.conversation.ID,
		"finish_reason", finish.Reason,
		"steps", finish.Steps,
		"input_tokens", finish.Usage.InputTokens,
		"output_tokens", finish.Usage.OutputTokens)

	return emit(streams.Event{Type: streams.EventFinish, FinishReason: string(finish.Reason)})
}

func noticeEvent(n agent.Notice) streams.Event {
	data, _ := json.Marshal(n)
	return streams.Event{Type: streams.EventDataNotice, ToolName: n.Tool, Data: data, Transient: true}
}
