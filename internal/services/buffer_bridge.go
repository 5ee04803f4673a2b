package services

import (
	"context"
	"encoding/json"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/internal/infrastructure/buffer"
	"github.com/fastygo/huddle/usecase"
)

// BufferBridge adapts the outbox processor to the use case RetryBuffer port.
type BufferBridge struct {
	processor *BufferProcessor
}

func NewBufferBridge(processor *BufferProcessor) *BufferBridge {
	return &BufferBridge{processor: processor}
}

func (b *BufferBridge) BufferSideEffect(_ context.Context, effect usecase.SideEffect) error {
	if b.processor == nil || effect.Kind == "" {
		return domain.ErrInvalidPayload
	}
	payload, err := json.Marshal(effect)
	if err != nil {
		return err
	}
	return b.processor.Enqueue(buffer.Item{
		ActivityID: effect.ActivityID,
		Entity:     buffer.EntitySideEffect,
		Operation:  effect.Kind,
		Data:       payload,
		Priority:   priorityOf(effect.Kind),
	})
}

func priorityOf(kind string) int {
	switch kind {
	case usecase.SideEffectTeardown:
		return buffer.PriorityTeardown
	case usecase.SideEffectProvision:
		return buffer.PriorityProvision
	default:
		return buffer.PriorityPush
	}
}

var _ usecase.RetryBuffer = (*BufferBridge)(nil)
