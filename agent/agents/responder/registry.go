package responder

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
	llmx "github.com/tanpawarit/chative-pizzeria/agent/llm"
	toolx "github.com/tanpawarit/chative-pizzeria/agent/tool"
)

type registryImpl struct {
	responder contractx.Responder
	finalizer contractx.Finalizer
}

func (r *registryImpl) Responder() contractx.Responder {
	return r.responder
}

func (r *registryImpl) Finalizer() contractx.Finalizer {
	return r.finalizer
}

// NewRegistry builds both model stages from cfg, each behind the retry policy.
func NewRegistry(ctx context.Context, cfg llmx.Config) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	respondCfg := cfg.OpenRouterFor(contractx.StageRespond)
	respondModel, err := respondCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create respond model: %v", contractx.ErrModelInvoke, err)
	}
	finalizeCfg := cfg.OpenRouterFor(contractx.StageFinalize)
	finalizeModel, err := finalizeCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create finalize model: %v", contractx.ErrModelInvoke, err)
	}

	policy := cfg.RetryPolicy()
	return NewRegistryFromModels(ctx, llmx.WithRetry(respondModel, policy), llmx.WithRetry(finalizeModel, policy))
}

// NewRegistryFromModels wires already-built models. RESPOND gets the whole
// tool catalog; FINALIZE gets none.
func NewRegistryFromModels(ctx context.Context, respondModel einomodel.ToolCallingChatModel, finalizeModel einomodel.BaseChatModel) (contractx.Registry, error) {
	if respondModel == nil || finalizeModel == nil {
		return nil, fmt.Errorf("%w: respond and finalize models are required", contractx.ErrValidation)
	}

	responder, err := newResponder(ctx, respondModel, toolx.Infos())
	if err != nil {
		return nil, err
	}
	finalizer, err := newFinalizer(ctx, finalizeModel)
	if err != nil {
		return nil, err
	}

	return &registryImpl{
		responder: responder,
		finalizer: finalizer,
	}, nil
}
