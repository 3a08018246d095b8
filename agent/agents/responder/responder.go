package responder

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
)

type responderImpl struct {
	runner compose.Runnable[[]*schema.Message, *schema.Message]
}

func newResponder(ctx context.Context, chatModel einomodel.ToolCallingChatModel, tools []*schema.ToolInfo) (*responderImpl, error) {
	toolModel, err := chatModel.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools: %v", contractx.ErrModelInvoke, err)
	}
	runner, err := compileRespondGraph(ctx, toolModel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return &responderImpl{runner: runner}, nil
}

func (r *responderImpl) Respond(ctx context.Context, req contractx.RespondRequest) (contractx.RespondResponse, error) {
	if len(req.Messages) == 0 {
		return contractx.RespondResponse{}, fmt.Errorf("%w: respond needs at least one message", contractx.ErrValidation)
	}

	msg, err := r.runner.Invoke(ctx, req.Messages)
	if err != nil {
		return contractx.RespondResponse{}, fmt.Errorf("%w: respond invoke: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return contractx.RespondResponse{}, fmt.Errorf("%w: empty respond message", contractx.ErrSchemaViolation)
	}

	toolRequests, err := toToolRequests(msg.ToolCalls)
	if err != nil {
		return contractx.RespondResponse{}, err
	}
	if len(toolRequests) > 0 {
		return contractx.RespondResponse{Message: msg, ToolRequests: toolRequests}, nil
	}

	reply := NormalizeReply(msg)
	if reply.IsEmpty() {
		return contractx.RespondResponse{}, fmt.Errorf("%w: model returned neither text nor tool calls", contractx.ErrSchemaViolation)
	}
	return contractx.RespondResponse{Message: msg, Reply: reply}, nil
}

type finalizerImpl struct {
	runner compose.Runnable[[]*schema.Message, contractx.TextReply]
}

func newFinalizer(ctx context.Context, chatModel einomodel.BaseChatModel) (*finalizerImpl, error) {
	runner, err := compileFinalizeGraph(ctx, chatModel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return &finalizerImpl{runner: runner}, nil
}

func (f *finalizerImpl) Finalize(ctx context.Context, req contractx.FinalizeRequest) (contractx.TextReply, error) {
	if len(req.Messages) == 0 {
		return contractx.TextReply{}, fmt.Errorf("%w: finalize needs at least one message", contractx.ErrValidation)
	}

	reply, err := f.runner.Invoke(ctx, req.Messages)
	if err != nil {
		return contractx.TextReply{}, fmt.Errorf("%w: finalize invoke: %v", contractx.ErrModelInvoke, err)
	}
	if reply.IsEmpty() {
		return contractx.TextReply{}, fmt.Errorf("%w: finalize reply is empty", contractx.ErrSchemaViolation)
	}
	return reply, nil
}

func toToolRequests(calls []schema.ToolCall) ([]contractx.ToolRequest, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	reqs := make([]contractx.ToolRequest, 0, len(calls))
	for _, call := range calls {
		tool := strings.TrimSpace(call.Function.Name)
		if tool == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}
		reqs = append(reqs, contractx.ToolRequest{
			CallID:    call.ID,
			Tool:      tool,
			Arguments: call.Function.Arguments,
		})
	}
	return reqs, nil
}
