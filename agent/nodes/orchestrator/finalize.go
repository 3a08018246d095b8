package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
	promptx "github.com/tanpawarit/chative-pizzeria/agent/prompt"
)

// Finalize asks the model, without tools, to answer from the tool results.
func Finalize(
	ctx context.Context,
	in *GraphState,
	prompts promptx.PromptSet,
	finalizer contractx.Finalizer,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Failed() {
		return in, nil
	}

	msgs, err := prompts.BuildFinalize(in.Messages)
	if err != nil {
		in.fail(contractx.StageFinalize, err)
		return in, nil
	}

	reply, err := finalizer.Finalize(ctx, contractx.FinalizeRequest{
		UserID:   in.UserID,
		Messages: msgs,
	})
	if err != nil {
		in.fail(contractx.StageFinalize, err)
		return in, nil
	}

	if reply.Image == nil && in.Image != nil {
		reply.Image = in.Image
	}
	in.Reply = reply
	return in, nil
}
