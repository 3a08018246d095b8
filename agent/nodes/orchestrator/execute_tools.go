package orchestratornode

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
	"github.com/tanpawarit/chative-pizzeria/agent/data"
)

// ExecuteTools runs the model's tool calls in the order given and appends one
// tool message per call to the working history.
func ExecuteTools(
	ctx context.Context,
	in *GraphState,
	tools contractx.ToolGateway,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if len(in.PendingCalls) == 0 {
		return in, nil
	}

	results, err := tools.Execute(ctx, in.UserID, in.PendingCalls)
	if err != nil {
		in.fail(contractx.StageExecuteTools, err)
		return in, nil
	}

	for _, r := range results {
		in.Messages = append(in.Messages, schema.ToolMessage(r.Content(), r.CallID))
		in.ToolResults[r.Tool] = r.Args
		applyResult(in, r)
	}
	in.Results = append(in.Results, results...)
	in.PendingCalls = nil
	return in, nil
}

// applyResult folds record-changing results back into the turn snapshot.
func applyResult(in *GraphState, r contractx.ToolResult) {
	if r.Error != "" {
		return
	}
	switch v := r.Result.(type) {
	case contractx.ImageDirective:
		d := v
		in.Image = &d
	case *data.Customer:
		in.Customer = v
		in.NeedsCustomerInfo = !v.IsComplete()
		in.ReadyToOrder = v.IsComplete()
	case *data.ActiveOrder:
		in.ActiveOrder = v
	case *data.FinalizedOrder:
		in.ActiveOrder = nil
	}
}
