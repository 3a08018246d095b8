package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
	"github.com/tanpawarit/chative-pizzeria/agent/intent"
)

// LoadState resolves the customer snapshot, the conversation context and the
// current step. It never fails the turn: lookups degrade to empty values and
// the step defaults to greeting.
func LoadState(
	ctx context.Context,
	in *GraphState,
	lookup Lookup,
	convs Conversations,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	in.Customer = lookup.Customer(ctx, in.UserID)
	if in.Customer != nil {
		in.ActiveOrder = lookup.ActiveOrder(ctx, in.UserID)
	}
	in.NeedsCustomerInfo = !in.Customer.IsComplete()
	in.ReadyToOrder = in.Customer.IsComplete()

	in.Conversation = convs.GetConversation(ctx, in.UserID)

	step := intent.Classify(in.Text)
	if step == intent.General && in.Conversation.IsNew() {
		step = intent.Greeting
	}
	in.CurrentStep = step
	in.ForceFullMenu = step == intent.FullMenu

	return in, nil
}
