package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
	statex "github.com/tanpawarit/chative-pizzeria/agent/state"
)

const (
	ContextKeyCustomerName = "customer_name"
	ContextKeyCurrentOrder = "current_order"
	ContextKeyLastStep     = "last_step"
)

// SaveState appends the turn to the conversation and persists it. Persistence
// is best-effort: a failed save is logged and the reply is kept.
func SaveState(
	ctx context.Context,
	in *GraphState,
	convs Conversations,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Reply.IsEmpty() {
		in.Reply = ApologyReply()
	}

	convs.AddMessage(ctx, in.UserID, statex.Message{
		Role:      statex.RoleHuman,
		Content:   in.Text,
		Timestamp: in.Now,
	})
	convs.AddMessage(ctx, in.UserID, statex.Message{
		Role:      statex.RoleAssistant,
		Content:   in.Reply.HistoryText(),
		Timestamp: in.Now,
	})

	if in.Customer != nil {
		convs.UpdateCustomerContext(ctx, in.UserID, ContextKeyCustomerName, in.Customer.FullName())
	}
	if in.ActiveOrder != nil {
		convs.UpdateCustomerContext(ctx, in.UserID, ContextKeyCurrentOrder, in.ActiveOrder)
	} else if in.Conversation != nil && in.Conversation.CustomerContext[ContextKeyCurrentOrder] != nil {
		convs.UpdateCustomerContext(ctx, in.UserID, ContextKeyCurrentOrder, nil)
	}
	convs.UpdateCustomerContext(ctx, in.UserID, ContextKeyLastStep, string(in.CurrentStep))

	if err := convs.Save(ctx, in.UserID); err != nil {
		log.Warn().Err(err).Str("user_id", in.UserID).Str("stage", string(contractx.StageSave)).Msg("conversation save failed")
		in.FailedStages = append(in.FailedStages, contractx.StageSave)
	}
	return in, nil
}
