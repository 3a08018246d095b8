package prompt

import (
	"context"
	"fmt"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
	"github.com/tanpawarit/chative-pizzeria/agent/intent"
)

const historyKey = "history"

// RespondInput is everything the RESPOND prompt is assembled from.
type RespondInput struct {
	UserID       string
	Step         intent.Label
	CustomerName string
	// CustomerJSON and ActiveOrderJSON are empty when there is no record.
	CustomerJSON    string
	ActiveOrderJSON string
	History         []*schema.Message
}

// BuildRespond renders persona, identity, step context, customer and order
// snapshots, followed by the conversation history.
func (p PromptSet) BuildRespond(ctx context.Context, in RespondInput) ([]*schema.Message, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", contractx.ErrValidation)
	}
	if p.System == "" || p.Identity == "" {
		return nil, contractx.ErrPromptMissing
	}

	known := strings.TrimSpace(in.CustomerJSON) != ""
	parts := []schema.MessagesTemplate{
		schema.SystemMessage(p.System),
		schema.SystemMessage(p.Identity),
		schema.SystemMessage(p.StepContext(in.Step, known)),
	}
	if known {
		parts = append(parts, schema.SystemMessage(p.CustomerKnown))
	} else {
		parts = append(parts, schema.SystemMessage(p.CustomerUnknown))
	}
	if strings.TrimSpace(in.ActiveOrderJSON) != "" {
		parts = append(parts, schema.SystemMessage(p.ActiveOrder))
	}
	parts = append(parts, schema.MessagesPlaceholder(historyKey, true))

	name := strings.TrimSpace(in.CustomerName)
	if name == "" {
		name = "cliente"
	}
	vars := map[string]any{
		"user_id":       in.UserID,
		"customer_name": name,
		"customer":      in.CustomerJSON,
		"active_order":  in.ActiveOrderJSON,
		historyKey:      in.History,
	}

	msgs, err := einoprompt.FromMessages(schema.FString, parts...).Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("%w: format respond prompt: %v", contractx.ErrPromptMissing, err)
	}
	return msgs, nil
}

// BuildFinalize appends the finalize instruction to the working history,
// which already carries the tool results.
func (p PromptSet) BuildFinalize(history []*schema.Message) ([]*schema.Message, error) {
	if p.Finalize == "" {
		return nil, contractx.ErrPromptMissing
	}
	out := make([]*schema.Message, 0, len(history)+1)
	out = append(out, history...)
	out = append(out, schema.SystemMessage(p.Finalize))
	return out, nil
}
