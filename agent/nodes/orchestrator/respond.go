package orchestratornode

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
	promptx "github.com/tanpawarit/chative-pizzeria/agent/prompt"
	statex "github.com/tanpawarit/chative-pizzeria/agent/state"
	toolx "github.com/tanpawarit/chative-pizzeria/agent/tool"
)

const (
	NodeExecuteTools = "execute_tools"
	NodeSaveState    = "save_state"
)

// Respond runs the tool-calling model once. A full_menu turn skips the model
// and answers with the menu image directly.
func Respond(
	ctx context.Context,
	in *GraphState,
	prompts promptx.PromptSet,
	responder contractx.Responder,
	lookup Lookup,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	if in.ForceFullMenu {
		reply := lookup.FullMenu()
		in.ToolResults[toolx.ToolSendFullMenu] = map[string]any{}
		in.Image = reply.Image
		in.Reply = reply
		log.Debug().Str("user_id", in.UserID).Msg("full menu sent without model call")
		return in, nil
	}

	msgs, err := BuildPrompt(ctx, in, prompts)
	if err != nil {
		in.fail(contractx.StageRespond, err)
		return in, nil
	}

	resp, err := responder.Respond(ctx, contractx.RespondRequest{
		UserID:   in.UserID,
		Messages: msgs,
	})
	if err != nil {
		in.fail(contractx.StageRespond, err)
		return in, nil
	}

	in.Messages = msgs
	if resp.Message != nil {
		in.Messages = append(in.Messages, resp.Message)
	}
	if len(resp.ToolRequests) > 0 {
		in.PendingCalls = resp.ToolRequests
		return in, nil
	}
	in.Reply = resp.Reply
	return in, nil
}

// RouteAfterRespond is the single conditional edge of the dialogue graph.
func RouteAfterRespond(_ context.Context, in *GraphState) (string, error) {
	if in == nil {
		return "", fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if len(in.PendingCalls) > 0 {
		return NodeExecuteTools, nil
	}
	return NodeSaveState, nil
}

// BuildPrompt assembles the RESPOND messages from the turn state.
func BuildPrompt(ctx context.Context, in *GraphState, prompts promptx.PromptSet) ([]*schema.Message, error) {
	var history []*schema.Message
	if in.Conversation != nil {
		history = make([]*schema.Message, 0, len(in.Conversation.RecentMessages)+1)
		for _, m := range in.Conversation.RecentMessages {
			switch m.Role {
			case statex.RoleHuman:
				history = append(history, schema.UserMessage(m.Content))
			case statex.RoleAssistant:
				history = append(history, schema.AssistantMessage(m.Content, nil))
			}
		}
	}
	history = append(history, schema.UserMessage(in.Text))

	input := promptx.RespondInput{
		UserID:  in.UserID,
		Step:    in.CurrentStep,
		History: history,
	}
	if in.Customer != nil {
		raw, err := sonic.MarshalString(in.Customer)
		if err != nil {
			return nil, fmt.Errorf("encode customer snapshot: %w", err)
		}
		input.CustomerName = in.Customer.FullName()
		input.CustomerJSON = raw
	}
	if in.ActiveOrder != nil {
		raw, err := sonic.MarshalString(in.ActiveOrder)
		if err != nil {
			return nil, fmt.Errorf("encode order snapshot: %w", err)
		}
		input.ActiveOrderJSON = raw
	}

	return prompts.BuildRespond(ctx, input)
}
