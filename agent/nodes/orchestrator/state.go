package orchestratornode

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
	"github.com/tanpawarit/chative-pizzeria/agent/data"
	"github.com/tanpawarit/chative-pizzeria/agent/intent"
	statex "github.com/tanpawarit/chative-pizzeria/agent/state"
)

var ErrInvalidUser = errors.New("user id is empty")

// ApologyText is the reply used whenever a stage cannot produce one.
const ApologyText = "Ay perdón, se me trabó algo acá. Me repites que necesitas? Con mucho gusto te ayudo."

func ApologyReply() contractx.TextReply {
	return contractx.TextReply{Text: ApologyText}
}

// Lookup is the read side of the tool registry used outside model control.
type Lookup interface {
	Customer(ctx context.Context, userID string) *data.Customer
	ActiveOrder(ctx context.Context, userID string) *data.ActiveOrder
	FullMenu() contractx.TextReply
}

// Conversations is the context manager surface a turn needs.
type Conversations interface {
	GetConversation(ctx context.Context, threadID string) *statex.ConversationContext
	AddMessage(ctx context.Context, threadID string, msg statex.Message)
	UpdateCustomerContext(ctx context.Context, threadID, key string, value any)
	Save(ctx context.Context, threadID string) error
}

type GraphInput struct {
	UserID string
	Text   string
}

type GraphOutput struct {
	Reply        contractx.TextReply
	Step         intent.Label
	FailedStages []contractx.Stage
}

// GraphState is owned by one turn and dropped after SAVE.
type GraphState struct {
	UserID string
	Text   string
	Now    time.Time

	Customer          *data.Customer
	ActiveOrder       *data.ActiveOrder
	CurrentStep       intent.Label
	ForceFullMenu     bool
	NeedsCustomerInfo bool
	ReadyToOrder      bool

	Conversation *statex.ConversationContext
	// Messages is the working list sent to the model, append-only in a turn.
	Messages     []*schema.Message
	PendingCalls []contractx.ToolRequest
	// ToolResults maps tool name to the arguments the model chose.
	ToolResults map[string]map[string]any
	Results     []contractx.ToolResult
	Image       *contractx.ImageDirective

	Reply        contractx.TextReply
	FailedStages []contractx.Stage
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, ErrInvalidUser
	}

	return &GraphState{
		UserID:            userID,
		Text:              strings.TrimSpace(in.Text),
		Now:               nowFn().UTC(),
		CurrentStep:       intent.Greeting,
		NeedsCustomerInfo: true,
		ToolResults:       map[string]map[string]any{},
	}, nil
}

// Failed reports whether an earlier stage already replaced the reply.
func (s *GraphState) Failed() bool {
	return len(s.FailedStages) > 0
}

func (s *GraphState) HasFailed(stage contractx.Stage) bool {
	return slices.Contains(s.FailedStages, stage)
}

// fail records a stage failure and substitutes the apology reply.
func (s *GraphState) fail(stage contractx.Stage, err error) {
	log.Error().Err(err).Str("user_id", s.UserID).Str("stage", string(stage)).Msg("dialogue stage failed")
	s.FailedStages = append(s.FailedStages, stage)
	s.PendingCalls = nil
	s.Reply = ApologyReply()
}

func Output(in *GraphState) GraphOutput {
	reply := in.Reply
	if reply.IsEmpty() {
		reply = ApologyReply()
	}
	return GraphOutput{
		Reply:        reply,
		Step:         in.CurrentStep,
		FailedStages: slices.Clone(in.FailedStages),
	}
}
