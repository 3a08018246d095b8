package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
	nodex "github.com/tanpawarit/chative-pizzeria/agent/nodes/orchestrator"
	promptx "github.com/tanpawarit/chative-pizzeria/agent/prompt"
)

var ErrInvalidUser = nodex.ErrInvalidUser

const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeError    = "error"

	DefaultTurnTimeout = 45 * time.Second
	DefaultSaveTimeout = 5 * time.Second
)

// Conversations adds the per-user turn lock to the context manager surface.
type Conversations interface {
	nodex.Conversations
	Lock(ctx context.Context, threadID string) (func(), error)
}

// Tools is the tool registry as seen by the dialogue: model-driven execution
// plus the lookups LOAD and the full_menu fast path need.
type Tools interface {
	contractx.ToolGateway
	nodex.Lookup
}

// Observer receives per-turn measurements.
type Observer interface {
	TurnCompleted(outcome string, elapsed time.Duration)
	StageFailed(stage contractx.Stage)
}

type Orchestrator struct {
	convs   Conversations
	models  contractx.Registry
	tools   Tools
	prompts promptx.PromptSet

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	turnTimeout time.Duration
	saveTimeout time.Duration
	observer    Observer
	now         func() time.Time
}

type Option func(*Orchestrator)

func WithTurnTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.turnTimeout = d
		}
	}
}

func WithSaveTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.saveTimeout = d
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithPrompts(p promptx.PromptSet) Option {
	return func(o *Orchestrator) {
		o.prompts = p
	}
}

func New(
	convs Conversations,
	models contractx.Registry,
	tools Tools,
	opts ...Option,
) (*Orchestrator, error) {
	if convs == nil {
		return nil, errors.New("conversation manager is required")
	}
	if models == nil {
		return nil, errors.New("model registry is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}

	o := &Orchestrator{
		convs:       convs,
		models:      models,
		tools:       tools,
		prompts:     promptx.LoadPromptSet(),
		turnTimeout: DefaultTurnTimeout,
		saveTimeout: DefaultSaveTimeout,
		observer:    noopObserver{},
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// HandleMessage runs one turn for userID. Turns of the same user are
// serialized. Only an empty user id is reported as an error; every other
// failure yields the apology reply.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID string, text string) (contractx.TextReply, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return contractx.TextReply{}, ErrInvalidUser
	}
	start := o.now()

	unlock, err := o.convs.Lock(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("turn lock not acquired")
		o.observer.TurnCompleted(OutcomeError, o.now().Sub(start))
		return nodex.ApologyReply(), nil
	}
	defer unlock()

	turnCtx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	// The graph itself never sees the deadline or a client disconnect, so a
	// turn always reaches SAVE. Model and tool stages run under turnCtx.
	graphCtx := context.WithValue(context.WithoutCancel(ctx), turnContextKey{}, turnCtx)
	out, err := o.graphRunner.Invoke(graphCtx, nodex.GraphInput{
		UserID: userID,
		Text:   text,
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("dialogue graph failed")
		o.observer.TurnCompleted(OutcomeError, o.now().Sub(start))
		return nodex.ApologyReply(), nil
	}

	outcome := OutcomeOK
	for _, stage := range out.FailedStages {
		o.observer.StageFailed(stage)
		outcome = OutcomeDegraded
	}
	elapsed := o.now().Sub(start)
	o.observer.TurnCompleted(outcome, elapsed)

	log.Info().
		Str("user_id", userID).
		Str("step", out.Step.String()).
		Str("message_type", string(out.Reply.MessageType())).
		Str("outcome", outcome).
		Dur("elapsed", elapsed).
		Msg("turn completed")

	return out.Reply, nil
}

type turnContextKey struct{}

// stageContext derives the context for a deadline-bound stage from a node
// context. It keeps the node's values and ends when the turn does.
func stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	turn, ok := ctx.Value(turnContextKey{}).(context.Context)
	if !ok {
		return context.WithCancel(ctx)
	}
	stage, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(turn, func() {
		cancel(context.Cause(turn))
	})
	cancelDeadline := context.CancelFunc(func() {})
	if deadline, ok := turn.Deadline(); ok {
		stage, cancelDeadline = context.WithDeadline(stage, deadline)
	}
	return stage, func() {
		cancelDeadline()
		stop()
		cancel(nil)
	}
}

type noopObserver struct{}

func (noopObserver) TurnCompleted(string, time.Duration) {}

func (noopObserver) StageFailed(contractx.Stage) {}
