package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/tanpawarit/chative-pizzeria/agent/nodes/orchestrator"
)

const (
	nodeValidateRequest = "validate_request"
	nodeLoadState       = "load_state"
	nodeRespond         = "respond"
	nodeExecuteTools    = nodex.NodeExecuteTools
	nodeFinalize        = "finalize"
	nodeSaveState       = nodex.NodeSaveState
	nodeOutput          = "output"
)

// compileHandleMessageGraph wires LOAD -> RESPOND -> (EXECUTE_TOOLS ->
// FINALIZE) -> SAVE. The only conditional edge leaves RESPOND.
func (o *Orchestrator) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode(nodeValidateRequest,
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeValidateRequest, err)
	}

	if err := graph.AddLambdaNode(nodeLoadState,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadState(ctx, in, o.tools, o.convs)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeLoadState, err)
	}

	if err := graph.AddLambdaNode(nodeRespond,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			ctx, cancel := stageContext(ctx)
			defer cancel()
			return nodex.Respond(ctx, in, o.prompts, o.models.Responder(), o.tools)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeRespond, err)
	}

	if err := graph.AddLambdaNode(nodeExecuteTools,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			ctx, cancel := stageContext(ctx)
			defer cancel()
			return nodex.ExecuteTools(ctx, in, o.tools)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeExecuteTools, err)
	}

	if err := graph.AddLambdaNode(nodeFinalize,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			ctx, cancel := stageContext(ctx)
			defer cancel()
			return nodex.Finalize(ctx, in, o.prompts, o.models.Finalizer())
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeFinalize, err)
	}

	if err := graph.AddLambdaNode(nodeSaveState,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			saveCtx, cancel := context.WithTimeout(ctx, o.saveTimeout)
			defer cancel()
			return nodex.SaveState(saveCtx, in, o.convs)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeSaveState, err)
	}

	if err := graph.AddLambdaNode(nodeOutput,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.Output(in), nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeOutput, err)
	}

	branch := compose.NewGraphBranch(
		nodex.RouteAfterRespond,
		map[string]bool{
			nodeExecuteTools: true,
			nodeSaveState:    true,
		},
	)
	if err := graph.AddBranch(nodeRespond, branch); err != nil {
		return nil, fmt.Errorf("add branch after %s: %w", nodeRespond, err)
	}

	edges := [][2]string{
		{compose.START, nodeValidateRequest},
		{nodeValidateRequest, nodeLoadState},
		{nodeLoadState, nodeRespond},
		{nodeExecuteTools, nodeFinalize},
		{nodeFinalize, nodeSaveState},
		{nodeSaveState, nodeOutput},
		{nodeOutput, compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
