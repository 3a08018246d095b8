package contract

import "context"

type Responder interface {
	Respond(ctx context.Context, req RespondRequest) (RespondResponse, error)
}

type Finalizer interface {
	Finalize(ctx context.Context, req FinalizeRequest) (TextReply, error)
}

type Registry interface {
	Responder() Responder
	Finalizer() Finalizer
}

// ToolGateway executes model-selected tools on behalf of a user. Tool
// failures are reported inside ToolResult, never as the returned error.
type ToolGateway interface {
	Execute(ctx context.Context, userID string, reqs []ToolRequest) ([]ToolResult, error)
}
