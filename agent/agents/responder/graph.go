package responder

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
)

func compileRespondGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
) (compose.Runnable[[]*schema.Message, *schema.Message], error) {
	graph := compose.NewGraph[[]*schema.Message, *schema.Message]()
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add respond model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "model"); err != nil {
		return nil, fmt.Errorf("add respond edge start->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add respond edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("responder.respond_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile respond graph: %w", err)
	}
	return runner, nil
}

func compileFinalizeGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
) (compose.Runnable[[]*schema.Message, contractx.TextReply], error) {
	graph := compose.NewGraph[[]*schema.Message, contractx.TextReply]()
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add finalize model node: %w", err)
	}
	if err := graph.AddLambdaNode("normalize", compose.InvokableLambda(
		func(ctx context.Context, msg *schema.Message) (contractx.TextReply, error) {
			return NormalizeReply(msg), nil
		},
	)); err != nil {
		return nil, fmt.Errorf("add finalize normalize node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "model"); err != nil {
		return nil, fmt.Errorf("add finalize edge start->model: %w", err)
	}
	if err := graph.AddEdge("model", "normalize"); err != nil {
		return nil, fmt.Errorf("add finalize edge model->normalize: %w", err)
	}
	if err := graph.AddEdge("normalize", compose.END); err != nil {
		return nil, fmt.Errorf("add finalize edge normalize->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("responder.finalize_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile finalize graph: %w", err)
	}
	return runner, nil
}

// NormalizeReply flattens a model message into a TextReply. Content comes
// first, followed by the text carried by any multi-part content; an image
// directive in the result is lifted out.
func NormalizeReply(msg *schema.Message) contractx.TextReply {
	if msg == nil {
		return contractx.TextReply{}
	}

	parts := make([]string, 0, len(msg.MultiContent)+1)
	if t := strings.TrimSpace(msg.Content); t != "" {
		parts = append(parts, t)
	}
	for _, part := range msg.MultiContent {
		if t := strings.TrimSpace(partText(part)); t != "" {
			parts = append(parts, t)
		}
	}
	text := strings.Join(parts, "\n")

	clean, directive := contractx.ExtractImageDirective(text)
	return contractx.TextReply{Text: clean, Image: directive}
}

// partText returns the text a part carries. Media parts keep any text the
// provider attached under Extra, such as an audio transcript.
func partText(part schema.ChatMessagePart) string {
	if part.Text != "" {
		return part.Text
	}

	var extra map[string]any
	switch {
	case part.AudioURL != nil:
		extra = part.AudioURL.Extra
	case part.ImageURL != nil:
		extra = part.ImageURL.Extra
	case part.VideoURL != nil:
		extra = part.VideoURL.Extra
	case part.FileURL != nil:
		extra = part.FileURL.Extra
	}
	for _, key := range []string{"transcript", "text", "caption"} {
		if s, ok := extra[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
