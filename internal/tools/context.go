package tools

import "context"

type conversationKey struct{}

// WithConversationID tags ctx with the conversation a dispatch belongs to.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationKey{}, id)
}

// ConversationIDFromContext returns the conversation tag on ctx. Heavy-mode
// research runs outside any conversation and reports "heavy".
func ConversationIDFromContext(ctx context.Context) string {
	if id, _ := ctx.Value(conversationKey{}).(string); id != "" {
		return id
	}
	return "heavy"
}
