package tools

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/nugget/relaybot/internal/toolcall"
)

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.DiscardHandler))
}

func TestDispatch_UnknownTool(t *testing.T) {
	r := newTestRegistry()

	res := r.Dispatch(context.Background(), &toolcall.Call{Name: "launch_rockets"})

	if res.Output != "Error: Unknown tool 'launch_rockets'." {
		t.Errorf("Output = %q", res.Output)
	}
	var unavailable *ErrToolUnavailable
	if !errors.As(res.Err, &unavailable) || unavailable.ToolName != "launch_rockets" {
		t.Errorf("Err = %v, want *ErrToolUnavailable for launch_rockets", res.Err)
	}
	if res.OK() {
		t.Error("OK() = true for unknown tool")
	}
}

func TestDispatch_HandlerOutcomes(t *testing.T) {
	boom := errors.New("boom")
	r := newTestRegistry()
	r.Register(&Tool{Name: "echo", Handler: func(_ context.Context, args map[string]string) (string, error) {
		return "echo:" + args["v"], nil
	}})
	r.Register(&Tool{Name: "fail_text", Handler: func(context.Context, map[string]string) (string, error) {
		return "Custom failure text", boom
	}})
	r.Register(&Tool{Name: "fail_bare", Handler: func(context.Context, map[string]string) (string, error) {
		return "", boom
	}})
	r.Register(&Tool{Name: "panics", Handler: func(context.Context, map[string]string) (string, error) {
		panic("kaboom")
	}})
	r.Register(&Tool{Name: "make", ArtifactArg: "filename", Handler: func(context.Context, map[string]string) (string, error) {
		return "made", nil
	}})

	tests := []struct {
		call         toolcall.Call
		wantOutput   string
		wantOK       bool
		wantArtifact string
	}{
		{toolcall.Call{Name: "echo", Arguments: map[string]string{"v": "hi"}}, "echo:hi", true, ""},
		{toolcall.Call{Name: "echo"}, "echo:", true, ""},
		{toolcall.Call{Name: "fail_text"}, "Custom failure text", false, ""},
		{toolcall.Call{Name: "fail_bare"}, "Error: boom", false, ""},
		{toolcall.Call{Name: "panics"}, "Error: tool 'panics' failed: kaboom", false, ""},
		{toolcall.Call{Name: "make", Arguments: map[string]string{"filename": "a.txt"}}, "made", true, "a.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.call.Name, func(t *testing.T) {
			res := r.Dispatch(context.Background(), &tt.call)
			if res.Output != tt.wantOutput {
				t.Errorf("Output = %q, want %q", res.Output, tt.wantOutput)
			}
			if res.OK() != tt.wantOK {
				t.Errorf("OK() = %v, want %v (err %v)", res.OK(), tt.wantOK, res.Err)
			}
			if res.Artifact != tt.wantArtifact {
				t.Errorf("Artifact = %q, want %q", res.Artifact, tt.wantArtifact)
			}
		})
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	r := newTestRegistry()
	for _, name := range []string{"x_search", "create_artifact", "fetch_url"} {
		r.Register(&Tool{Name: name})
	}
	var names []string
	for _, tool := range r.List() {
		names = append(names, tool.Name)
	}
	if got := strings.Join(names, ","); got != "create_artifact,fetch_url,x_search" {
		t.Errorf("List() = %s", got)
	}
	if r.Get("fetch_url") == nil || r.Get("nope") != nil {
		t.Error("Get returned wrong tool")
	}
}

func TestConversationIDFromContext(t *testing.T) {
	if got := ConversationIDFromContext(context.Background()); got != "heavy" {
		t.Errorf("empty context = %q, want heavy", got)
	}
	ctx := WithConversationID(context.Background(), "chan-42")
	if got := ConversationIDFromContext(ctx); got != "chan-42" {
		t.Errorf("ConversationIDFromContext = %q, want chan-42", got)
	}
}

func TestErrToolUnavailable(t *testing.T) {
	err := &ErrToolUnavailable{ToolName: "web_search"}
	if got, want := err.Error(), `tool "web_search" is not available`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
