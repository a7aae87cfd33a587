package prompts

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/nugget/relaybot/internal/toolcall"
	"github.com/nugget/relaybot/internal/tools"
)

// jsonSystemTemplate teaches the JSON dialect. The single format verb is
// the numbered tool list.
const jsonSystemTemplate = `You are a powerful AI assistant in a chat bot. You have tools to help users.

When you need a tool, respond ONLY with a JSON object where the key is the tool name and the value is the arguments object.

Available Tools & Format Examples:
%s

Tool Use Flow:
1. User sends a message.
2. If a tool is needed, you respond with the tool's JSON.
3. The system will execute the tool and return the result to you in a message with ` + "`role: \"tool\"`" + `.
4. You then formulate the final response to the user based on the tool's output.

If no tool is needed, just respond to the user directly in plain text.`

// taggedSystemTemplate teaches the tagged dialect.
const taggedSystemTemplate = `You are a powerful AI assistant in a chat bot. You have tools to help users.

When you need a tool, emit exactly one function call element and nothing after it:
<xai:function_call name="TOOL_NAME"><arg name="ARG_NAME">value</arg></xai:function_call>
Escape <, > and & inside argument values as &lt;, &gt; and &amp;.

Available Tools & Format Examples:
%s

The system will execute the call and return the result to you in a message with role "tool".
You then formulate the final response to the user based on the tool's output.

If no tool is needed, just respond to the user directly in plain text.`

// System returns the system prompt for a conversation in dialect d,
// listing every tool with an example call.
func System(d toolcall.Dialect, ts []*tools.Tool) string {
	if d == toolcall.DialectTagged {
		return fmt.Sprintf(taggedSystemTemplate, ToolList(d, ts))
	}
	return fmt.Sprintf(jsonSystemTemplate, ToolList(d, ts))
}

// ToolList renders a numbered tool list with one example call per tool
// in dialect d.
func ToolList(d toolcall.Dialect, ts []*tools.Tool) string {
	var b strings.Builder
	for i, t := range ts {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. `%s`: %s Example: `%s`", i+1, t.Name, t.Description, ExampleCall(d, t.Name, t.Example))
	}
	return b.String()
}

// ExampleCall renders one call in dialect d.
func ExampleCall(d toolcall.Dialect, name string, args map[string]string) string {
	if args == nil {
		args = map[string]string{}
	}
	if d != toolcall.DialectTagged {
		// Map keys marshal sorted, so the output is stable.
		var b strings.Builder
		enc := json.NewEncoder(&b)
		enc.SetEscapeHTML(false)
		_ = enc.Encode(map[string]map[string]string{name: args})
		return strings.TrimSuffix(b.String(), "\n")
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, `<xai:function_call name="%s">`, xmlEscape(name))
	for _, k := range keys {
		fmt.Fprintf(&b, `<arg name="%s">%s</arg>`, xmlEscape(k), xmlEscape(args[k]))
	}
	b.WriteString(`</xai:function_call>`)
	return b.String()
}

// WithSymbols appends the custom symbols available in a guild so the
// model can use them verbatim. An empty list returns prompt unchanged.
func WithSymbols(prompt string, symbols []string) string {
	if len(symbols) == 0 {
		return prompt
	}
	return prompt + "\n\nCustom emoji available in this server (write the code exactly as shown to use one): " +
		strings.Join(symbols, " ")
}

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
