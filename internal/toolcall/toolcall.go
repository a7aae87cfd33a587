// Package toolcall extracts a tool invocation from raw model text.
//
// Two wire formats exist. In the JSON dialect the whole reply is a single
// object whose only key names the tool:
//
//	{"execute_python": {"code": "print(1+1)"}}
//
// In the tagged dialect the call is an inline element, optionally
// namespaced, anywhere in the reply:
//
//	<xai:function_call name="fetch_url"><arg name="url">http://x</arg></xai:function_call>
//
// A conversation uses one dialect for its whole life, so Parse is a pure
// function of (dialect, text). Anything that does not match is "no call",
// never an error.
package toolcall

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

// Dialect selects the wire format a conversation's system prompt teaches.
type Dialect string

// Supported dialects.
const (
	DialectJSON   Dialect = "json"
	DialectTagged Dialect = "tagged"
)

// ParseDialect converts a config value to a Dialect. The empty string
// selects DialectJSON.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return DialectJSON, nil
	case "tagged", "xml":
		return DialectTagged, nil
	}
	return "", fmt.Errorf("unknown tool-call dialect %q (want json or tagged)", s)
}

// Call is one tool invocation requested by the model.
type Call struct {
	Name      string
	Arguments map[string]string
}

// Arg returns the named argument, or def when it is absent or empty.
func (c *Call) Arg(name, def string) string {
	if v, ok := c.Arguments[name]; ok && v != "" {
		return v
	}
	return def
}

// Parse extracts a call from text using dialect d.
func Parse(d Dialect, text string) (*Call, bool) {
	switch d {
	case DialectTagged:
		return parseTagged(text)
	default:
		return parseJSON(text)
	}
}

// ParseAny tries the JSON form first and falls back to the tagged form.
// Useful when the dialect that produced text is unknown.
func ParseAny(text string) (*Call, bool) {
	if c, ok := parseJSON(text); ok {
		return c, true
	}
	return parseTagged(text)
}

func parseJSON(text string) (*Call, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}

	var outer map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &outer); err != nil || len(outer) != 1 {
		return nil, false
	}

	for name, raw := range outer {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			return nil, false
		}
		args := make(map[string]string, len(fields))
		for k, v := range fields {
			args[k] = argString(v)
		}
		return &Call{Name: name, Arguments: args}, true
	}
	return nil, false
}

// argString returns a JSON string's value, or the compact JSON text of
// any other value.
func argString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

var (
	// openTagRe matches the start of a (possibly prefixed) call element.
	openTagRe = regexp.MustCompile(`<([A-Za-z_][\w.-]*:)?function_call[\s/>]`)
	// prefixRe matches a namespace prefix on any element name.
	prefixRe = regexp.MustCompile(`(</?)[A-Za-z_][\w.-]*:`)
)

type taggedCall struct {
	XMLName xml.Name `xml:"function_call"`
	Name    string   `xml:"name,attr"`
	Args    []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:",chardata"`
	} `xml:"arg"`
}

func parseTagged(text string) (*Call, bool) {
	loc := openTagRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil, false
	}
	start := loc[0]
	prefix := ""
	if loc[2] >= 0 {
		prefix = text[loc[2]:loc[3]]
	}

	closeTag := "</" + prefix + "function_call>"
	end := strings.Index(text[start:], closeTag)
	if end < 0 {
		return nil, false
	}
	fragment := text[start : start+end+len(closeTag)]
	fragment = prefixRe.ReplaceAllString(fragment, "$1")

	var tc taggedCall
	if err := xml.Unmarshal([]byte(fragment), &tc); err != nil {
		return nil, false
	}
	name := strings.TrimSpace(tc.Name)
	if name == "" {
		return nil, false
	}

	args := make(map[string]string, len(tc.Args))
	for _, a := range tc.Args {
		if a.Name == "" {
			continue
		}
		// Models often wrap values onto their own lines.
		args[a.Name] = strings.Trim(a.Value, "\r\n")
	}
	return &Call{Name: name, Arguments: args}, true
}
