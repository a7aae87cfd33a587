package toolcall

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_JSON(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantOK   bool
		wantName string
		wantArgs map[string]string
	}{
		{
			name:     "python call",
			text:     `{"execute_python": {"code": "print(1+1)"}}`,
			wantOK:   true,
			wantName: "execute_python",
			wantArgs: map[string]string{"code": "print(1+1)"},
		},
		{
			name:     "surrounding whitespace",
			text:     "\n  {\"web_search\": {\"query\": \"go news\"}}  \n",
			wantOK:   true,
			wantName: "web_search",
			wantArgs: map[string]string{"query": "go news"},
		},
		{
			name:     "non-string argument kept as JSON text",
			text:     `{"site_search": {"query": "q", "num_results": 3, "opts": {"a": [1, 2]}}}`,
			wantOK:   true,
			wantName: "site_search",
			wantArgs: map[string]string{"query": "q", "num_results": "3", "opts": `{"a":[1,2]}`},
		},
		{
			name:     "empty argument object",
			text:     `{"noop": {}}`,
			wantOK:   true,
			wantName: "noop",
			wantArgs: map[string]string{},
		},
		{name: "plain prose", text: "The answer is 2."},
		{name: "two keys", text: `{"a": {}, "b": {}}`},
		{name: "value not an object", text: `{"web_search": "latest AI news"}`},
		{name: "value null", text: `{"web_search": null}`},
		{name: "array", text: `[{"web_search": {}}]`},
		{name: "malformed", text: `{"web_search": {"query": }`},
		{name: "prose around JSON", text: `Sure: {"web_search": {"query": "x"}}`},
		{name: "tagged text in JSON dialect", text: `<xai:function_call name="fetch_url"><arg name="url">http://x</arg></xai:function_call>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, ok := Parse(DialectJSON, tt.text)
			require.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				require.Nil(t, call)
				return
			}
			require.Equal(t, tt.wantName, call.Name)
			require.Equal(t, tt.wantArgs, call.Arguments)
		})
	}
}

func TestParse_Tagged(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantOK   bool
		wantName string
		wantArgs map[string]string
	}{
		{
			name:     "namespaced fetch",
			text:     `<xai:function_call name="fetch_url"><arg name="url">http://x</arg></xai:function_call>`,
			wantOK:   true,
			wantName: "fetch_url",
			wantArgs: map[string]string{"url": "http://x"},
		},
		{
			name:     "no namespace",
			text:     `<function_call name="web_search"><arg name="query">golang</arg></function_call>`,
			wantOK:   true,
			wantName: "web_search",
			wantArgs: map[string]string{"query": "golang"},
		},
		{
			name: "embedded in prose with multiline value",
			text: "Let me check.\n<xai:function_call name=\"execute_python\">\n<arg name=\"code\">\nfor i in range(2):\n    print(i)\n</arg>\n</xai:function_call>\nDone.",
			wantOK:   true,
			wantName: "execute_python",
			wantArgs: map[string]string{"code": "for i in range(2):\n    print(i)"},
		},
		{
			name:     "escaped entities",
			text:     `<xai:function_call name="execute_python"><arg name="code">print(1 &lt; 2 &amp;&amp; True)</arg></xai:function_call>`,
			wantOK:   true,
			wantName: "execute_python",
			wantArgs: map[string]string{"code": "print(1 < 2 && True)"},
		},
		{
			name:     "first call wins",
			text:     `<a:function_call name="one"></a:function_call><a:function_call name="two"></a:function_call>`,
			wantOK:   true,
			wantName: "one",
			wantArgs: map[string]string{},
		},
		{name: "unterminated", text: `<xai:function_call name="fetch_url"><arg name="url">http://x</arg>`},
		{name: "mismatched prefix", text: `<xai:function_call name="fetch_url"></abc:function_call>`},
		{name: "empty name", text: `<xai:function_call name=""><arg name="q">x</arg></xai:function_call>`},
		{name: "missing name", text: `<xai:function_call><arg name="q">x</arg></xai:function_call>`},
		{name: "malformed markup", text: `<xai:function_call name="x"><arg name="q">a < b</arg></xai:function_call>`},
		{name: "plain prose", text: "Nothing to call here."},
		{name: "JSON text in tagged dialect", text: `{"execute_python": {"code": "print(1)"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, ok := Parse(DialectTagged, tt.text)
			require.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				require.Nil(t, call)
				return
			}
			require.Equal(t, tt.wantName, call.Name)
			require.Equal(t, tt.wantArgs, call.Arguments)
		})
	}
}

func TestParseAny(t *testing.T) {
	call, ok := ParseAny(`{"web_search": {"query": "x"}}`)
	require.True(t, ok)
	require.Equal(t, "web_search", call.Name)

	call, ok = ParseAny(`<xai:function_call name="fetch_url"><arg name="url">http://x</arg></xai:function_call>`)
	require.True(t, ok)
	require.Equal(t, "fetch_url", call.Name)

	_, ok = ParseAny("hello")
	require.False(t, ok)
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{
		"":       DialectJSON,
		"json":   DialectJSON,
		"JSON":   DialectJSON,
		"tagged": DialectTagged,
		"xml":    DialectTagged,
	} {
		got, err := ParseDialect(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseDialect("yaml")
	require.Error(t, err)
}

func TestCallArg(t *testing.T) {
	c := &Call{Name: "site_search", Arguments: map[string]string{"query": "q", "num_results": ""}}
	require.Equal(t, "q", c.Arg("query", ""))
	require.Equal(t, "1", c.Arg("num_results", "1"))
	require.Equal(t, "d", c.Arg("missing", "d"))
}
