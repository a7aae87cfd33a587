// Package prompts contains the LLM prompt text relaybot sends.
//
// Prompt text is Go code rather than config files because it is program logic:
// tool examples are rendered from the registry in the conversation's dialect,
// and the text can be validated by tests.
//
// Convention: each prompt category gets its own file (system.go, heavy.go,
// rename.go) with exported functions that accept the dynamic parts and
// return the fully interpolated prompt string.
package prompts
