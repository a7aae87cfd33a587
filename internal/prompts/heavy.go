package prompts

import "fmt"

// Stage framings for heavy mode. Each stage is a separate, single-shot
// completion: the system message below plus one user message built by the
// matching *Input function.
const (
	DeconstructorSystem = `You are the Deconstructor. Break the user's request into a clear, numbered plan: the sub-questions to answer, the facts that must be checked, and the shape the final answer should take. Output only the plan.`

	CriticSystem = `You are the Critic. Review the plan against the original request. Point out gaps, wrong assumptions and unnecessary steps, then output a refined plan that fixes them. Output only the refined plan.`

	WriterSystem = `You are the Writer. Using the request, the plan and the research notes, write a complete, accurate answer. Prefer facts from the research; say so plainly when something could not be verified.`

	FinalizerSystem = `You are the Finalizer. Polish the draft into the final answer: fix errors, remove repetition, tighten wording and keep the formatting readable in a chat message. Output only the final answer.`
)

// researcherTemplate frames the research stage. It always uses the tagged
// dialect; the single format verb is the tool list.
const researcherTemplate = `You are the Researcher. Read the plan and decide whether one tool call would supply facts the answer needs. If so, respond with exactly one call in this form and nothing else:
<xai:function_call name="TOOL_NAME"><arg name="ARG_NAME">value</arg></xai:function_call>

Available Tools & Format Examples:
%s

If no research is needed, reply with a short sentence saying so.`

// ResearcherSystem returns the research stage framing listing toolList
// (see ToolList with the tagged dialect).
func ResearcherSystem(toolList string) string {
	return fmt.Sprintf(researcherTemplate, toolList)
}

// CriticInput is the critic's user message.
func CriticInput(request, plan string) string {
	return fmt.Sprintf("Original request:\n%s\n\nPlan:\n%s", request, plan)
}

// ResearcherInput is the researcher's user message.
func ResearcherInput(request, plan string) string {
	return fmt.Sprintf("Original request:\n%s\n\nPlan:\n%s", request, plan)
}

// WriterInput is the writer's user message.
func WriterInput(request, plan, research string) string {
	return fmt.Sprintf("Original request:\n%s\n\nPlan:\n%s\n\nResearch notes:\n%s", request, plan, research)
}

// FinalizerInput is the finalizer's user message.
func FinalizerInput(request, draft string) string {
	return fmt.Sprintf("Original request:\n%s\n\nDraft:\n%s", request, draft)
}
