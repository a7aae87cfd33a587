// Package heavy runs the multi-stage "heavy mode" pipeline: a fixed chain
// of single-shot completions (deconstruct, critique, research, write,
// finalize) that shares no history with regular conversations.
package heavy

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/relaybot/internal/llm"
	"github.com/nugget/relaybot/internal/prompts"
	"github.com/nugget/relaybot/internal/toolcall"
	"github.com/nugget/relaybot/internal/tools"
)

// NoResearchText stands in for research notes when the research stage
// produced nothing usable.
const NoResearchText = "No research performed."

// Toolbox is what the research stage needs from the tool registry.
// *tools.Registry implements it.
type Toolbox interface {
	Dispatch(ctx context.Context, call *toolcall.Call) tools.Result
	List() []*tools.Tool
}

// Reporter receives the status trail after every stage. Each call carries
// the whole trail so far; lines are only ever appended.
type Reporter interface {
	Report(ctx context.Context, trail string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, trail string)

// Report implements Reporter.
func (f ReporterFunc) Report(ctx context.Context, trail string) { f(ctx, trail) }

// StageError reports which stage aborted a run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("heavy: %s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Run is the record of one pipeline execution.
type Run struct {
	ID          string `json:"id"`
	Prompt      string `json:"prompt"`
	Plan        string `json:"plan"`
	RefinedPlan string `json:"refined_plan"`
	Research    string `json:"research"`
	// ResearchTool names the tool the researcher used, if any.
	ResearchTool string `json:"research_tool,omitempty"`
	Draft        string `json:"draft"`
	Final        string `json:"final"`
	// Trail holds the status lines in the order they were reported.
	Trail   []string      `json:"trail"`
	Elapsed time.Duration `json:"elapsed"`
}

// Config controls the pipeline shape.
type Config struct {
	// SkipCritic selects the four-stage form; the plan goes to research
	// unrefined.
	SkipCritic bool
}

// Pipeline runs heavy-mode requests. It holds no per-run state and is
// safe for concurrent use.
type Pipeline struct {
	cfg    Config
	llm    llm.Chatter
	tools  Toolbox
	logger *slog.Logger

	toolListOnce sync.Once
	toolList     string
}

// New creates a pipeline. tb may be nil, in which case research is never
// performed.
func New(cfg Config, chatter llm.Chatter, tb Toolbox, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, llm: chatter, tools: tb, logger: logger}
}

// stageCount is the number of reported stages.
func (p *Pipeline) stageCount() int {
	if p.cfg.SkipCritic {
		return 4
	}
	return 5
}

// Run executes the pipeline for prompt. On success the returned Run
// carries the final answer. A failure in any stage other than research
// stops the run, reports a failure line and returns a *StageError along
// with the partial record; the partial outputs are not an answer.
func (p *Pipeline) Run(ctx context.Context, prompt string, rep Reporter) (*Run, error) {
	start := time.Now()
	run := &Run{ID: uuid.NewString(), Prompt: prompt}
	log := p.logger.With("run_id", run.ID)
	if rep == nil {
		rep = ReporterFunc(func(context.Context, string) {})
	}

	total := p.stageCount()
	step := 0
	report := func(line string) {
		run.Trail = append(run.Trail, line)
		rep.Report(ctx, strings.Join(run.Trail, "\n"))
	}
	fail := func(stage string, err error) (*Run, error) {
		log.Error("heavy mode stage failed", "stage", stage, "error", err)
		report(fmt.Sprintf("Heavy mode failed during %s: %v", stage, err))
		run.Elapsed = time.Since(start)
		return run, &StageError{Stage: stage, Err: err}
	}

	log.Info("heavy mode started", "stages", total)
	report(fmt.Sprintf("Heavy mode started (%d stages).", total))

	var err error

	step++
	if run.Plan, err = p.stage(ctx, prompts.DeconstructorSystem, prompt); err != nil {
		return fail("deconstruction", err)
	}
	report(fmt.Sprintf("[%d/%d] Plan drafted.", step, total))

	run.RefinedPlan = run.Plan
	if !p.cfg.SkipCritic {
		step++
		if run.RefinedPlan, err = p.stage(ctx, prompts.CriticSystem, prompts.CriticInput(prompt, run.Plan)); err != nil {
			return fail("critique", err)
		}
		report(fmt.Sprintf("[%d/%d] Plan refined.", step, total))
	}

	step++
	run.Research, run.ResearchTool = p.research(ctx, log, prompt, run.RefinedPlan)
	if run.ResearchTool != "" {
		report(fmt.Sprintf("[%d/%d] Research done with %s.", step, total, run.ResearchTool))
	} else {
		report(fmt.Sprintf("[%d/%d] %s", step, total, NoResearchText))
	}

	step++
	if run.Draft, err = p.stage(ctx, prompts.WriterSystem, prompts.WriterInput(prompt, run.RefinedPlan, run.Research)); err != nil {
		return fail("writing", err)
	}
	report(fmt.Sprintf("[%d/%d] Draft written.", step, total))

	step++
	if run.Final, err = p.stage(ctx, prompts.FinalizerSystem, prompts.FinalizerInput(prompt, run.Draft)); err != nil {
		return fail("finalizing", err)
	}
	report(fmt.Sprintf("[%d/%d] Final answer ready.", step, total))

	run.Elapsed = time.Since(start)
	log.Info("heavy mode completed",
		"research_tool", run.ResearchTool,
		"elapsed", run.Elapsed.Round(time.Millisecond),
	)
	return run, nil
}

// stage performs one single-shot completion with its own framing.
func (p *Pipeline) stage(ctx context.Context, system, input string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("heavy mode stage panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.llm.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: input},
	})
}

// research asks for at most one tagged tool call and runs it. Any
// problem yields NoResearchText; research never aborts the run.
func (p *Pipeline) research(ctx context.Context, log *slog.Logger, prompt, plan string) (notes, tool string) {
	if p.tools == nil {
		return NoResearchText, ""
	}

	reply, err := p.stage(ctx, prompts.ResearcherSystem(p.researchTools()), prompts.ResearcherInput(prompt, plan))
	if err != nil {
		log.Warn("research stage failed", "error", err)
		return NoResearchText, ""
	}

	call, ok := toolcall.Parse(toolcall.DialectTagged, reply)
	if !ok {
		log.Debug("researcher made no tool call")
		return NoResearchText, ""
	}

	res := p.dispatch(ctx, call)
	if !res.OK() {
		log.Warn("research tool failed", "tool", call.Name, "error", res.Err)
		return NoResearchText, ""
	}
	log.Debug("research tool completed", "tool", call.Name, "output_len", len(res.Output))
	return res.Output, call.Name
}

func (p *Pipeline) dispatch(ctx context.Context, call *toolcall.Call) (res tools.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = tools.Result{Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return p.tools.Dispatch(ctx, call)
}

func (p *Pipeline) researchTools() string {
	p.toolListOnce.Do(func() {
		p.toolList = prompts.ToolList(toolcall.DialectTagged, p.tools.List())
	})
	return p.toolList
}
