package mu

import (
	"fmt"

	"github.com/machellerogden/thinksuit-sub000/internal/module"
)

// promptTable holds every adaptation and framing entry the module
// contributes. Keys follow the contract's naming: adapt.<signal> for
// signal-driven adaptations, length.<level> for budget guidance, and
// the task/sequential entries consumed by the execution strategies.
func promptTable() map[string]module.Prompt {
	return map[string]module.Prompt{
		// Contract signals.
		"adapt.ack-only": module.Text(
			"The user is acknowledging, not asking. Reply in a sentence or two at most."),
		"adapt.capture-only": module.Text(
			"The user is recording something for later. Confirm capture without expanding on it."),
		"adapt.explore": module.Text(
			"The user wants the space opened up. Favor breadth and generative framing over early convergence."),
		"adapt.analyze": module.Text(
			"The user wants rigor. Make assumptions explicit and show the reasoning, not just the conclusion."),
		"adapt.plan": module.Text(
			"The user wants a path, not just an answer. Sequence the work with dependencies made explicit."),

		// Claim signals.
		"adapt.universal": module.Text(
			"A universal claim is in play. Check for the counterexample before building on it."),
		"adapt.high-quantifier": module.Text(
			"Broad quantifiers are in play. Distinguish what actually holds from what is asserted to hold."),
		"adapt.forecast": module.Text(
			"A prediction is in play. Name the horizon and the conditions the forecast depends on."),
		"adapt.normative": module.Text(
			"A should-claim is in play. Surface the values and tradeoffs it takes for granted."),

		// Support signals.
		"adapt.source-cited": module.Text(
			"Sources are cited. Weigh their relevance and strength rather than restating them."),
		"adapt.tool-result-attached": module.Text(
			"Tool results are present in the conversation. Ground the response in them and say when they are insufficient."),
		"adapt.anecdote": module.Text(
			"The support offered is anecdotal. Treat it as one observation, not a base rate."),
		"adapt.unsupported": module.Text(
			"Claims are being made without support. Distinguish what is established from what is asserted."),

		// Calibration signals.
		"adapt.high-certainty": module.Text(
			"The phrasing is highly certain. Calibrate: state how confident the response actually warrants being."),
		"adapt.hedged": module.Text(
			"The phrasing is hedged. Resolve what can be resolved and be precise about the residual uncertainty."),

		// Temporal signals.
		"adapt.time-specified": module.Text(
			"Specific times are referenced. Keep temporal references consistent and explicit."),
		"adapt.undated": module.Text(
			"Time-sensitive content lacks dates. Anchor the response to explicit timeframes where it matters."),

		// Length guidance by budget level.
		"length.brief": module.Text(
			"Keep the response brief: a few sentences, no preamble."),
		"length.standard": module.Text(
			"Keep the response focused and complete; no padding."),
		"length.extended": module.Text(
			"Room exists for a developed response; use it only where depth earns its keep."),
		"length.comprehensive": module.Text(
			"A thorough treatment is warranted; cover the ground systematically."),

		// Tool guidance for task plans.
		"tools.guidance": module.Text(
			"Tools are available this turn. Use them to gather what you cannot know, " +
				"and fold results into the response rather than reciting them."),

		// Task-loop framing.
		"adapt.task-cycle": module.Dynamic(func(pc module.PromptContext) string {
			return fmt.Sprintf(
				"This is cycle %d of at most %d in a bounded working session. "+
					"Make concrete progress this cycle.", pc.Cycle, pc.MaxCycles)
		}),
		"adapt.task-synthesis": module.Text(
			"Synthesize what the work so far establishes into a final response. " +
				"Do not call tools; work from what has already been gathered."),

		// Task progress report blocks, by resource state.
		"adapt.task-assessment-available": module.Text(
			"Assessment: budget remains for further investigation."),
		"adapt.task-assessment-limited": module.Text(
			"Assessment: the remaining budget is nearly exhausted."),
		"adapt.task-guidance-available": module.Text(
			"Guidance: continue if open questions remain; otherwise move to the final response."),
		"adapt.task-guidance-limited": module.Text(
			"Guidance: stop gathering and produce the final response from what you have."),

		// Sequential framing markers.
		"adapt.sequential-overview": module.Dynamic(func(pc module.PromptContext) string {
			return fmt.Sprintf(
				"This conversation proceeds through %d focused steps, each in a "+
					"distinct voice. Each step builds on the previous ones.", pc.StepCount)
		}),
		"adapt.sequential-step-start": module.Dynamic(func(pc module.PromptContext) string {
			return fmt.Sprintf("[Step %d of %d: %s]", pc.StepIndex, pc.StepCount, pc.Role)
		}),
		"adapt.sequential-step-end": module.Dynamic(func(pc module.PromptContext) string {
			return fmt.Sprintf("[End of step %d: %s]", pc.StepIndex, pc.Role)
		}),
		"adapt.sequential-handoff": module.Dynamic(func(pc module.PromptContext) string {
			if pc.PreviousOutput == "" {
				return ""
			}
			return "Output of the previous step:\n\n" + pc.PreviousOutput
		}),
	}
}
