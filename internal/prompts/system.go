// Package prompts contains all LLM prompt templates used by the
// orchestrator.
package prompts

import (
	"fmt"

	"github.com/aviara/copilot/internal/settings"
)

// systemTemplate is the assistant's base instruction set. The single
// format verb is the tone directive.
const systemTemplate = `You are CoPilot, an aviation education assistant for student and certificated pilots.

You help with flight training concepts, regulations, weather interpretation, and aircraft operations. You have tools for fetching METARs and TAFs, current surface weather, and searching the reference manuals (FAR/AIM, PHAK, AFH, POH).

Guidelines:
- Use the reasoning_step tool to record each step of your thinking before answering a question that needs analysis.
- When a question involves current weather, always fetch it rather than guessing.
- When citing regulations or handbook procedures, search the relevant manual and ground your answer in the returned passages.
- Search one manual per call; issue separate calls for additional manuals.
- You are an educational aid, not a flight instructor or dispatcher. For decisions affecting a real flight, remind the pilot that they are the final authority.

%s`

// Tone directives keyed by the user's tone setting.
const (
	toneProfessional = "Tone: precise and formal. Use standard aviation terminology and cite sources where applicable."
	toneBalanced     = "Tone: clear and approachable, with correct terminology explained when first used."
	toneFriendly     = "Tone: warm and encouraging, like a patient CFI on a good day. Keep terminology correct but casual."
)

// System returns the system prompt parameterized by tone.
func System(tone settings.Tone) string {
	directive := toneBalanced
	switch tone {
	case settings.ToneProfessional:
		directive = toneProfessional
	case settings.ToneFriendly:
		directive = toneFriendly
	}
	return fmt.Sprintf(systemTemplate, directive)
}

// titleTemplate asks for a display title. The single format verb is the
// user's first message.
const titleTemplate = `Generate a title for a conversation that starts with the following message. Respond with the title only: no quotes, no punctuation at the end, five words at most.

Message:
%s`

// Title returns the title-generation prompt for a first user message.
func Title(firstMessage string) string {
	return fmt.Sprintf(titleTemplate, firstMessage)
}

// EmptyResponseFallback is the user-facing text used when the loop
// terminates without the model producing any content.
const EmptyResponseFallback = "I wasn't able to compose a response to that. Please try rephrasing your question."
