package agents

import (
	"fmt"
	"strings"
)

// ContextSeparator joins retrieved chunks in the answer prompt.
const ContextSeparator = "\n\n---\n\n"

// AnswerPrompt asks for an exam-ready answer grounded in the retrieved chunks.
func AnswerPrompt(contextChunks []string, question string) string {
	return fmt.Sprintf(`You are an expert Assistant.

Answer the question in a detailed, clear, and exam-ready manner using the context below.
Your response should be structured in full sentences and cover all important aspects of the topic.
Where applicable, give examples and explain technical terms in simple language.

Context:
%s

Question: %s
Answer:
`, strings.Join(contextChunks, ContextSeparator), question)
}

func contradictionPrompt(answer, context string) string {
	return fmt.Sprintf(`Review the following answer against the provided context to detect any contradictions,
inconsistencies, or logical fallacies. Flag discrepancies clearly and explain why they are contradictory,
referencing specific elements from the context. Recommend how to resolve or reframe the contradictions for clarity,
accuracy, and alignment with the original context.

Context:
%s

Answer:
%s

List any contradictions or write 'None':`, context, answer)
}

func actionPrompt(text string) string {
	return fmt.Sprintf(`Given the response below, analyze it to identify immediate next steps,
potential improvements, and strategic follow-up questions. Translate insights into clear,
actionable recommendations that can be implemented in real time.
Prioritize suggestions based on impact and feasibility. Where relevant, include timelines,
responsible roles, tools or frameworks to apply, and any red flags to monitor.

Answer:
%s

Plan:
`, text)
}

func personaPrompt(content, persona string) string {
	return fmt.Sprintf(`Rewrite the following answer in the style, tone, and mindset of a %s.
Reflect their unique voice, values, priorities, and communication style. Maintain the original meaning,
but adapt phrasing, structure, and emphasis to match how this persona would genuinely express the content.

Answer:
%s

Persona-style answer:
`, persona, content)
}
