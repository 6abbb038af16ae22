package ingestion

import "strings"

const summarySchema = `{
  "type": "object",
  "properties": {
    "title": {"type": "string"},
    "summary": {"type": "string"},
    "main_points": {"type": "array", "items": {"type": "string"}},
    "topics": {"type": "array", "items": {"type": "string"}},
    "entities": {"type": "array", "items": {"type": "string"}},
    "key_concepts": {"type": "object", "additionalProperties": {"type": "string"}},
    "tags": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["title", "summary", "main_points", "topics", "entities", "key_concepts", "tags"]
}`

const summarySystemPrompt = `You are a precise content summarizer. Analyze the text you are given and create a structured summary.
Focus on extracting key information and main concepts. Be concise but comprehensive.

Output ONLY valid JSON which complies with the schema below. Do not include any preamble, explanation,
or markdown fences. Start your response with the opening brace { and end it with the closing brace }.

{schema}

Rules:
- "title" is a short descriptive title of at most ten words.
- "summary" is one paragraph of plain prose.
- "main_points" lists the key points from the content.
- "entities" lists important named entities (people, organizations, places, products).
- "key_concepts" maps each key concept to a one sentence explanation.
- "tags" lists 3 to 8 lowercase keywords of 1-3 words that describe the subject.
- Include only information present in the text. Do not invent facts.`

const mergeSystemPrompt = `You are combining partial summaries of one long document into a single structured summary.
The input is the summaries of consecutive parts of the document, in order. Treat them as one text.

` + "Follow the same output rules as for a single text:\n\n"

// summaryPrompt returns the system prompt for summarizing one text.
func summaryPrompt() string {
	return strings.Replace(summarySystemPrompt, "{schema}", summarySchema, 1)
}

// mergePrompt returns the system prompt for the pass that combines chunk summaries.
func mergePrompt() string {
	return mergeSystemPrompt + summaryPrompt()
}
