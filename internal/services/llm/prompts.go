package llm

import "strings"

// DefaultOptimizeTemplate rewrites one raw transcription into a clean diary
// section. The pipeline fills {transcription} and {day}.
const DefaultOptimizeTemplate = `You are an editor preparing a personal diary.

Rewrite the voice transcription below into a well formed diary passage
for {day}. Correct transcription artifacts, fix grammar and punctuation,
and keep the author's first-person voice and all factual content. Do not
invent events that are not in the transcription.

Also pick a single short category word for the passage (for example
work, family, health, travel, ideas).

Respond with a JSON object:
{"content": "<rewritten passage>", "category": "<category word>"}

Transcription:
{transcription}`

// DefaultSummarizeTemplate merges a day's optimized passages into one entry.
// The pipeline fills {day} and {passages}.
const DefaultSummarizeTemplate = `You are composing a diary entry for {day}.

Combine the passages below, which were recorded at different times of the
day, into a single coherent journal entry written in the first person.
Preserve every event and detail, order them naturally, and remove
repetition between passages. Do not add commentary about the writing
process.

Passages:
{passages}`

// DefaultReportTemplate condenses a range of daily entries into one digest.
// The report service fills {from}, {to} and {entries}.
const DefaultReportTemplate = `Summarize the journal entries between {from} and {to}.

Write a short narrative digest of the period in the first person, then a
bullet list of notable events. Base everything on the entries below and
nothing else.

Entries:
{entries}`

// RenderTemplate substitutes {name} placeholders with the supplied values.
// Unknown placeholders are left in place so a bad template is visible in
// the rendered prompt rather than silently dropped.
func RenderTemplate(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
