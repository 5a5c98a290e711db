package orchestrator

import "strings"

// FormatReminder closes every prompt
const FormatReminder = "\nPlease return the result in the following format:\n{content: \"generated content\", filename: \"file name to save\"}"

// BuildPrompt joins the non-empty sections with blank lines. The context and
// task headers are only emitted when their section has text.
func BuildPrompt(systemPrompt, context, task string) string {
	sections := make([]string, 0, 6)
	add := func(s ...string) {
		for _, part := range s {
			if strings.TrimSpace(part) != "" {
				sections = append(sections, part)
			}
		}
	}

	add(systemPrompt)
	if strings.TrimSpace(context) != "" {
		add("Context:", context)
	}
	if strings.TrimSpace(task) != "" {
		add("Task:", task)
	}
	add(FormatReminder)

	return strings.Join(sections, "\n\n")
}
