package qa

import (
	"fmt"
	"strings"
)

// BuildPrompt assembles the question prompt: the conversation so far (if
// any), the subject under discussion, then the question.
func BuildPrompt(subject, question string, history []Exchange) string {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Conversation History:\n")
		for _, e := range history {
			sb.WriteString("Q: ")
			sb.WriteString(e.Question)
			sb.WriteString("\nA: ")
			sb.WriteString(e.Answer)
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(fmt.Sprintf("Comparison Summary:\n%s\n\nQuestion: %s\nAnswer:", subject, question))
	return sb.String()
}

func standardizePrompt(text string) string {
	return fmt.Sprintf("Please rephrase the following text in a more standard and formal language: '%s'", text)
}

func sqlPrompt(request, schema string) string {
	var sb strings.Builder
	sb.WriteString("Generate SQL for the following request: ")
	sb.WriteString(request)
	if schema != "" {
		sb.WriteString("\n\nAvailable tables:\n")
		sb.WriteString(schema)
	}
	sb.WriteString("\n\nReturn only the SQL statement, without explanation.")
	return sb.String()
}

// StripCodeFence removes a surrounding ``` block (with optional language
// tag) from model output.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
