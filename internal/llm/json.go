package llm

import (
	"regexp"
	"strings"
)

var codeBlockPattern = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// extractJSON pulls a JSON document out of model output that may wrap it in
// markdown fences or surrounding prose.
func extractJSON(text string) string {
	if matches := codeBlockPattern.FindStringSubmatch(text); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	text = strings.TrimSpace(text)

	startObj := strings.Index(text, "{")
	startArr := strings.Index(text, "[")

	start := -1
	isArray := false

	if startObj >= 0 && (startArr < 0 || startObj < startArr) {
		start = startObj
	} else if startArr >= 0 {
		start = startArr
		isArray = true
	}

	if start < 0 {
		return ""
	}

	text = text[start:]
	depth := 0
	inString := false
	escaped := false

	openBracket, closeBracket := byte('{'), byte('}')
	if isArray {
		openBracket, closeBracket = '[', ']'
	}

	for i := 0; i < len(text); i++ {
		c := text[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		if c == openBracket {
			depth++
		} else if c == closeBracket {
			depth--
			if depth == 0 {
				return text[:i+1]
			}
		}
	}

	return ""
}

// truncate shortens a string for error messages.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
