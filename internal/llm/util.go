package llm

import (
	"encoding/json"
	"strings"
)

const fence = "```"

// CleanJSONBlock returns the JSON value inside a completion. Models wrap
// bundles and bullet lists in code fences or surround them with prose even
// when asked not to. The first valid object or array wins; text holding no
// valid JSON comes back trimmed so the decoder reports the error.
func CleanJSONBlock(text string) string {
	text = stripFence(strings.TrimSpace(text))
	if json.Valid([]byte(text)) {
		return text
	}
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		if v := balancedPrefix(text[i:]); v != "" && json.Valid([]byte(v)) {
			return v
		}
	}
	return text
}

// stripFence removes a leading ``` fence, its language tag and the closing fence
func stripFence(text string) string {
	if !strings.HasPrefix(text, fence) {
		return text
	}
	text = strings.TrimPrefix(text, fence)
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		tag := text[:nl]
		if len(tag) < 20 && !strings.ContainsAny(tag, " {[") {
			text = text[nl+1:]
		}
	}
	if end := strings.LastIndex(text, fence); end >= 0 {
		text = text[:end]
	}
	return strings.TrimSpace(text)
}

// balancedPrefix returns the bracket-balanced prefix of text starting at
// its first byte, skipping brackets inside strings, or "" when unbalanced
func balancedPrefix(text string) string {
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != ch {
				return ""
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return text[:i+1]
			}
		}
	}
	return ""
}
