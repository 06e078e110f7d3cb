// Package render is the mini-language behind admin-authored message
// templates: literal {{variable}} substitution plus a single-level
// {{#if key}}...{{/if}} block. No nesting, no loops, no expressions;
// templates must stay trivially previewable with fixed sample data.
package render

import "strings"

// Render resolves conditionals, then substitutes variables. Missing
// variables render as empty strings.
func Render(template string, vars map[string]string) string {
	return substitute(resolveConditionals(template, vars), vars)
}

// resolveConditionals keeps or drops each {{#if key}}...{{/if}} body based
// on whether vars holds a non-empty value for key. Malformed blocks are
// left as literal text.
func resolveConditionals(s string, vars map[string]string) string {
	const opener = "{{#if "
	const closer = "{{/if}}"

	var b strings.Builder
	for {
		start := strings.Index(s, opener)
		if start < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:start])

		rest := s[start+len(opener):]
		keyEnd := strings.Index(rest, "}}")
		if keyEnd < 0 {
			b.WriteString(s[start:])
			break
		}
		key := strings.TrimSpace(rest[:keyEnd])

		body := rest[keyEnd+2:]
		end := strings.Index(body, closer)
		if end < 0 {
			b.WriteString(s[start:])
			break
		}

		if vars[key] != "" {
			b.WriteString(body[:end])
		}
		s = body[end+len(closer):]
	}
	return b.String()
}

func substitute(s string, vars map[string]string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:start])
		key := strings.TrimSpace(s[start+2 : start+end])
		b.WriteString(vars[key])
		s = s[start+end+2:]
	}
	return b.String()
}
