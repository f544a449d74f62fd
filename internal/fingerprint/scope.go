package fingerprint

import (
	"regexp"
	"strings"
)

// scopeHeaderPattern recognizes block headers that open a named lexical
// scope: function and method signatures (anything with a parameter list)
// and class/struct/namespace/enum/union declarations.
var scopeHeaderPattern = regexp.MustCompile(`(\w[\w:~<>,\s*&]*\([^)]*\))|^\s*(class|struct|namespace|union|enum|interface|impl)\b`)

// maxHeaderLength bounds the contribution of one scope header to the
// signature so pathological one-line declarations stay manageable.
const maxHeaderLength = 200

// scopeSignature performs a light lexical scan of the source up to the
// 1-based target line and returns the chain of enclosing named scopes
// joined by "::". The scan tracks brace depth while skipping string and
// character literals and comments; it does no semantic analysis. The
// second return value is false when the target line sits in top-level file
// context with no named enclosing scope.
func scopeSignature(lines []string, targetLine int) (string, bool) {
	if targetLine < 1 || targetLine > len(lines) {
		return "", false
	}

	var stack []string
	var header strings.Builder
	inBlockComment := false

	for i := 0; i < targetLine-1; i++ {
		line := lines[i]

		// Preprocessor directives never open scopes and have no trailing
		// semicolon to reset the pending header.
		if !inBlockComment && strings.HasPrefix(strings.TrimSpace(line), "#") {
			header.Reset()
			continue
		}

		inLineComment := false
		var stringDelim byte

		for j := 0; j < len(line); j++ {
			ch := line[j]

			if inBlockComment {
				if ch == '*' && j+1 < len(line) && line[j+1] == '/' {
					inBlockComment = false
					j++
				}
				continue
			}
			if inLineComment {
				continue
			}
			if stringDelim != 0 {
				if ch == '\\' {
					j++
				} else if ch == stringDelim {
					stringDelim = 0
				}
				continue
			}

			switch ch {
			case '/':
				if j+1 < len(line) {
					switch line[j+1] {
					case '/':
						inLineComment = true
						j++
						continue
					case '*':
						inBlockComment = true
						j++
						continue
					}
				}
				header.WriteByte(ch)
			case '"', '\'':
				stringDelim = ch
			case '{':
				stack = append(stack, headerName(header.String()))
				header.Reset()
			case '}':
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
				header.Reset()
			case ';':
				header.Reset()
			default:
				header.WriteByte(ch)
			}
		}
		// Line boundary acts as a soft separator inside a pending header.
		header.WriteByte(' ')
	}

	var parts []string
	for _, name := range stack {
		if name != "" {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "::"), true
}

// headerName normalizes the text preceding an opening brace and decides
// whether it names a scope. Anonymous blocks and control-flow statements
// contribute nothing to the signature.
func headerName(raw string) string {
	text := strings.Join(strings.Fields(raw), " ")
	if text == "" {
		return ""
	}
	if isControlFlowHeader(text) {
		return ""
	}
	if !scopeHeaderPattern.MatchString(text) {
		return ""
	}
	if len(text) > maxHeaderLength {
		text = text[:maxHeaderLength]
	}
	return text
}

// controlFlowKeywords open blocks that are not lexical scopes in the
// identity sense.
var controlFlowKeywords = []string{"if", "else", "for", "while", "switch", "do", "catch", "try", "select"}

func isControlFlowHeader(text string) bool {
	first := text
	if idx := strings.IndexAny(text, " (\t"); idx > 0 {
		first = text[:idx]
	}
	for _, kw := range controlFlowKeywords {
		if first == kw {
			return true
		}
	}
	return false
}
