package expander

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/dshills/memsearch-mcp/pkg/types"
)

// MaxTerms caps expansion output to bound the fan-out of later phases
const MaxTerms = 6

// buildPrompt asks for a structured list of related terms
func buildPrompt(query string) string {
	return fmt.Sprintf(`You expand search queries for a personal memory store.
Give 4 to 7 short terms or phrases closely related to the query "%s": synonyms, related concepts and likely keywords.
Respond with JSON only, in the form {"terms": ["term1", "term2", "term3", "term4"]}.`, query)
}

// trimFences removes a surrounding markdown code fence, if any
func trimFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// Drop the info string (e.g. json) on the opening fence line
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	} else {
		text = strings.TrimPrefix(text, "json")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// ParseTerms strictly decodes a model response into terms. The response must be a
// JSON array of strings or an object with a "terms" array of strings; anything
// else is a parse failure. Free text around the JSON is not scraped.
func ParseTerms(response, query string) ([]string, error) {
	text := trimFences(response)
	if text == "" {
		return nil, goerr.Wrap(types.ErrParseFailure, "empty model response")
	}

	var raw []string
	switch text[0] {
	case '[':
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, goerr.Wrap(types.ErrParseFailure, "response is not a JSON string array",
				goerr.V("error", err.Error()), goerr.V("response", preview(text)))
		}
	case '{':
		var obj struct {
			Terms *[]string `json:"terms"`
		}
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return nil, goerr.Wrap(types.ErrParseFailure, "response is not a terms object",
				goerr.V("error", err.Error()), goerr.V("response", preview(text)))
		}
		if obj.Terms == nil {
			return nil, goerr.Wrap(types.ErrParseFailure, "response object has no terms field",
				goerr.V("response", preview(text)))
		}
		raw = *obj.Terms
	default:
		return nil, goerr.Wrap(types.ErrParseFailure, "response is not JSON",
			goerr.V("response", preview(text)))
	}

	terms := normalizeTerms(raw, query)
	if len(terms) == 0 {
		return nil, goerr.Wrap(types.ErrParseFailure, "response contained no usable terms",
			goerr.V("response", preview(text)))
	}
	return terms, nil
}

// normalizeTerms trims, drops empties and the query itself, dedups case-insensitively and caps at MaxTerms
func normalizeTerms(raw []string, query string) []string {
	seen := map[string]bool{strings.ToLower(strings.TrimSpace(query)): true}
	terms := make([]string, 0, MaxTerms)
	for _, term := range raw {
		term = strings.TrimSpace(term)
		key := strings.ToLower(term)
		if term == "" || seen[key] {
			continue
		}
		seen[key] = true
		terms = append(terms, term)
		if len(terms) == MaxTerms {
			break
		}
	}
	return terms
}

// FallbackTerms derives deterministic variants of a multi-word query:
// underscore joined, hyphen joined and concatenated. Single words have no variants.
func FallbackTerms(query string) []string {
	words := strings.Fields(query)
	if len(words) < 2 {
		return []string{}
	}
	return normalizeTerms([]string{
		strings.Join(words, "_"),
		strings.Join(words, "-"),
		strings.Join(words, ""),
	}, query)
}

func preview(s string) string {
	const max = 200
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
