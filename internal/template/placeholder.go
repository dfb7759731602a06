package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// AllArgs is the Index of a {{args}} placeholder.
const AllArgs = -1

// MaxIndex is the highest positional index a placeholder may use.
const MaxIndex = 255

// placeholderRe matches {{args}} and {{args[N]}} with optional inner
// whitespace, plus an optional escaping backslash. The index group accepts
// anything; non-numeric indexes are reported by ScanPlaceholders.
var placeholderRe = regexp.MustCompile(`(\\?)\{\{\s*args\s*(?:\[([^\]]*)\]\s*)?\}\}`)

// Placeholder is one occurrence of an argument placeholder in a body.
type Placeholder struct {
	// Start and End are byte offsets of the whole match, escape included.
	Start int
	End   int
	// Index is the positional index, or AllArgs for {{args}}.
	Index int
	// Escaped placeholders are emitted literally, without the backslash.
	Escaped bool
}

// Literal returns the text an escaped placeholder stands for.
func (p Placeholder) Literal(body string) string {
	return body[p.Start+1 : p.End]
}

// ScanPlaceholders finds every argument placeholder in text, in order.
func ScanPlaceholders(text string) ([]Placeholder, error) {
	matches := placeholderRe.FindAllStringSubmatchIndex(text, -1)
	out := make([]Placeholder, 0, len(matches))
	for _, m := range matches {
		p := Placeholder{Start: m[0], End: m[1], Index: AllArgs, Escaped: m[3] > m[2]}
		if m[4] >= 0 {
			raw := text[m[4]:m[5]]
			idx, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil || idx < 0 || idx > MaxIndex {
				if p.Escaped {
					continue
				}
				return nil, &IndexError{Raw: raw, Offset: m[0], TooLarge: err == nil && idx > MaxIndex}
			}
			p.Index = idx
		}
		out = append(out, p)
	}
	return out, nil
}

// IndexError reports a placeholder whose index is not an integer between 0
// and MaxIndex.
type IndexError struct {
	Raw      string
	Offset   int
	TooLarge bool
}

func (e *IndexError) Error() string {
	if e.TooLarge {
		return fmt.Sprintf("invalid placeholder index %q: must not exceed %d", e.Raw, MaxIndex)
	}
	return fmt.Sprintf("invalid placeholder index %q", e.Raw)
}

// Usage summarizes which placeholders a text references.
type Usage struct {
	// All is true when {{args}} appears.
	All bool `json:"all"`
	// MaxIndex is the highest {{args[N]}} index, or -1 when none appears.
	MaxIndex int `json:"maxIndex"`
}

// Positional reports whether any {{args[N]}} placeholder is present.
func (u Usage) Positional() bool { return u.MaxIndex >= 0 }

// Arity is the number of tokens positional placeholders require.
func (u Usage) Arity() int { return u.MaxIndex + 1 }

func usageOf(placeholders []Placeholder) Usage {
	u := Usage{MaxIndex: -1}
	for _, p := range placeholders {
		if p.Escaped {
			continue
		}
		if p.Index == AllArgs {
			u.All = true
		} else if p.Index > u.MaxIndex {
			u.MaxIndex = p.Index
		}
	}
	return u
}
