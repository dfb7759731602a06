package binder

import (
	"bytes"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Tokenize splits free-text input into positional tokens the way a shell
// splits a simple command line: whitespace separates tokens, single and
// double quotes group, backslash escapes. Nothing is expanded; $VAR stays
// literal. Anything beyond a simple command (pipes, redirections, ;, &,
// comments, substitutions) is rejected with a *TokenizeError.
func Tokenize(input string) ([]string, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}

	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(true),
	)
	file, err := parser.Parse(strings.NewReader(input), "")
	if err != nil {
		return nil, &TokenizeError{Input: input, Reason: err.Error()}
	}

	if len(file.Last) > 0 {
		return nil, unsupported(input, "'#' starts a comment")
	}
	if len(file.Stmts) != 1 {
		return nil, unsupported(input, "multiple statements")
	}

	stmt := file.Stmts[0]
	switch {
	case len(stmt.Comments) > 0:
		return nil, unsupported(input, "'#' starts a comment")
	case len(stmt.Redirs) > 0:
		return nil, unsupported(input, "redirection")
	case stmt.Background || stmt.Coprocess:
		return nil, unsupported(input, "'&'")
	case stmt.Negated:
		return nil, unsupported(input, "leading '!'")
	}

	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok {
		return nil, unsupported(input, "compound command or pipeline")
	}

	tokens := make([]string, 0, len(call.Assigns)+len(call.Args))
	for _, assign := range call.Assigns {
		tok, err := assignText(assign)
		if err != nil {
			return nil, &TokenizeError{Input: input, Reason: err.Error()}
		}
		tokens = append(tokens, tok)
	}
	for _, word := range call.Args {
		tok, err := wordText(word)
		if err != nil {
			return nil, &TokenizeError{Input: input, Reason: err.Error()}
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

func unsupported(input, what string) *TokenizeError {
	return &TokenizeError{Input: input, Reason: what + " is not supported in arguments; quote it"}
}

// assignText restores a leading NAME=value word, which the parser reads as
// an assignment.
func assignText(a *syntax.Assign) (string, error) {
	if a.Name == nil || a.Index != nil || a.Array != nil || a.Naked {
		return "", fmt.Errorf("unsupported assignment-like argument")
	}
	op := "="
	if a.Append {
		op = "+="
	}
	if a.Value == nil {
		return a.Name.Value + op, nil
	}
	val, err := wordText(a.Value)
	if err != nil {
		return "", err
	}
	return a.Name.Value + op + val, nil
}

// wordText renders a word as the literal text the user meant.
func wordText(word *syntax.Word) (string, error) {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(unescape(p.Value, false))
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				switch ip := inner.(type) {
				case *syntax.Lit:
					sb.WriteString(unescape(ip.Value, true))
				case *syntax.ParamExp:
					sb.WriteString(source(ip))
				default:
					return "", fmt.Errorf("substitution is not supported in arguments; use single quotes")
				}
			}
		case *syntax.ParamExp:
			sb.WriteString(source(p))
		default:
			return "", fmt.Errorf("substitution is not supported in arguments; use single quotes")
		}
	}
	return sb.String(), nil
}

// source prints a node back to its shell source form.
func source(node syntax.Node) string {
	var buf bytes.Buffer
	if err := syntax.NewPrinter().Print(&buf, node); err != nil {
		return ""
	}
	return buf.String()
}

// unescape removes shell backslash escapes from a literal. Inside double
// quotes only \$ \` \" \\ and line continuations are escapes.
func unescape(s string, quoted bool) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			sb.WriteByte(c)
			continue
		}
		next := s[i+1]
		switch {
		case next == '\n':
			i++
		case !quoted:
			sb.WriteByte(next)
			i++
		case strings.IndexByte("$`\"\\", next) >= 0:
			sb.WriteByte(next)
			i++
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
