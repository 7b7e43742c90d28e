package qtool

import (
	"fmt"
	"strings"
)

// TokenKind classifies one argv template element.
type TokenKind int

const (
	TokenLiteral TokenKind = iota
	TokenValue             // {key}
	TokenFlag              // {key|--flag}
	TokenDir               // {key:dir}
	TokenOutDir            // {@out}
	TokenOutFile           // {@out:key}
	TokenInDir             // {@in}
)

// Token is a parsed argv template element.
type Token struct {
	Kind TokenKind
	Text string // literal text or flag name
	Key  string
}

// ParseTemplate parses argv template elements. Only whole elements are
// placeholders; braces inside a longer literal are kept verbatim.
func ParseTemplate(args []string) ([]Token, error) {
	tokens := make([]Token, 0, len(args))
	for _, arg := range args {
		if len(arg) < 3 || arg[0] != '{' || arg[len(arg)-1] != '}' {
			tokens = append(tokens, Token{Kind: TokenLiteral, Text: arg})
			continue
		}
		tok, err := parsePlaceholder(arg[1 : len(arg)-1])
		if err != nil {
			return nil, fmt.Errorf("args: %s: %w", arg, err)
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

func parsePlaceholder(body string) (Token, error) {
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "@") {
		name, key, _ := strings.Cut(body[1:], ":")
		switch name {
		case "out":
			if key == "" {
				return Token{Kind: TokenOutDir}, nil
			}
			return Token{Kind: TokenOutFile, Key: key}, nil
		case "in":
			if key != "" {
				return Token{}, fmt.Errorf("@in takes no key")
			}
			return Token{Kind: TokenInDir}, nil
		}
		return Token{}, fmt.Errorf("unknown placeholder @%s", name)
	}
	if key, flag, ok := strings.Cut(body, "|"); ok {
		if key == "" || flag == "" {
			return Token{}, fmt.Errorf("flag placeholder needs key and flag")
		}
		return Token{Kind: TokenFlag, Key: key, Text: flag}, nil
	}
	if key, mod, ok := strings.Cut(body, ":"); ok {
		if mod != "dir" {
			return Token{}, fmt.Errorf("unknown modifier %q", mod)
		}
		return Token{Kind: TokenDir, Key: key}, nil
	}
	return Token{Kind: TokenValue, Key: body}, nil
}
