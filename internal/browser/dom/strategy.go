// internal/browser/dom/strategy.go
package dom

import (
	"fmt"
	"regexp"
	"strings"
)

// StrategyKind enumerates how a Locator selects its structural candidates.
type StrategyKind int

const (
	KindAttribute StrategyKind = iota
	KindRole
	KindTestID
	KindText
	KindPlaceholder
	KindRaw
)

func (k StrategyKind) String() string {
	switch k {
	case KindAttribute:
		return "attribute"
	case KindRole:
		return "role"
	case KindTestID:
		return "testid"
	case KindText:
		return "text"
	case KindPlaceholder:
		return "placeholder"
	default:
		return "raw"
	}
}

// implicitRoles lists the native elements that carry an ARIA role without an
// explicit role attribute.
var implicitRoles = map[string]string{
	"button":    `button, input[type="button"], input[type="submit"]`,
	"textbox":   `input:not([type]), input[type="text"], input[type="search"], textarea`,
	"searchbox": `input[type="search"]`,
	"listitem":  `li`,
	"link":      `a[href]`,
	"list":      `ul, ol`,
	"heading":   `h1, h2, h3, h4, h5, h6`,
}

// Strategy is the structural half of a Locator: it compiles to one CSS selector.
type Strategy struct {
	Kind     StrategyKind
	selector string
	label    string
}

// Selector returns the CSS selector queried under the Locator's scope.
func (s Strategy) Selector() string { return s.selector }

func (s Strategy) String() string {
	return fmt.Sprintf("%s=%s", s.Kind, s.label)
}

// ByAttribute selects elements carrying attribute name. An empty value matches
// any value.
func ByAttribute(name, value string) Strategy {
	sel := fmt.Sprintf("[%s]", name)
	label := name
	if value != "" {
		sel = fmt.Sprintf(`[%s="%s"]`, name, cssEscape(value))
		label = fmt.Sprintf("%s=%q", name, value)
	}
	return Strategy{Kind: KindAttribute, selector: sel, label: label}
}

// ByRole selects elements with an explicit role attribute or the matching implicit role.
func ByRole(role string) Strategy {
	role = strings.ToLower(strings.TrimSpace(role))
	sel := fmt.Sprintf(`[role="%s"]`, cssEscape(role))
	if native, ok := implicitRoles[role]; ok {
		sel += ", " + native
	}
	return Strategy{Kind: KindRole, selector: sel, label: role}
}

// ByTestID selects elements by their data-testid attribute.
func ByTestID(id string) Strategy {
	return Strategy{Kind: KindTestID, selector: fmt.Sprintf(`[data-testid="%s"]`, cssEscape(id)), label: id}
}

// ByText selects every element; a Locator built on it must carry a Match, which
// is evaluated against each element's own text.
func ByText() Strategy {
	return Strategy{Kind: KindText, selector: "*", label: "*"}
}

// ByPlaceholder selects form controls whose placeholder contains text.
func ByPlaceholder(text string) Strategy {
	return Strategy{Kind: KindPlaceholder, selector: fmt.Sprintf(`[placeholder*="%s"]`, cssEscape(text)), label: text}
}

// Raw passes a CSS selector through unchanged.
func Raw(selector string) Strategy {
	return Strategy{Kind: KindRaw, selector: selector, label: selector}
}

func cssEscape(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)
	return r.Replace(v)
}

// Match is the optional disambiguation criterion of a Locator: a literal
// (case-insensitive substring) or a regular expression.
type Match struct {
	literal string
	re      *regexp.Regexp
}

// Text matches any candidate string containing s, ignoring case.
func Text(s string) *Match {
	return &Match{literal: strings.ToLower(s)}
}

// Pattern matches candidates against re as given.
func Pattern(re *regexp.Regexp) *Match {
	return &Match{re: re}
}

// MustPattern compiles expr case-insensitively.
func MustPattern(expr string) *Match {
	return Pattern(regexp.MustCompile("(?i)" + expr))
}

// MatchString reports whether s satisfies the criterion. Empty strings never match.
func (m *Match) MatchString(s string) bool {
	if s == "" {
		return false
	}
	if m.re != nil {
		return m.re.MatchString(s)
	}
	return strings.Contains(strings.ToLower(s), m.literal)
}

func (m *Match) String() string {
	if m.re != nil {
		return "/" + m.re.String() + "/"
	}
	return fmt.Sprintf("%q", m.literal)
}
