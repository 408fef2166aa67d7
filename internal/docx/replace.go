package docx

import (
	"regexp"
	"sort"
	"strings"
)

// Token wraps a bare placeholder name in the guillemet markers used by the
// production templates.
func Token(name string) string {
	return "«" + name + "»"
}

var (
	textRunPattern = regexp.MustCompile(`(?s)(<w:t(?:\s[^>]*)?>)(.*?)(</w:t>)`)
	tokenPattern   = regexp.MustCompile(`\x{00ab}([^\x{00ab}\x{00bb}]+)\x{00bb}`)
)

// Placeholders holds the substitution values for one record: token name to
// replacement text, plus token name to inline image for image-bearing tokens.
// Names are bare, without the guillemet markers.
type Placeholders struct {
	Text   map[string]string
	Images map[string]Image
}

// ReplaceText substitutes every «NAME» token that has a text value in values
// across the document body, headers and footers. Tokens with no value are left
// untouched. Replacement happens per text run, matching how the templates are
// authored: each token occupies a single run.
func (d *Document) ReplaceText(values map[string]string) {
	if len(values) == 0 {
		return
	}
	for _, name := range d.textPartNames() {
		content, ok := d.part(name)
		if !ok {
			continue
		}
		d.setPart(name, replaceInContent(content, values))
	}
}

func replaceInContent(content string, values map[string]string) string {
	return textRunPattern.ReplaceAllStringFunc(content, func(run string) string {
		groups := textRunPattern.FindStringSubmatch(run)
		text := groups[2]
		if !strings.Contains(text, "«") {
			return run
		}
		replaced := tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
			bare := token[len("«") : len(token)-len("»")]
			value, ok := values[bare]
			if !ok {
				return token
			}
			return escapeXML(value)
		})
		return groups[1] + replaced + groups[3]
	})
}

// ClearTokens blanks out every remaining «NAME» token in the document. Used on
// trailing manifest rows that have no record to display.
func (d *Document) ClearTokens() {
	for _, name := range d.textPartNames() {
		content, ok := d.part(name)
		if !ok {
			continue
		}
		d.setPart(name, clearTokensInContent(content))
	}
}

func clearTokensInContent(content string) string {
	return textRunPattern.ReplaceAllStringFunc(content, func(run string) string {
		groups := textRunPattern.FindStringSubmatch(run)
		if !strings.Contains(groups[2], "«") {
			return run
		}
		return groups[1] + tokenPattern.ReplaceAllString(groups[2], "") + groups[3]
	})
}

// Tokens returns the distinct bare token names present anywhere in the
// document, sorted. Useful for validating a template against a record set.
func (d *Document) Tokens() []string {
	seen := make(map[string]struct{})
	for _, name := range d.textPartNames() {
		content, ok := d.part(name)
		if !ok {
			continue
		}
		for _, match := range tokenPattern.FindAllStringSubmatch(content, -1) {
			seen[match[1]] = struct{}{}
		}
	}
	tokens := make([]string, 0, len(seen))
	for token := range seen {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

func escapeXML(value string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(value)
}
