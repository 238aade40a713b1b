package embeds

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// keyPattern is one of the ways the embed page hides its client key. The
// page rotates between them per request.
type keyPattern struct {
	name  string
	match *regexp.Regexp
	parts []*regexp.Regexp // sub-patterns whose values are concatenated; nil means one value
}

var (
	quotedValue  = regexp.MustCompile(`["'\x60]([a-zA-Z0-9]+)["'\x60]`)
	commentValue = regexp.MustCompile(`_is_th:([a-zA-Z0-9]+)`)

	keyPatterns = []keyPattern{
		{name: "meta", match: regexp.MustCompile(`<meta name="_gg_fb" content="[a-zA-Z0-9]+">`)},
		{name: "comment", match: regexp.MustCompile(`<!--\s+_is_th:[0-9a-zA-Z]+\s+-->`)},
		{
			name:  "lk_db",
			match: regexp.MustCompile(`<script>window\._lk_db\s+=\s+\{[xyz]:\s+["'][a-zA-Z0-9]+["'],\s+[xyz]:\s+["'][a-zA-Z0-9]+["'],\s+[xyz]:\s+["'][a-zA-Z0-9]+["']\};</script>`),
			parts: []*regexp.Regexp{
				regexp.MustCompile(`x:\s+["'][a-zA-Z0-9]+["']`),
				regexp.MustCompile(`y:\s+["'][a-zA-Z0-9]+["']`),
				regexp.MustCompile(`z:\s+["'][a-zA-Z0-9]+["']`),
			},
		},
		{name: "dpi", match: regexp.MustCompile(`<div\s+data-dpi="[0-9a-zA-Z]+"\s+[^>]*></div>`)},
		{name: "nonce", match: regexp.MustCompile(`<script nonce="[0-9a-zA-Z]+">`)},
		{name: "xy_ws", match: regexp.MustCompile(`<script>window\._xy_ws = ['"\x60][0-9a-zA-Z]+['"\x60];</script>`)},
	}
)

// extractClientKey finds the obfuscated client key in an embed page.
func extractClientKey(html string) (string, error) {
	for _, p := range keyPatterns {
		m := p.match.FindString(html)
		if m == "" {
			continue
		}

		switch {
		case p.name == "comment":
			if sub := commentValue.FindStringSubmatch(m); sub != nil {
				return sub[1], nil
			}
		case p.parts != nil:
			var b strings.Builder
			for _, part := range p.parts {
				sub := quotedValue.FindStringSubmatch(part.FindString(m))
				if sub == nil {
					return "", errors.Errorf("client key: incomplete %s pattern", p.name)
				}
				b.WriteString(sub[1])
			}
			return b.String(), nil
		default:
			if sub := quotedValue.FindStringSubmatch(m); sub != nil {
				return sub[1], nil
			}
		}
		return "", errors.Errorf("client key: no value in %s pattern", p.name)
	}
	return "", errors.New("client key: no obfuscation pattern matched")
}
