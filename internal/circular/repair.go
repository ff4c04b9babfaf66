package circular

import (
	"encoding/json"
	"regexp"
)

type repairRule struct {
	name    string
	pattern *regexp.Regexp
	replace string
}

// Order matters: comma cleanup runs before string re-closing and quote conversion.
var repairRules = []repairRule{
	{name: "trailing comma", pattern: regexp.MustCompile(`,(\s*[}\]])`), replace: "$1"},
	{name: "duplicate comma", pattern: regexp.MustCompile(`([,{\[])\s*,`), replace: "$1"},
	{name: "unterminated string", pattern: regexp.MustCompile(`(?m):(\s*)"([^"\n]*)$`), replace: `:$1"$2"`},
	{name: "single quoted key", pattern: regexp.MustCompile(`'([^'\n]*)'(\s*):`), replace: `"$1"$2:`},
	{name: "single quoted value", pattern: regexp.MustCompile(`:(\s*)'([^'\n]*)'`), replace: `:$1"$2"`},
}

// Repair applies the textual fixes for common model output defects until the
// text stops changing. Valid JSON is returned untouched and Repair(Repair(s)) == Repair(s).
func Repair(s string) string {
	if json.Valid([]byte(s)) {
		return s
	}

	for {
		next := s
		for _, rule := range repairRules {
			next = rule.pattern.ReplaceAllString(next, rule.replace)
		}
		if next == s {
			return s
		}
		s = next
	}
}
