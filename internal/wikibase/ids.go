package wikibase

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	itemIDRegex     = regexp.MustCompile(`^Q[1-9][0-9]*$`)
	propertyIDRegex = regexp.MustCompile(`^P[1-9][0-9]*$`)
)

// IDFromURL converts an entity reference returned by the query service
// (e.g. "http://wikibase.svc/entity/Q42") into its compact identifier.
func IDFromURL(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	id := ref[strings.LastIndex(ref, "/")+1:]
	if id == "" {
		return "", fmt.Errorf("invalid entity reference %q", ref)
	}
	return id, nil
}

// IsItemID reports whether s is a compact item identifier such as "Q42".
func IsItemID(s string) bool { return itemIDRegex.MatchString(s) }

// IsPropertyID reports whether s is a compact property identifier such as "P7".
func IsPropertyID(s string) bool { return propertyIDRegex.MatchString(s) }

// ItemTerm is the query-language term for an item.
func ItemTerm(id string) string { return "wd:" + id }

// PropertyTerm is the query-language term for the direct (truthy) value of a property.
func PropertyTerm(id string) string { return "wdt:" + id }

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// StringLiteral renders s as a double-quoted query-language literal.
func StringLiteral(s string) string {
	return `"` + literalEscaper.Replace(s) + `"`
}
