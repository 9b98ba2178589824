package render

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DisplayName turns a configuration key such as "rank_ordering" into a
// title such as "Rank Ordering".
func DisplayName(key string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(key, "_", " "))
}
