package backup

import (
	"regexp"
)

// matches lines of `git fetch --porcelain` output except up to date refs ('=')
// <flag> <old-object-id> <new-object-id> <local-reference>
var updatedRefRgx = regexp.MustCompile(`(?m)^[^=] \w+ \w+ (refs\/[^\s]+)`)

// updatedRefs returns references which were added, updated or pruned
// according to the porcelain output of git fetch
func updatedRefs(output string) []string {
	var refs []string

	for _, match := range updatedRefRgx.FindAllStringSubmatch(output, -1) {
		refs = append(refs, match[1])
	}

	return refs
}
