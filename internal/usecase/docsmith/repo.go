package docsmith

import (
	"regexp"
	"strings"

	"github.com/Travbz/doc-smith/internal/domain"
)

var shorthandRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// NormalizeRepoRef turns "owner/repo" into a GitHub HTTPS URL. http(s) and
// git@ references are returned unchanged.
func NormalizeRepoRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", domain.NewDomainError("NormalizeRepoRef", domain.ErrValidation, "empty repository reference")
	case strings.HasPrefix(ref, "https://"), strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "git@"):
		return ref, nil
	case shorthandRe.MatchString(ref):
		return "https://github.com/" + ref, nil
	}
	return "", domain.NewDomainError("NormalizeRepoRef", domain.ErrValidation, "unrecognized repository reference "+ref)
}

// RepoName returns "owner/repo" for a normalized repository URL.
func RepoName(url string) string {
	url = strings.TrimSuffix(strings.TrimSuffix(url, "/"), ".git")
	if strings.HasPrefix(url, "git@") {
		if _, rest, ok := strings.Cut(url, ":"); ok {
			return rest
		}
		return url
	}
	parts := strings.Split(url, "/")
	if len(parts) < 2 {
		return url
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1]
}
