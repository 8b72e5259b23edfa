package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/spacebio/knowledge-engine/backend/internal/util"
	"github.com/spacebio/knowledge-engine/backend/pkg/common"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DisplayName cleans a recognized span for display: compatibility
// normalization, single spaces, no surrounding punctuation or possessive.
func DisplayName(name string) string {
	s := util.CollapseWhitespace(norm.NFKC.String(name))
	s = trimEdges(s)
	for _, suffix := range []string{"'s", "’s"} {
		if strings.HasSuffix(s, suffix) {
			s = trimEdges(strings.TrimSuffix(s, suffix))
		}
	}
	return s
}

// trimEdges keeps inner periods of abbreviations such as "U.S." but drops a
// lone sentence-final one.
func trimEdges(s string) string {
	s = strings.TrimFunc(s, isEdgeNoise)
	s = strings.TrimLeft(s, ".")
	if strings.HasSuffix(s, ".") && strings.Count(s, ".") == 1 {
		s = strings.TrimFunc(strings.TrimSuffix(s, "."), isEdgeNoise)
	}
	return s
}

func isEdgeNoise(r rune) bool {
	if r == '.' {
		return false
	}
	return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// NameKey is the case-insensitive identity of a name. "NASA", "Nasa" and
// "nasa" share one key.
func NameKey(name string) string {
	return cases.Fold().String(DisplayName(name))
}

// NewEntity builds an entity from a recognized span. It returns false when
// nothing remains of the name after cleaning.
func NewEntity(category common.Category, name string) (common.Entity, bool) {
	display := DisplayName(name)
	if display == "" || !strings.ContainsFunc(display, unicode.IsLetter) {
		return common.Entity{}, false
	}
	return common.Entity{
		Category: category,
		NameKey:  cases.Fold().String(display),
		Name:     display,
	}, true
}

// PublicationKey derives the stable identity of a publication from its
// title and source URL, so re-ingesting the same inputs addresses the same
// node.
func PublicationKey(title, sourceURL string) string {
	sum := sha256.Sum256([]byte(NameKey(title) + "\n" + strings.TrimSpace(sourceURL)))
	return hex.EncodeToString(sum[:])
}

func NewPublication(doc common.Document) common.Publication {
	title := util.CollapseWhitespace(doc.Title)
	return common.Publication{
		Key:       PublicationKey(title, doc.SourceURL),
		Title:     title,
		SourceURL: strings.TrimSpace(doc.SourceURL),
		DOI:       NormalizeDOI(doc.DOI),
	}
}

// doiPrefixes are resolver and scheme prefixes found in front of DOIs in
// manifests and user input.
var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi.org/",
	"doi:",
}

// NormalizeDOI strips resolver prefixes and surrounding space. Case is kept
// for display; lookups compare case-insensitively.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	lower := strings.ToLower(doi)
	for _, prefix := range doiPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(doi[len(prefix):])
		}
	}
	return doi
}

// IsPublicationKey reports whether s has the shape of a PublicationKey.
func IsPublicationKey(s string) bool {
	if len(s) != 2*sha256.Size {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
