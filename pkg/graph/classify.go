package graph

import (
	"strings"

	"github.com/spacebio/knowledge-engine/backend/pkg/common"
)

// labelCategories is the complete mapping from recognizer labels to graph
// categories. Labels not listed here are dropped.
var labelCategories = map[string]common.Category{
	"ORG":    common.CategoryOrganization,
	"PERSON": common.CategoryPerson,
	"GPE":    common.CategoryLocation,
}

// Classify maps a recognizer label onto a category.
func Classify(label string) (common.Category, bool) {
	c, ok := labelCategories[strings.ToUpper(strings.TrimSpace(label))]
	return c, ok
}
