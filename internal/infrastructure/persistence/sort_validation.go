package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// DocumentSortFields are the header columns a document listing can be ordered by.
// Every header table carries them.
var DocumentSortFields = map[string]bool{
	"created_at":   true,
	"updated_at":   true,
	"validated_at": true,
	"number":       true,
	"status":       true,
}

// documentOrder builds the ORDER BY clause of a document listing. id breaks
// ties so pages are stable.
func documentOrder(orderBy, orderDir string) string {
	field := ValidateSortField(orderBy, DocumentSortFields, "created_at")
	return field + " " + ValidateSortOrder(orderDir) + ", id ASC"
}
