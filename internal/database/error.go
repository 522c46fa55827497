package database

import "strings"

var duplicateKeyErrStrings = []string{
	"duplicate key",            // postgres
	"UNIQUE constraint failed", // sqlite
}

// IsDuplicateKeyErr reports whether err is a unique key violation.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	for _, s := range duplicateKeyErrStrings {
		if strings.Contains(err.Error(), s) {
			return true
		}
	}
	return false
}
