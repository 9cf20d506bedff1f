package models

import (
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

// isDuplicateKeyErr detects a unique index violation (MySQL error 1062).
// Pre-insert uniqueness checks race with concurrent inserts, so create paths
// still map this to a validation error instead of a 500.
func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
