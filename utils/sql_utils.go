package utils

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// CreatePgxIdentifier constructs pgx.Identifier out of a table name, optionally including schema.
// The input string can be SCHEMA.TABLE or TABLE (no matter the letter case).
// A wrong input string with more than one "." symbol will report an error to the log and return
// the whole input string to be wrapped as a single name,
// usually resulting in a wrong identifier that will fail the SQL query.
func CreatePgxIdentifier(tableNameWithOrWithoutSchema string) pgx.Identifier {
	s := tableNameWithOrWithoutSchema
	if strings.Contains(s, ".") {
		parts := strings.Split(s, ".")
		if len(parts) != 2 {
			Logger.Error("Invalid identifier format. Expected 'schema_name.table_name'",
				zap.String("tableName", s))
		} else {
			return pgx.Identifier{parts[0], parts[1]}
		}
	}
	return pgx.Identifier{s}
}

// SanitizeTableName sanitizes a table name, optionally including schema, ensuring the format is valid for SQL queries.
// The input string SCHEMA.TABLE will be returned as "SCHEMA"."TABLE",
// and the input string "TABLE" will be returned as "TABLE".
func SanitizeTableName(tableNameWithOrWithoutSchema string) string {
	return CreatePgxIdentifier(tableNameWithOrWithoutSchema).Sanitize()
}

// SplitFullTableName splits a full table name into its schema and table components if a schema is specified.
// If no schema is included, the schema is returned as an empty string.
func SplitFullTableName(fullTableName string) (schema string, table string, err error) {
	table = fullTableName
	if strings.Contains(fullTableName, ".") {
		parts := strings.Split(fullTableName, ".")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", "", fmt.Errorf("unexpected table name format: %q", fullTableName)
		}
		schema, table = parts[0], parts[1]
	}
	return schema, table, nil
}
