package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is the slice of a pgx pool the extractor needs.
// *pgxpool.Pool satisfies this.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const columnsQuery = `
SELECT c.table_schema, c.table_name, c.column_name, c.data_type,
       c.is_nullable = 'YES' AS nullable,
       COALESCE(c.column_default, '') AS column_default
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE t.table_type = 'BASE TABLE'
  AND c.table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY c.table_schema, c.table_name, c.ordinal_position`

const primaryKeysQuery = `
SELECT kcu.table_schema, kcu.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY'
  AND tc.table_schema NOT IN ('pg_catalog', 'information_schema')`

const foreignKeysQuery = `
SELECT kcu.table_schema, kcu.table_name, kcu.column_name,
       ccu.table_name AS target_table, ccu.column_name AS target_column
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.table_schema = tc.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = tc.constraint_name
 AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY'
  AND tc.table_schema NOT IN ('pg_catalog', 'information_schema')`

// tableKey identifies a table across the three extraction queries.
type tableKey struct {
	schema, table string
}

// Extract reads the database structure from information_schema: every base
// table outside the system schemas, its columns in ordinal position, and its
// primary/foreign key constraints. Documents come back ordered as the
// columns query returns them.
func Extract(ctx context.Context, q Querier) ([]Document, error) {
	pks, err := extractPrimaryKeys(ctx, q)
	if err != nil {
		return nil, err
	}
	fks, err := extractForeignKeys(ctx, q)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, columnsQuery)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	defer rows.Close()

	var docs []Document
	index := make(map[tableKey]int)

	for rows.Next() {
		var schemaName, tableName string
		var col Column
		if err := rows.Scan(&schemaName, &tableName, &col.Name, &col.Type, &col.Nullable, &col.Default); err != nil {
			return nil, fmt.Errorf("scanning column row: %w", err)
		}

		key := tableKey{schemaName, tableName}
		col.PrimaryKey = pks[key][col.Name]
		col.ForeignKey = fks[key][col.Name]

		i, ok := index[key]
		if !ok {
			i = len(docs)
			index[key] = i
			docs = append(docs, Document{Schema: schemaName, Table: tableName})
		}
		docs[i].Columns = append(docs[i].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading column rows: %w", err)
	}

	return docs, nil
}

func extractPrimaryKeys(ctx context.Context, q Querier) (map[tableKey]map[string]bool, error) {
	rows, err := q.Query(ctx, primaryKeysQuery)
	if err != nil {
		return nil, fmt.Errorf("querying primary keys: %w", err)
	}
	defer rows.Close()

	pks := make(map[tableKey]map[string]bool)
	for rows.Next() {
		var schemaName, tableName, colName string
		if err := rows.Scan(&schemaName, &tableName, &colName); err != nil {
			return nil, fmt.Errorf("scanning primary key row: %w", err)
		}
		key := tableKey{schemaName, tableName}
		if pks[key] == nil {
			pks[key] = make(map[string]bool)
		}
		pks[key][colName] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading primary key rows: %w", err)
	}
	return pks, nil
}

func extractForeignKeys(ctx context.Context, q Querier) (map[tableKey]map[string]string, error) {
	rows, err := q.Query(ctx, foreignKeysQuery)
	if err != nil {
		return nil, fmt.Errorf("querying foreign keys: %w", err)
	}
	defer rows.Close()

	fks := make(map[tableKey]map[string]string)
	for rows.Next() {
		var schemaName, tableName, colName, targetTable, targetCol string
		if err := rows.Scan(&schemaName, &tableName, &colName, &targetTable, &targetCol); err != nil {
			return nil, fmt.Errorf("scanning foreign key row: %w", err)
		}
		key := tableKey{schemaName, tableName}
		if fks[key] == nil {
			fks[key] = make(map[string]string)
		}
		fks[key][colName] = targetTable + "." + targetCol
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading foreign key rows: %w", err)
	}
	return fks, nil
}
