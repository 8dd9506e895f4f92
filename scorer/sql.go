package scorer

import (
	"context"
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/signalnine/gauntlet/eval"
)

// DialectMySQL is the only grammar the SQL parser implements. Postgres-only
// syntax such as CTEs, :: casts, ILIKE and RETURNING does not parse under it.
const DialectMySQL = "mysql"

// SQL passes when the output parses as one or more SQL statements. An empty
// dialect means DialectMySQL; any other dialect is rejected. An object output
// with a string "sql" field is parsed from that field.
func SQL(dialect string) (eval.Scorer, error) {
	switch strings.ToLower(dialect) {
	case "", DialectMySQL:
		return sqlScorer{}, nil
	default:
		return nil, fmt.Errorf("sql dialect %q is not supported (want %s)", dialect, DialectMySQL)
	}
}

type sqlScorer struct{}

func (sqlScorer) Name() string { return "sql" }

func (s sqlScorer) Score(_ context.Context, _, output any) (eval.Score, error) {
	text, err := sqlText(output)
	if err != nil {
		return eval.Score{}, err
	}

	stmts, err := parseStatements(text)
	if err != nil {
		return eval.Verdict(s.Name(), false, map[string]any{
			"valid": false,
			"error": err.Error(),
		}), nil
	}
	kinds := make([]string, len(stmts))
	for i, st := range stmts {
		kinds[i] = statementKind(st)
	}
	return eval.Verdict(s.Name(), true, map[string]any{
		"valid":           true,
		"statement_count": len(stmts),
		"statement_types": kinds,
	}), nil
}

func sqlText(output any) (string, error) {
	if m, ok := output.(map[string]any); ok {
		if q, ok := m["sql"].(string); ok {
			return q, nil
		}
	}
	return stringify(output, "")
}

func parseStatements(text string) ([]sqlparser.Statement, error) {
	pieces, err := sqlparser.SplitStatementToPieces(text)
	if err != nil {
		return nil, err
	}
	var stmts []sqlparser.Statement
	for _, p := range pieces {
		if strings.TrimSpace(p) == "" {
			continue
		}
		st, err := sqlparser.ParseStrictDDL(p)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", len(stmts)+1, err)
		}
		stmts = append(stmts, st)
	}
	if len(stmts) == 0 {
		return nil, fmt.Errorf("no sql statements")
	}
	return stmts, nil
}

func statementKind(st sqlparser.Statement) string {
	switch st := st.(type) {
	case *sqlparser.Select, *sqlparser.Union, *sqlparser.ParenSelect:
		return "SELECT"
	case *sqlparser.Insert:
		return strings.ToUpper(st.Action)
	case *sqlparser.Update:
		return "UPDATE"
	case *sqlparser.Delete:
		return "DELETE"
	case *sqlparser.DDL:
		switch st.Action {
		case sqlparser.CreateStr:
			return "CREATE TABLE"
		case sqlparser.AlterStr:
			return "ALTER TABLE"
		case sqlparser.DropStr:
			return "DROP"
		}
	}
	return "OTHER"
}
