package tool

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"agentgw/internal/domain"
)

const maxQueryRows = 100

// QueryDBTool runs read-only SQL against the history database.
type QueryDBTool struct {
	db *sql.DB
}

func NewQueryDBTool(db *sql.DB) *QueryDBTool { return &QueryDBTool{db: db} }

func (t *QueryDBTool) Name() string { return "query_db" }

func (t *QueryDBTool) Description() string {
	return "Run a read-only SELECT query against the conversation database."
}

func (t *QueryDBTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "SELECT statement to execute"}
			},
			"required": ["query"]
		}`),
	}
}

func (t *QueryDBTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return &domain.ToolResult{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}

	query := strings.TrimSpace(args.Query)
	if !strings.HasPrefix(strings.ToUpper(query), "SELECT") {
		return &domain.ToolResult{Content: "Error: only SELECT queries are allowed", IsError: true}, nil
	}

	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return &domain.ToolResult{Content: fmt.Sprintf("Error executing query: %v", err), IsError: true}, nil
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return &domain.ToolResult{Content: fmt.Sprintf("Error reading columns: %v", err), IsError: true}, nil
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(cols, " | "))
	sb.WriteByte('\n')

	count := 0
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if count >= maxQueryRows {
			fmt.Fprintf(&sb, "... [truncated at %d rows]\n", maxQueryRows)
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return &domain.ToolResult{Content: fmt.Sprintf("Error scanning row: %v", err), IsError: true}, nil
		}
		fields := make([]string, len(cols))
		for i, v := range values {
			switch val := v.(type) {
			case nil:
				fields[i] = "NULL"
			case []byte:
				fields[i] = string(val)
			default:
				fields[i] = fmt.Sprintf("%v", val)
			}
		}
		sb.WriteString(strings.Join(fields, " | "))
		sb.WriteByte('\n')
		count++
	}
	if err := rows.Err(); err != nil {
		return &domain.ToolResult{Content: fmt.Sprintf("Error iterating rows: %v", err), IsError: true}, nil
	}

	if count == 0 {
		return &domain.ToolResult{Content: "no rows"}, nil
	}
	return &domain.ToolResult{Content: sb.String()}, nil
}
