// Package agent implements the database expert bound to one resolved
// connection. It composes retrieval context from the schema and history
// indices, drives the model through the rate-limited invoker, and executes
// generated SQL against the connection's pool.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sqlsage/sqlsage/internal/memory"
)

// Invoker submits one prompt through the rate-limited model gateway.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// ContextIndex retrieves the most similar stored chunks for a query.
type ContextIndex interface {
	Search(ctx context.Context, query string, k int) (string, error)
}

// HistoryIndex additionally absorbs new conversation turns before search.
type HistoryIndex interface {
	ContextIndex
	Absorb(ctx context.Context, turns []string) error
}

// Querier executes SQL. *pgxpool.Pool satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// QueryRecord captures one executed query for the history ledger.
type QueryRecord struct {
	ConnectionID string
	SessionID    string
	Query        string
	Duration     time.Duration
	Success      bool
	Error        string
}

// Recorder persists query records. The agent never blocks on it failing;
// implementations own their durability.
type Recorder interface {
	Record(ctx context.Context, rec QueryRecord)
}

// Config carries the agent's collaborators. Invoker, Schema, History and
// Querier are required.
type Config struct {
	ConnectionID string
	Invoker      Invoker // SQL generation
	CodeInvoker  Invoker // scripts, schema description, explanation; nil = Invoker
	Schema       ContextIndex
	History      HistoryIndex
	Querier      Querier
	Recorder     Recorder // optional
	TopK         int      // retrieval result count, 0 = DefaultTopK
	Logger       *slog.Logger
}

// DefaultTopK is the retrieval result count when none is configured.
const DefaultTopK = 3

// Agent answers database questions for one connection.
type Agent struct {
	connectionID string
	invoker      Invoker
	codeInvoker  Invoker
	schema       ContextIndex
	history      HistoryIndex
	querier      Querier
	recorder     Recorder
	topK         int
	logger       *slog.Logger
}

// New creates an Agent from cfg.
func New(cfg Config) (*Agent, error) {
	switch {
	case cfg.Invoker == nil:
		return nil, fmt.Errorf("agent: invoker is required")
	case cfg.Schema == nil:
		return nil, fmt.Errorf("agent: schema index is required")
	case cfg.History == nil:
		return nil, fmt.Errorf("agent: history index is required")
	case cfg.Querier == nil:
		return nil, fmt.Errorf("agent: querier is required")
	}
	codeInvoker := cfg.CodeInvoker
	if codeInvoker == nil {
		codeInvoker = cfg.Invoker
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		connectionID: cfg.ConnectionID,
		invoker:      cfg.Invoker,
		codeInvoker:  codeInvoker,
		schema:       cfg.Schema,
		history:      cfg.History,
		querier:      cfg.Querier,
		recorder:     cfg.Recorder,
		topK:         topK,
		logger:       logger.With("component", "agent"),
	}, nil
}

const sqlPrompt = `As an expert SQL developer, based on the schema and chat history, generate an optimized SQL query.

Schema:
%s

History:
%s

Request:
%s

Return only the raw SQL query. No explanation.`

// GenerateSQL produces a SQL statement for input, records both turns in
// conv, and strips any code fences from the model output.
func (a *Agent) GenerateSQL(ctx context.Context, input string, conv *memory.Conversation) (string, error) {
	schemaCtx, histCtx, err := a.retrieve(ctx, input, conv)
	if err != nil {
		return "", err
	}

	out, err := a.invoker.Invoke(ctx, fmt.Sprintf(sqlPrompt, schemaCtx, histCtx, input))
	if err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}

	conv.Append(memory.RoleUser, input)
	conv.Append(memory.RoleAssistant, out)
	return stripFences(out), nil
}

const scriptPrompt = `You are a highly experienced senior software engineer.

Generate a complete, production-quality script based on the user's request, any relevant schema, and prior chat history.

User request:
%s

Relevant schema or context (use it if relevant, otherwise rely on chat history):
%s

Chat history:
%s

Guidelines:
- Use clear comments and docstrings for each function or class.
- Choose descriptive, self-explanatory variable names.
- Keep the code modular, readable and maintainable.
- Output only code, no explanations outside it.`

// GenerateScript produces a standalone script for input and records both
// turns in conv.
func (a *Agent) GenerateScript(ctx context.Context, input string, conv *memory.Conversation) (string, error) {
	schemaCtx, histCtx, err := a.retrieve(ctx, input, conv)
	if err != nil {
		return "", err
	}

	out, err := a.codeInvoker.Invoke(ctx, fmt.Sprintf(scriptPrompt, input, schemaCtx, histCtx))
	if err != nil {
		return "", fmt.Errorf("generate script: %w", err)
	}

	conv.Append(memory.RoleUser, input)
	conv.Append(memory.RoleAssistant, out)
	return out, nil
}

const describePrompt = `You are a professional data architect. Based on the provided schema, describe the entity-relationship diagram briefly, without describing individual tables.

Schema:
%s

Request:
%s`

// DescribeSchema produces a short entity-relationship description of the
// connection's schema and records both turns in conv.
func (a *Agent) DescribeSchema(ctx context.Context, input string, conv *memory.Conversation) (string, error) {
	schemaCtx, _, err := a.retrieve(ctx, input, conv)
	if err != nil {
		return "", err
	}

	out, err := a.codeInvoker.Invoke(ctx, fmt.Sprintf(describePrompt, schemaCtx, input))
	if err != nil {
		return "", fmt.Errorf("describe schema: %w", err)
	}

	conv.Append(memory.RoleUser, input)
	conv.Append(memory.RoleAssistant, out)
	return out, nil
}

// RunQuery executes sql and returns the result as a Table. Execution
// failure is data, not an error: the Table carries the failure text in Err.
func (a *Agent) RunQuery(ctx context.Context, sessionID, sql string) *Table {
	start := time.Now()
	t := a.query(ctx, sql)
	dur := time.Since(start)

	if t.Err != "" {
		a.logger.Warn("query failed", "session_id", sessionID, "error", t.Err)
	}
	if a.recorder != nil {
		a.recorder.Record(ctx, QueryRecord{
			ConnectionID: a.connectionID,
			SessionID:    sessionID,
			Query:        sql,
			Duration:     dur,
			Success:      t.Err == "",
			Error:        t.Err,
		})
	}
	return t
}

func (a *Agent) query(ctx context.Context, sql string) *Table {
	rows, err := a.querier.Query(ctx, sql)
	if err != nil {
		return &Table{Err: err.Error()}
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	var data [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return &Table{Err: err.Error()}
		}
		data = append(data, vals)
	}
	if err := rows.Err(); err != nil {
		return &Table{Err: err.Error()}
	}
	return &Table{Columns: cols, Rows: data}
}

// noDataResponse is returned by Explain when the table has nothing to
// explain. No model call happens in that case.
const noDataResponse = "No data available."

const explainPrompt = "As a senior data analyst, explain the following data table:\n%s"

// Explain summarizes the first rows of t in natural language.
func (a *Agent) Explain(ctx context.Context, t *Table) (string, error) {
	if t.IsEmpty() {
		return noDataResponse, nil
	}
	out, err := a.codeInvoker.Invoke(ctx, fmt.Sprintf(explainPrompt, t.Preview()))
	if err != nil {
		return "", fmt.Errorf("explain data: %w", err)
	}
	return out, nil
}

// retrieve gathers schema context, absorbs conv's new turns into the
// history index, and gathers history context.
func (a *Agent) retrieve(ctx context.Context, input string, conv *memory.Conversation) (schemaCtx, histCtx string, err error) {
	schemaCtx, err = a.schema.Search(ctx, input, a.topK)
	if err != nil {
		return "", "", fmt.Errorf("schema retrieval: %w", err)
	}
	if err := a.absorbHistory(ctx, conv); err != nil {
		return "", "", err
	}
	histCtx, err = a.history.Search(ctx, input, a.topK)
	if err != nil {
		return "", "", fmt.Errorf("history retrieval: %w", err)
	}
	return schemaCtx, histCtx, nil
}

func (a *Agent) absorbHistory(ctx context.Context, conv *memory.Conversation) error {
	turns := conv.Unindexed()
	if len(turns) == 0 {
		return nil
	}
	if err := a.history.Absorb(ctx, turns); err != nil {
		return fmt.Errorf("absorb history: %w", err)
	}
	conv.MarkIndexed(len(turns))
	return nil
}

// stripFences removes a leading ```sql fence and trailing ``` fence from
// model output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```sql")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
