// Package router dispatches user input to the right agent operation.
//
// Route is the single entry point per turn: look the input up in the result
// cache, classify intent on a miss, run the matching agent operation, and
// cache what came back. Concurrent identical inputs collapse into one
// in-flight computation.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sqlsage/sqlsage/internal/agent"
	"github.com/sqlsage/sqlsage/internal/intent"
	"github.com/sqlsage/sqlsage/internal/memory"
)

// Result types.
const (
	TypeSQLResult = "sql_result"
	TypeText      = "text"
)

// Result is one routed answer.
type Result struct {
	Data      *agent.Table // set only for SQL analysis
	Response  string
	Visualize bool
	Type      string
}

// Classifier labels input with an intent.
type Classifier interface {
	Classify(ctx context.Context, text string) (intent.Intent, error)
}

// Invoker runs the conversational completion for general chat turns.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Agent is the per-connection operation surface Route dispatches to.
// *agent.Agent satisfies it.
type Agent interface {
	GenerateSQL(ctx context.Context, input string, conv *memory.Conversation) (string, error)
	GenerateScript(ctx context.Context, input string, conv *memory.Conversation) (string, error)
	DescribeSchema(ctx context.Context, input string, conv *memory.Conversation) (string, error)
	RunQuery(ctx context.Context, sessionID, sql string) *agent.Table
	Explain(ctx context.Context, t *agent.Table) (string, error)
}

// Config carries the router's collaborators. Classifier and Invoker are
// required.
type Config struct {
	Classifier Classifier
	Invoker    Invoker
	CacheSize  int           // 0 = DefaultCacheSize
	CacheTTL   time.Duration // 0 = entries never expire
	Logger     *slog.Logger
}

// Router routes chat turns. Safe for concurrent use.
type Router struct {
	classifier Classifier
	invoker    Invoker
	cache      *cache
	flight     singleflight.Group
	logger     *slog.Logger
}

// New creates a Router from cfg.
func New(cfg Config) (*Router, error) {
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("router: classifier is required")
	}
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("router: invoker is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		classifier: cfg.Classifier,
		invoker:    cfg.Invoker,
		cache:      newCache(cfg.CacheSize, cfg.CacheTTL),
		logger:     logger.With("component", "router"),
	}, nil
}

// Route answers one turn of input for the session behind conv.
//
// The cache lookup happens before classification, so a repeated question
// costs zero model calls. Cache keys depend only on the input text; two
// sessions asking the same question share one answer.
func (r *Router) Route(ctx context.Context, input string, ag Agent, conv *memory.Conversation) (*Result, error) {
	key := cacheKey(input)
	if res, ok := r.cache.get(key); ok {
		r.logger.Info("cache hit", "session_id", conv.ID(), "key", key[:8])
		return res, nil
	}

	v, err, _ := r.flight.Do(key, func() (any, error) {
		if res, ok := r.cache.get(key); ok {
			return res, nil
		}

		it, err := r.classifier.Classify(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("classify intent: %w", err)
		}
		r.logger.Info("intent classified", "session_id", conv.ID(), "intent", string(it))

		res, err := r.dispatch(ctx, it, input, ag, conv)
		if err != nil {
			return nil, err
		}
		r.cache.put(key, res)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (r *Router) dispatch(ctx context.Context, it intent.Intent, input string, ag Agent, conv *memory.Conversation) (*Result, error) {
	switch it {
	case intent.SQLAnalysis:
		sql, err := ag.GenerateSQL(ctx, input, conv)
		if err != nil {
			return nil, err
		}
		tbl := ag.RunQuery(ctx, conv.ID(), sql)
		insights, err := ag.Explain(ctx, tbl)
		if err != nil {
			return nil, err
		}
		return &Result{Data: tbl, Response: insights, Visualize: true, Type: TypeSQLResult}, nil

	case intent.CodeScripting:
		script, err := ag.GenerateScript(ctx, input, conv)
		if err != nil {
			return nil, err
		}
		return &Result{Response: script, Type: TypeText}, nil

	case intent.DBKnowledge:
		erd, err := ag.DescribeSchema(ctx, input, conv)
		if err != nil {
			return nil, err
		}
		return &Result{Response: erd, Type: TypeText}, nil

	default:
		return r.general(ctx, input, conv)
	}
}

const generalPrompt = `You are a helpful and intelligent AI assistant.

Briefly summarize the relevant parts of the conversation history if useful, understand the user's current input in the context of prior messages, and provide a clear, concise and informative response.

Conversation history:
%s

User's input:
%s

Assistant:`

// general answers a conversational turn over the full session transcript,
// with no schema or history retrieval.
func (r *Router) general(ctx context.Context, input string, conv *memory.Conversation) (*Result, error) {
	out, err := r.invoker.Invoke(ctx, fmt.Sprintf(generalPrompt, conv.Transcript(), input))
	if err != nil {
		return nil, fmt.Errorf("general completion: %w", err)
	}
	conv.Append(memory.RoleUser, input)
	conv.Append(memory.RoleAssistant, out)
	return &Result{Response: out, Type: TypeText}, nil
}
