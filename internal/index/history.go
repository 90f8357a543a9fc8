package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
)

// DefaultSummarizeThreshold is the cumulative number of meaningful turns
// above which Absorb summarizes before embedding.
const DefaultSummarizeThreshold = 20

// historyCollection is the single collection shared by all sessions and
// databases.
const historyCollection = "history"

// Invoker is the slice of the model gateway the summarizer needs.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

const summarizeMapPrompt = `Summarize the following conversation excerpt concisely. Preserve table names, column names, metrics, and the analytical intent of the user.

%s`

const summarizeReducePrompt = `Combine the following partial summaries into one concise summary of the conversation:

%s`

// History is the persistent similarity index over meaningful conversation
// turns. New turns are absorbed incrementally and persisted immediately.
type History struct {
	*store
	invoker   Invoker
	summarize bool
	threshold int

	mu       sync.Mutex
	absorbed int // meaningful turns absorbed so far
}

// HistoryConfig configures summarization behavior.
type HistoryConfig struct {
	// Summarize enables map-reduce summarization of large absorb batches.
	Summarize bool

	// SummarizeThreshold is the cumulative meaningful-turn count that
	// triggers summarization. 0 = DefaultSummarizeThreshold.
	SummarizeThreshold int
}

// NewHistory opens the history index under dir. An absent index is created
// empty; the empty state round-trips through persistence, so the first
// Absorb works against a freshly created index and a reloaded one alike.
func NewHistory(dir string, embed chromem.EmbeddingFunc, invoker Invoker, cfg HistoryConfig, logger *slog.Logger) (*History, error) {
	st, err := openStore(filepath.Join(dir, "history"), historyCollection, embed, logger)
	if err != nil {
		return nil, err
	}

	threshold := cfg.SummarizeThreshold
	if threshold <= 0 {
		threshold = DefaultSummarizeThreshold
	}

	return &History{
		store:     st,
		invoker:   invoker,
		summarize: cfg.Summarize,
		threshold: threshold,
	}, nil
}

// Absorb vectorizes the meaningful subset of turns and appends the chunks to
// the on-disk index. Absorb keeps a running count of meaningful turns; once
// the conversation as a whole has crossed the threshold and summarization is
// enabled, incoming turns are reduced to a single synthetic document before
// embedding. Non-meaningful turns are dropped silently.
func (h *History) Absorb(ctx context.Context, turns []string) error {
	var meaningful []string
	for _, t := range turns {
		if Meaningful(t) {
			meaningful = append(meaningful, strings.TrimSpace(t))
		}
	}
	if len(meaningful) == 0 {
		return nil
	}

	h.mu.Lock()
	h.absorbed += len(meaningful)
	total := h.absorbed
	h.mu.Unlock()

	if h.summarize && total > h.threshold {
		summary, err := h.summarizeTurns(ctx, meaningful)
		if err != nil {
			return fmt.Errorf("summarizing history: %w", err)
		}
		meaningful = []string{summary}
	}

	var docs []chromem.Document
	for _, m := range meaningful {
		for _, chunk := range SplitText(m, ChunkSize, ChunkOverlap) {
			docs = append(docs, chromem.Document{
				// History chunks repeat across sessions; IDs must stay
				// unique across absorb calls.
				ID:      uuid.NewString(),
				Content: chunk,
			})
		}
	}

	return h.add(ctx, docs)
}

// summarizeTurns reduces the turns map-reduce style: each large chunk is
// summarized independently, then the partial summaries are combined in one
// final call.
func (h *History) summarizeTurns(ctx context.Context, turns []string) (string, error) {
	chunks := SplitText(strings.Join(turns, "\n"), SummaryChunkSize, ChunkOverlap)

	partials := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		part, err := h.invoker.Invoke(ctx, fmt.Sprintf(summarizeMapPrompt, chunk))
		if err != nil {
			return "", err
		}
		partials = append(partials, strings.TrimSpace(part))
	}

	if len(partials) == 1 {
		return partials[0], nil
	}

	combined, err := h.invoker.Invoke(ctx, fmt.Sprintf(summarizeReducePrompt, strings.Join(partials, "\n\n")))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(combined), nil
}

// Search returns the history fragments most relevant to query, most similar
// first, joined by newlines.
func (h *History) Search(ctx context.Context, query string, k int) (string, error) {
	return h.search(ctx, query, k)
}
