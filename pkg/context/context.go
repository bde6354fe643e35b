// Package context implements the Context Provider (C1): parallel RAG and
// history retrieval merged under a token budget. Retrieval streams are
// channel+producer pairs; the consumer cancels the producer once its budget
// is spent.
package context

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/codeready-toolchain/agentflow/pkg/collab"
	"github.com/codeready-toolchain/agentflow/pkg/model"
)

// Provider runs retrieval for a task query and merges the results under a
// token budget.
type Provider struct {
	rag     collab.SmartRag
	history collab.HistoryManager
	budget  int // total token budget; each side gets at most budget/2
}

// New constructs a Provider. Either collaborator may be nil, in which case
// that side of retrieval is skipped (treated as best-effort empty).
func New(rag collab.SmartRag, history collab.HistoryManager, tokenBudget int) *Provider {
	return &Provider{rag: rag, history: history, budget: tokenBudget}
}

// RetrieveContext runs RAG and history retrieval in parallel and merges them.
// Failure semantics: either side erroring is logged and the other side's
// result is still returned; both failing yields an empty string, never an
// error — retrieval is best-effort.
func (p *Provider) RetrieveContext(ctx context.Context, taskQuery string, scope model.ProjectScope, conv model.ConversationID) string {
	half := p.budget / 2

	var wg sync.WaitGroup
	var ragText, historyText string

	wg.Add(2)
	go func() {
		defer wg.Done()
		ragText = p.retrieveRAG(ctx, taskQuery, scope, conv, half)
	}()
	go func() {
		defer wg.Done()
		historyText = p.retrieveHistory(ctx, taskQuery, conv, half)
	}()
	wg.Wait()

	var b strings.Builder
	if ragText != "" {
		b.WriteString("## Retrieved Context\n")
		b.WriteString(ragText)
	}
	if historyText != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## Recent History\n")
		b.WriteString(historyText)
	}

	merged := b.String()
	if model.EstimateTokens(merged) > p.budget {
		merged = truncateToTokens(merged, p.budget)
	}
	return merged
}

// StoreExchange forwards a completed exchange to the history collaborator.
func (p *Provider) StoreExchange(ctx context.Context, userQuery, agentResponse string, conv model.ConversationID) {
	if p.history == nil {
		return
	}
	if err := p.history.AddExchange(ctx, conv, userQuery, agentResponse); err != nil {
		slog.Warn("context: failed to store exchange", "conversation", conv, "error", err)
	}
}

func (p *Provider) retrieveRAG(ctx context.Context, query string, scope model.ProjectScope, conv model.ConversationID, budget int) string {
	if p.rag == nil || budget <= 0 {
		return ""
	}

	producerCtx, cancel := context.WithCancel(ctx)
	defer cancel() // stop the producer once we've consumed our budget

	fragCh, errCh := p.rag.RetrieveStream(producerCtx, query, scope, conv)

	var frags []collab.Fragment
	received := 0
	for {
		select {
		case f, ok := <-fragCh:
			if !ok {
				return assembleFragments(frags, budget)
			}
			frags = append(frags, f)
			received += model.EstimateTokens(f.Content)
			if received >= budget {
				return assembleFragments(frags, budget)
			}
		case err, ok := <-errCh:
			if ok && err != nil {
				slog.Warn("context: rag retrieval error", "error", err)
			}
			return assembleFragments(frags, budget)
		case <-ctx.Done():
			return assembleFragments(frags, budget)
		}
	}
}

// assembleFragments selects fragments up to budget tokens, preferring higher
// scores and breaking ties by source priority (lexical, as a stand-in for a
// configured priority list) then recency (input order, since fragments arrive
// ranked-then-chronological from the collaborator).
func assembleFragments(frags []collab.Fragment, budget int) string {
	sort.SliceStable(frags, func(i, j int) bool {
		if frags[i].Score != frags[j].Score {
			return frags[i].Score > frags[j].Score
		}
		return frags[i].Source < frags[j].Source
	})

	var b strings.Builder
	used := 0
	for _, f := range frags {
		cost := model.EstimateTokens(f.Content)
		if used+cost > budget {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(f.Content)
		used += cost
	}
	return b.String()
}

func (p *Provider) retrieveHistory(ctx context.Context, query string, conv model.ConversationID, budget int) string {
	if p.history == nil || budget <= 0 {
		return ""
	}
	hc, err := p.history.GetRelevantContext(ctx, conv, query)
	if err != nil {
		slog.Warn("context: history retrieval error", "error", err)
		return ""
	}

	// Prefer most-relevant-plus-most-recent: relevant past first, then short
	// term (most recent), truncated to fit budget.
	var b strings.Builder
	used := 0
	for _, m := range append(append([]model.HistoryMessage{}, hc.RelevantPast...), hc.ShortTerm...) {
		cost := model.EstimateTokens(m.Content)
		if used+cost > budget {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.Role + ": " + m.Content)
		used += cost
	}
	return b.String()
}

// truncateToTokens truncates s to approximately the given token budget using
// the same 4-chars-per-token heuristic.
func truncateToTokens(s string, budget int) string {
	maxChars := budget * 4
	if maxChars >= len(s) {
		return s
	}
	return s[:maxChars]
}
