// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package convstore owns every agent's ordered conversation history:
// append, compression, and persistence. It is the only component allowed
// to mutate conversation files; everything else goes through this API.
package convstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/arbor-run/kernel/pkg/store"
)

// Role identifies an entry's place in the LLM-shaped history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is an assistant-requested tool invocation carried on an
// assistant entry.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Entry is one LLM-shaped conversation entry.
type Entry struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// Band classifies a conversation's token usage against maxTokens.
type Band string

const (
	BandNone     Band = "none"
	BandWarning  Band = "warning"
	BandCritical Band = "critical"
	BandHardLimit Band = "hard_limit"
)

const (
	warningRatio  = 0.70
	criticalRatio = 0.90
	hardLimitRatio = 0.95
)

// CompressResult reports the outcome of a compress call.
type CompressResult struct {
	OK            bool
	Compressed    bool
	OriginalCount int
	NewCount      int
}

// ConversationStore persists and mutates one ordered history per agent.
type ConversationStore struct {
	backing   store.Store
	maxTokens int

	mu      sync.Mutex
	history map[string][]Entry

	encMu    sync.Mutex
	encoding *tiktoken.Tiktoken
}

// New creates a ConversationStore over backing with the given hard token
// budget (used to compute the warning/critical/hard-limit bands).
func New(backing store.Store, maxTokens int) *ConversationStore {
	if maxTokens <= 0 {
		maxTokens = 128_000
	}
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &ConversationStore{
		backing:   backing,
		maxTokens: maxTokens,
		history:   make(map[string][]Entry),
		encoding:  enc,
	}
}

func conversationKey(agentID string) string {
	return "conversations/" + agentID
}

// Ensure creates agentID's history seeded with a system entry if it does
// not already exist, loading it from the backing store first.
func (c *ConversationStore) Ensure(ctx context.Context, agentID, systemPrompt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.history[agentID]; ok {
		return nil
	}

	data, found, err := c.backing.Load(ctx, conversationKey(agentID))
	if err != nil {
		return fmt.Errorf("convstore: load %s: %w", agentID, err)
	}
	if found {
		var entries []Entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("convstore: decode %s: %w", agentID, err)
		}
		c.history[agentID] = entries
		return nil
	}

	c.history[agentID] = []Entry{{Role: RoleSystem, Content: systemPrompt}}
	return c.flushLocked(ctx, agentID)
}

func (c *ConversationStore) flushLocked(ctx context.Context, agentID string) error {
	data, err := json.MarshalIndent(c.history[agentID], "", "  ")
	if err != nil {
		return fmt.Errorf("convstore: encode %s: %w", agentID, err)
	}
	if err := c.backing.Save(ctx, conversationKey(agentID), data); err != nil {
		return fmt.Errorf("convstore: save %s: %w", agentID, err)
	}
	return nil
}

// Append adds entry to the end of agentID's history.
func (c *ConversationStore) Append(ctx context.Context, agentID string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history[agentID] = append(c.history[agentID], entry)
	return c.flushLocked(ctx, agentID)
}

// Get returns a copy of agentID's full history.
func (c *ConversationStore) Get(agentID string) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.history[agentID]
	out := make([]Entry, len(h))
	copy(out, h)
	return out
}

// Compress replaces a long history with
// [system, {system, "[Historical Summary] "+summary}, ...last keepRecent].
// If the history is already short enough (len <= keepRecent+1) it is left
// unchanged and Compressed=false is reported.
func (c *ConversationStore) Compress(ctx context.Context, agentID, summary string, keepRecent int) (CompressResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.history[agentID]
	original := len(h)
	if original <= keepRecent+1 {
		return CompressResult{OK: true, Compressed: false, OriginalCount: original, NewCount: original}, nil
	}

	systemEntry := h[0]
	tail := append([]Entry{}, h[len(h)-keepRecent:]...)

	newHist := make([]Entry, 0, keepRecent+2)
	newHist = append(newHist, systemEntry)
	newHist = append(newHist, Entry{Role: RoleSystem, Content: "[Historical Summary] " + summary})
	newHist = append(newHist, tail...)

	c.history[agentID] = newHist
	if err := c.flushLocked(ctx, agentID); err != nil {
		return CompressResult{}, err
	}
	return CompressResult{OK: true, Compressed: true, OriginalCount: original, NewCount: len(newHist)}, nil
}

// Delete removes agentID's history from memory and the backing store.
func (c *ConversationStore) Delete(ctx context.Context, agentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.history, agentID)
	if err := c.backing.Delete(ctx, conversationKey(agentID)); err != nil {
		return fmt.Errorf("convstore: delete %s: %w", agentID, err)
	}
	return nil
}

// EstimateTokens returns a deterministic token estimate for agentID's
// full history: tiktoken's cl100k_base encoding when available, falling
// back to character-count/4 (the teacher's own legacy estimator) if the
// encoding failed to load.
func (c *ConversationStore) EstimateTokens(agentID string) int {
	c.mu.Lock()
	h := append([]Entry{}, c.history[agentID]...)
	c.mu.Unlock()
	return c.estimateEntries(h)
}

func (c *ConversationStore) estimateEntries(entries []Entry) int {
	c.encMu.Lock()
	enc := c.encoding
	c.encMu.Unlock()

	total := 0
	for _, e := range entries {
		text := string(e.Role) + " " + e.Content
		for _, tc := range e.ToolCalls {
			text += " " + tc.Name
		}
		if enc != nil {
			total += len(enc.Encode(text, nil, nil)) + 3
			continue
		}
		total += len(text)/4 + 3
	}
	return total
}

// Band reports which threshold band agentID's current token estimate
// falls into, and the raw count.
func (c *ConversationStore) Band(agentID string) (Band, int) {
	tokens := c.EstimateTokens(agentID)
	ratio := float64(tokens) / float64(c.maxTokens)
	switch {
	case ratio >= hardLimitRatio:
		return BandHardLimit, tokens
	case ratio >= criticalRatio:
		return BandCritical, tokens
	case ratio >= warningRatio:
		return BandWarning, tokens
	default:
		return BandNone, tokens
	}
}

// WouldExceedHardLimit estimates the token count of history plus a
// candidate entry and reports whether it would cross the hard-limit
// threshold, the point at which a step must fail with context_overflow
// rather than call the LLM.
func (c *ConversationStore) WouldExceedHardLimit(agentID string, candidate Entry) bool {
	c.mu.Lock()
	h := append([]Entry{}, c.history[agentID]...)
	c.mu.Unlock()
	h = append(h, candidate)
	tokens := c.estimateEntries(h)
	return float64(tokens)/float64(c.maxTokens) >= hardLimitRatio
}

// Flush rewrites every in-memory history to the backing store. Appends
// and compressions already persist synchronously, so this mainly exists
// to give ShutdownManager an explicit, uniform flush point.
func (c *ConversationStore) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for agentID := range c.history {
		if err := c.flushLocked(ctx, agentID); err != nil {
			return err
		}
	}
	return nil
}

// RenderHistorical renders an entry's content for inlining into prompts
// that need a flat string view (e.g. audit logging of the last message).
func RenderHistorical(e Entry) string {
	var b strings.Builder
	b.WriteString(string(e.Role))
	b.WriteString(": ")
	b.WriteString(e.Content)
	return b.String()
}
