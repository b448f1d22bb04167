package models

// Usage records token accounting for a single LLM call, mirroring the
// provider usage block described by the chat contract.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens,omitempty"`
	CacheCreateTokens int64 `json:"cache_creation_tokens,omitempty"`
	ReasoningTokens  int64 `json:"reasoning_tokens,omitempty"`
}

// Total returns the sum of all accounted token kinds.
func (u *Usage) Total() int64 {
	if u == nil {
		return 0
	}
	return u.PromptTokens + u.CompletionTokens + u.CacheReadTokens + u.CacheCreateTokens
}

// Add accumulates other into u.
func (u *Usage) Add(other *Usage) {
	if u == nil || other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheCreateTokens += other.CacheCreateTokens
	u.ReasoningTokens += other.ReasoningTokens
}
