package services

// Params are the completion tuning options shared by every provider.
type Params struct {
	Temperature float32
	MaxTokens   int
}
