// Package gemini implements a local cite backend on top of the Google Gemini
// API.
//
// A Backend accepts queries as jobs, retrieves supporting passages from a
// [cite.Retriever], asks Gemini for an answer with inline [n] markers and
// streams the result as the same JSON frames an HTTP job server sends. The
// session cannot tell the two transports apart.
package gemini

import "time"

const (
	defaultModel       = "gemini-2.5-flash"
	defaultMaxTokens   = 1024
	defaultTemperature = 0.7
	defaultTopK        = 5
	maxContextRunes    = 10000
	defaultJobMaxAge   = time.Hour
)

// Error codes sent in error frames.
const (
	CodeRetrievalFailed  = "retrieval_failed"
	CodeGenerationFailed = "generation_failed"
)

// Tool call ids and names of the backend's progress trace.
const (
	searchToolID    = "tc-1"
	searchToolName  = "search_documents"
	analyzeToolID   = "tc-2"
	analyzeToolName = "analyze_content"
)
