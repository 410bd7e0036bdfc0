package costcontrol

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

// Token estimator modes.
const (
	EstimatorTiktoken  = "tiktoken"
	EstimatorHeuristic = "heuristic"
)

// charsPerToken is the approximate number of characters per token.
const charsPerToken = 4

const tiktokenEncoding = "cl100k_base"

// Estimator counts prompt tokens for requests that never reach the upstream.
//
// DESIGN: tiktoken loads its BPE ranks on first use (possibly over the
// network). The load happens once, lazily; if it fails the estimator
// degrades to the character heuristic for the rest of the process.
type Estimator struct {
	mode string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewEstimator returns an estimator for the given mode. Unknown modes use the heuristic.
func NewEstimator(mode string) *Estimator {
	return &Estimator{mode: mode}
}

// CountTokens estimates the token count of text.
func (e *Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if e.mode == EstimatorTiktoken {
		e.once.Do(e.loadEncoding)
		if e.enc != nil {
			return len(e.enc.Encode(text, nil, nil))
		}
	}
	return heuristicTokens(text)
}

func (e *Estimator) loadEncoding() {
	enc, err := tiktoken.GetEncoding(tiktokenEncoding)
	if err != nil {
		log.Warn().Err(err).Str("encoding", tiktokenEncoding).Msg("token estimator: falling back to heuristic")
		return
	}
	e.enc = enc
}

func heuristicTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}
