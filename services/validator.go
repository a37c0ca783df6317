package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	SourceLocal = "local"
	SourceAI    = "ai"

	RuleExact    = "exact"
	RuleSubset   = "subset"
	RuleSemantic = "semantic"
	RuleNone     = "none"
)

// SemanticMatcher is the contract of the external AI match service.
type SemanticMatcher interface {
	Match(ctx context.Context, guess, correctAnswer string) (bool, error)
}

// Verdict is the outcome of one validation. Degraded is set when the AI
// fallback was needed but failed, so the local verdict stood in for it.
type Verdict struct {
	IsCorrect        bool   `json:"is_correct"`
	Source           string `json:"source"`
	Rule             string `json:"rule"`
	Degraded         bool   `json:"degraded,omitempty"`
	Cached           bool   `json:"cached,omitempty"`
	NormalizedGuess  string `json:"-"`
	NormalizedAnswer string `json:"-"`
}

// Authoritative reports whether the verdict may be cached as final.
func (v Verdict) Authoritative() bool {
	return !v.Degraded
}

// GuessValidator decides whether a guess names the secret product. It
// holds no state and never writes anything.
type GuessValidator struct {
	Lexicon Lexicon
	Matcher SemanticMatcher // nil disables the AI fallback
	Timeout time.Duration
}

func NewGuessValidator(lex Lexicon, matcher SemanticMatcher, timeout time.Duration) *GuessValidator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GuessValidator{Lexicon: lex, Matcher: matcher, Timeout: timeout}
}

func (v *GuessValidator) logger() *logrus.Entry {
	return logrus.WithField("module", "validator")
}

// LocalMatch runs the exact and token-subset passes only.
func (v *GuessValidator) LocalMatch(guess, correctAnswer string) Verdict {
	out := Verdict{
		Source:           SourceLocal,
		Rule:             RuleNone,
		NormalizedGuess:  Normalize(guess),
		NormalizedAnswer: Normalize(correctAnswer),
	}
	if out.NormalizedGuess == "" || out.NormalizedAnswer == "" {
		return out
	}
	if out.NormalizedGuess == out.NormalizedAnswer {
		out.IsCorrect = true
		out.Rule = RuleExact
		return out
	}
	if v.Lexicon.SubsetMatch(out.NormalizedGuess, out.NormalizedAnswer) {
		out.IsCorrect = true
		out.Rule = RuleSubset
	}
	return out
}

// Validate runs the local passes and, only when they reject a guess that
// has comparison tokens, asks the semantic matcher under a bounded timeout. A matcher
// failure never surfaces: the local verdict is returned marked Degraded.
func (v *GuessValidator) Validate(ctx context.Context, guess, correctAnswer string) Verdict {
	local := v.LocalMatch(guess, correctAnswer)
	if local.IsCorrect || v.Matcher == nil || local.NormalizedAnswer == "" {
		return local
	}
	// stopword-only guesses ("de la") never reach the matcher
	if len(v.Lexicon.Tokens(local.NormalizedGuess)) == 0 {
		return local
	}

	ok, err := v.askMatcher(ctx, guess, correctAnswer)
	if err != nil {
		v.logger().WithError(err).WithField("guess", local.NormalizedGuess).
			Warn("semantic match unavailable, keeping local verdict")
		local.Degraded = true
		return local
	}

	out := local
	out.Source = SourceAI
	out.IsCorrect = ok
	if ok {
		out.Rule = RuleSemantic
	}
	return out
}

func (v *GuessValidator) askMatcher(ctx context.Context, guess, correctAnswer string) (ok bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, v.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: matcher panic: %v", ErrValidationServiceUnavailable, r)
		}
	}()

	ok, err = v.Matcher.Match(ctx, guess, correctAnswer)
	if err != nil && !errors.Is(err, ErrValidationServiceUnavailable) {
		err = fmt.Errorf("%w: %v", ErrValidationServiceUnavailable, err)
	}
	return ok, err
}
