// Package policy maps oracle failures to safe degraded actions. The mapping
// is a pure function over structured error kinds; rules are checked in
// priority order and the first match wins.
package policy

import (
	"errors"
	"fmt"

	"github.com/hyperos-labs/agent-core/internal/domain"
	"github.com/hyperos-labs/agent-core/pkg/breaker"
)

const (
	// rateLimitWaitSeconds is the extended pause when the oracle reports
	// quota exhaustion.
	rateLimitWaitSeconds = 10
	// retryWaitSeconds is the short pause before letting the loop try again.
	retryWaitSeconds = 2
)

// Fallback classifies an oracle failure into a degraded decision the runner
// substitutes for the failed call.
//
// Rules, first match wins:
//  1. circuit open        → abort
//  2. rate limited/quota  → long wait
//  3. service unavailable → abort
//  4. auth failure        → abort
//  5. retry budget left   → short wait
//  6. otherwise           → abort, retries exhausted
func Fallback(err error, retriesUsed, maxRetries int) domain.Decision {
	if errors.Is(err, breaker.ErrCircuitOpen) {
		return abort("decision service unavailable (circuit open)")
	}

	var oerr *domain.OracleError
	if errors.As(err, &oerr) {
		switch oerr.Kind {
		case domain.OracleRateLimited:
			return wait(rateLimitWaitSeconds, "rate limited, waiting before next attempt")
		case domain.OracleUnavailable:
			return abort("decision service unavailable")
		case domain.OracleAuth:
			return abort("decision service authentication failed")
		}
	}

	if retriesUsed < maxRetries {
		return wait(retryWaitSeconds, "retrying after brief wait")
	}

	return abort(fmt.Sprintf("retries exhausted: %v", err))
}

func wait(seconds float64, why string) domain.Decision {
	return domain.Decision{
		Rationale: "fallback: " + why,
		Action:    domain.WaitAction{Seconds: seconds},
	}
}

func abort(reason string) domain.Decision {
	return domain.Decision{
		Rationale: "fallback: aborting task",
		Action:    domain.DoneAction{Reason: "task aborted: " + reason},
		Done:      true,
	}
}
