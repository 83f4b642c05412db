package pricer

import (
	"context"
	"net"
	"strings"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/gainboard/internal/domain"
	"github.com/vadiminshakov/gainboard/internal/observability"
)

var (
	rateLimitHints = []string{"429", "too many requests", "rate limit", "10006", "10018", "-1003"}
	notFoundHints  = []string{"404", "422", "not found", "invalid symbol", "-1121", "10001", "symbol invalid", "unknown coin"}
)

// classifyMessage maps an SDK error without a typed status to the domain taxonomy.
func classifyMessage(err error) error {
	if err == nil {
		return nil
	}
	if isClassified(err) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Wrap(domain.ErrTransient, err.Error())
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range rateLimitHints {
		if strings.Contains(msg, hint) {
			return errors.Wrap(domain.ErrRateLimited, err.Error())
		}
	}
	for _, hint := range notFoundHints {
		if strings.Contains(msg, hint) {
			return errors.Wrap(domain.ErrNotFound, err.Error())
		}
	}

	return errors.Wrap(domain.ErrTransient, err.Error())
}

func isClassified(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrRateLimited) ||
		errors.Is(err, domain.ErrTransient)
}

// normalize makes sure err carries one of the three upstream sentinels.
func normalize(err error) error {
	if err == nil || isClassified(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(domain.ErrTransient, err.Error())
	}
	return classifyMessage(err)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, domain.ErrRateLimited):
		return observability.OutcomeRateLimited
	case errors.Is(err, domain.ErrNotFound):
		return observability.OutcomeNotFound
	default:
		return observability.OutcomeTransient
	}
}
