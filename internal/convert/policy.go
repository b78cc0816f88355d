package convert

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/spherical/scan2docx/internal/domain"
)

const (
	defaultMaxAttempts    = 1
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
)

// PagePolicy controls how the pipeline reacts to a page that fails.
//
// The zero value is normalized to the default: one attempt and abort the
// whole conversion on the first failure.
type PagePolicy struct {
	// MaxAttempts bounds OCR attempts per page. 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// MarkFailed keeps going after a page fails, writing an inline marker
	// for that page instead of its text.
	MarkFailed bool
}

// DefaultPagePolicy returns the fail-fast policy.
func DefaultPagePolicy() PagePolicy {
	return PagePolicy{
		MaxAttempts:    defaultMaxAttempts,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
	}
}

func (p PagePolicy) normalized() PagePolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	return p
}

// retryable reports whether another OCR attempt could succeed.
// Configuration problems and cancellation never improve on retry.
func retryable(err error) bool {
	return domain.KindOf(err) == domain.ErrorTypeOCR
}

// degradable reports whether a page failure may be replaced by a marker.
func degradable(err error) bool {
	switch domain.KindOf(err) {
	case domain.ErrorTypeOCR, domain.ErrorTypeRender:
		return true
	default:
		return false
	}
}

// calculateBackoff returns initial * 2^attempt capped at MaxBackoff.
func calculateBackoff(attempt int, p PagePolicy) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(2, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	return time.Duration(backoff)
}

// recognizeWithRetry runs OCR on one page, retrying transient engine
// failures with exponential backoff.
func (s *Service) recognizeWithRetry(ctx context.Context, page domain.PageImage, params domain.RecognitionParams) (string, error) {
	var lastErr error

	for attempt := 0; attempt < s.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", domain.CancelledError(fmt.Sprintf("cancelled before OCR of page %d", page.Index), err)
		}

		text, err := s.recognizer.Recognize(ctx, page, params)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !retryable(err) || attempt == s.policy.MaxAttempts-1 {
			break
		}

		backoff := calculateBackoff(attempt, s.policy)
		s.logger.Warn().
			Int("page", page.Index).
			Int("attempt", attempt+1).
			Int("max_attempts", s.policy.MaxAttempts).
			Dur("backoff", backoff).
			Err(err).
			Msg("OCR failed, retrying")

		select {
		case <-ctx.Done():
			return "", domain.CancelledError(fmt.Sprintf("cancelled while retrying page %d", page.Index), ctx.Err())
		case <-time.After(backoff):
		}
	}

	return "", lastErr
}
