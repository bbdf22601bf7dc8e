package reliability

import (
	"context"
	"errors"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/pkg/circuitbreaker"
	"watchparty/pkg/retry"

	"go.uber.org/zap"
)

// ProfileProviderWrapper guards an external profile store with retries and a
// circuit breaker. Retries wrap the breaker, so an open breaker fails fast.
type ProfileProviderWrapper struct {
	provider ports.ProfileProvider
	logger   *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

func NewProfileProviderWrapper(
	provider ports.ProfileProvider,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *ProfileProviderWrapper {
	if cbConfig.IsFailure == nil {
		cbConfig.IsFailure = countsAsFailure
	}
	retryConfig.NonRetryable = append(retryConfig.NonRetryable, circuitbreaker.ErrOpen)

	w := &ProfileProviderWrapper{
		provider:       provider,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
	}

	w.circuitBreaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
		logger.Infow("circuit breaker state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	})

	return w
}

// A caller giving up is not the store's fault.
func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

func (w *ProfileProviderWrapper) GetProfile(ctx context.Context, userID domain.UserID) (*domain.Profile, error) {
	profile, err := retry.DoValue(ctx, w.retryConfig, func(ctx context.Context) (*domain.Profile, error) {
		return circuitbreaker.Execute(ctx, w.circuitBreaker, func(ctx context.Context) (*domain.Profile, error) {
			return w.provider.GetProfile(ctx, userID)
		})
	})
	if err != nil {
		w.logger.Debugw("profile lookup failed",
			"user_id", userID,
			"breaker_state", w.circuitBreaker.State().String(),
			"error", err,
		)
		return nil, err
	}
	return profile, nil
}

func (w *ProfileProviderWrapper) Stats() circuitbreaker.Stats {
	return w.circuitBreaker.Stats()
}
