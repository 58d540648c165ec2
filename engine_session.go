package authgate

import (
	"context"
	"time"
)

// GetSession resolves token for the get-session endpoint. It returns
// ErrUnauthorized when there is no live session.
func (e *Engine) GetSession(ctx context.Context, token string) (*SessionView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if err := e.limit(ctx, RouteGetSession); err != nil {
		return nil, err
	}

	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricGetSessionLatency, time.Since(start)) }()
	}
	return e.ResolveSession(ctx, token)
}

// ResolveSession is GetSession without the rate limit, for middleware that
// attaches the caller's session to every request.
func (e *Engine) ResolveSession(ctx context.Context, token string) (*SessionView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		return nil, ErrUnauthorized
	}

	validator, err := e.strategies.validator(StrategySession)
	if err != nil {
		return nil, err
	}
	s, err := validator.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	return &SessionView{Session: s, User: userFromSession(s)}, nil
}

// SignOut revokes token in both tiers. Signing out an unknown token is
// not an error.
func (e *Engine) SignOut(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.limit(ctx, RouteSignOut); err != nil {
		return err
	}
	if token == "" {
		return ErrUnauthorized
	}

	revoker, err := e.strategies.revoker(StrategySession)
	if err != nil {
		return err
	}
	if err := revoker.Revoke(ctx, token); err != nil {
		return err
	}

	e.metricInc(MetricSignOut)
	e.metricInc(MetricSessionInvalidated)
	return nil
}

// SignOutAll revokes every session of the owner of token, including the
// one presenting it.
func (e *Engine) SignOutAll(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.limit(ctx, RouteSignOutAll); err != nil {
		return err
	}
	if token == "" {
		return ErrUnauthorized
	}

	validator, err := e.strategies.validator(StrategySession)
	if err != nil {
		return err
	}
	sess, err := validator.Validate(ctx, token)
	if err != nil {
		return err
	}
	if err := e.sessions.InvalidateUser(ctx, sess.UserID); err != nil {
		return storageError("invalidate user sessions", err)
	}

	e.metricInc(MetricSignOut)
	e.metricInc(MetricSessionInvalidated)
	return nil
}
