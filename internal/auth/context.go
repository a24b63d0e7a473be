package auth

import "context"

type actorContextKey struct{}
type tokenContextKey struct{}

// ContextWithActor attaches the authorized actor to the context. A context
// that already carries an actor is returned unchanged.
func ContextWithActor(ctx context.Context, actor ActorContext) context.Context {
	if _, ok := ActorFromContext(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, actorContextKey{}, &actor)
}

// ActorFromContext extracts the authorized actor from the context.
func ActorFromContext(ctx context.Context) (ActorContext, bool) {
	if ctx == nil {
		return ActorContext{}, false
	}
	v, ok := ctx.Value(actorContextKey{}).(*ActorContext)
	if !ok || v == nil {
		return ActorContext{}, false
	}
	return *v, true
}

// ContextWithToken stores the raw session token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the raw session token if it was attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
