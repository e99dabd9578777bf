package client

import "context"

// TokenSource acquires a bearer credential from the identity provider. An
// empty token means no credential is available; the request is then sent
// unauthenticated and the backend decides.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken always returns the same credential
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// NoToken never supplies a credential
func NoToken(context.Context) (string, error) {
	return "", nil
}

// FirstToken tries each source in order and returns the first non-empty token
func FirstToken(sources ...TokenSource) TokenSource {
	return func(ctx context.Context) (string, error) {
		var lastErr error
		for _, src := range sources {
			if src == nil {
				continue
			}
			token, err := src(ctx)
			if err != nil {
				lastErr = err
				continue
			}
			if token != "" {
				return token, nil
			}
		}
		return "", lastErr
	}
}
