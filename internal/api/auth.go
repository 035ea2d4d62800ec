// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/spooncast/echo/internal/log"
	"github.com/spooncast/echo/internal/session"
)

// parseAuthorization turns an incoming Authorization header into the
// session package's Authorization value (spec.md §6.1 "Authorization:
// Bearer <token> or Basic user:pass").
func parseAuthorization(header string) (session.Authorization, bool) {
	const bearerPrefix = "Bearer "
	const basicPrefix = "Basic "

	switch {
	case strings.HasPrefix(header, bearerPrefix):
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if token == "" {
			return session.Authorization{}, false
		}
		return session.NewBearerAuthorization(token), true
	case strings.HasPrefix(header, basicPrefix):
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, basicPrefix))
		if err != nil {
			return session.Authorization{}, false
		}
		user, pass, found := strings.Cut(string(raw), ":")
		if !found || user == "" {
			return session.Authorization{}, false
		}
		return session.NewBasicAuthorization(user, pass), true
	default:
		return session.Authorization{}, false
	}
}

// runDefaultAuthPolicy registers the minimal AuthorizeSession trigger this
// control plane ships with: a Bearer token must be non-empty, a Basic
// password must be non-empty. spec.md §4.1 leaves the actual credential
// check to whatever triggers are registered for EventAuthorizeSession — the
// real policy (token issuer, user directory, ...) is an external
// collaborator; this is the permissive default so the endpoint is usable
// out of the box, not a stand-in for real credential validation.
func runDefaultAuthPolicy(ctx context.Context, manager *session.Manager) error {
	trigger := session.NewEventTrigger()
	if err := manager.RegisterTrigger(ctx, session.EventAuthorizeSession, trigger); err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-trigger:
				msg := env.Message
				if msg.AuthResponder == nil {
					continue
				}
				if msg.Authorization.IsBearer() && msg.Authorization.Token() == "" {
					msg.AuthResponder <- session.ErrUnauthorized
					continue
				}
				if !msg.Authorization.IsBearer() {
					if _, pass := msg.Authorization.Basic(); pass == "" {
						msg.AuthResponder <- session.ErrUnauthorized
						continue
					}
				}
				msg.AuthResponder <- nil
			}
		}
	}()
	log.L().Info().Msg("api: default authorize_session policy registered")
	return nil
}

func bearerOrBasicFromRequest(r *http.Request) (session.Authorization, bool) {
	return parseAuthorization(r.Header.Get("Authorization"))
}
