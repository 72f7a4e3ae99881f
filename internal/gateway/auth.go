package gateway

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/auth"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/errors"
)

// Authenticator turns a raw upgrade request into a trusted identity, or
// rejects it. Verification happens once per connection; the identity holds
// for the connection's whole lifetime.
type Authenticator struct {
	verifier *auth.Verifier
	log      *zap.Logger
}

// NewAuthenticator creates an Authenticator for the shared JWT secret.
func NewAuthenticator(secret string, log *zap.Logger) *Authenticator {
	return &Authenticator{
		verifier: auth.NewVerifier(secret),
		log:      log.With(zap.String("module", "ws_auth")),
	}
}

// Authenticate extracts and verifies the handshake credential. No anonymous
// connections: a request with no token at all is rejected outright.
func (a *Authenticator) Authenticate(r *http.Request) (*auth.Identity, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return nil, errors.ErrNoToken
	}
	identity, err := a.verifier.Verify(token)
	if err != nil {
		a.log.Warn("handshake verification failed",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err),
		)
		return nil, err
	}
	return identity, nil
}

// TokenFromRequest checks the credential channels in order, first match
// wins: Authorization header, bearer subprotocol (the browser-side handshake
// field, since browsers cannot set WebSocket headers), token query param.
func TokenFromRequest(r *http.Request) string {
	if token := bearerFromHeader(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if token := bearerFromSubprotocols(r); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

func bearerFromHeader(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// bearerFromSubprotocols reads a token offered as
// "Sec-WebSocket-Protocol: bearer, <token>".
func bearerFromSubprotocols(r *http.Request) string {
	protocols := parseSubprotocols(r)
	if len(protocols) >= 2 && strings.EqualFold(protocols[0], "bearer") {
		return protocols[1]
	}
	return ""
}

func parseSubprotocols(r *http.Request) []string {
	header := r.Header.Get("Sec-Websocket-Protocol")
	if header == "" {
		return nil
	}
	raw := strings.Split(header, ",")
	protocols := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			protocols = append(protocols, p)
		}
	}
	return protocols
}
