package http

import (
	"encoding/base64"
	"net/http"

	"github.com/nucleus/itsm-core/internal/core"
)

// =============================================================================
// AUTHENTICATION STRATEGIES
// =============================================================================

// AuthConfig represents authentication configuration.
type AuthConfig interface {
	Apply(req *http.Request)
}

// NoAuth represents no authentication.
type NoAuth struct{}

func (a NoAuth) Apply(req *http.Request) {}

// BasicAuth uses HTTP Basic Authentication.
type BasicAuth struct {
	Username string
	Password string
}

// Apply adds Basic auth header to the request.
func (a BasicAuth) Apply(req *http.Request) {
	if a.Username == "" && a.Password == "" {
		return
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
	req.Header.Set("Authorization", "Basic "+credentials)
}

// BearerToken uses OAuth access token authentication.
type BearerToken struct {
	Token string
}

// Apply adds Bearer token header to the request.
func (a BearerToken) Apply(req *http.Request) {
	if a.Token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
}

// SelectAuth picks bearer authentication when an access token is configured
// and basic authentication otherwise.
func SelectAuth(accessToken, username, password string) (AuthConfig, error) {
	switch {
	case accessToken != "":
		return BearerToken{Token: accessToken}, nil
	case username != "" && password != "":
		return BasicAuth{Username: username, Password: password}, nil
	}
	return nil, &core.ConfigurationError{Reason: "missing credentials: set an access token or a username and password"}
}
