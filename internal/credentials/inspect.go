// Package credentials describes the bearer token entered in the settings
// panel. Tokens are never verified or altered here; the backend is the
// authority.
package credentials

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Info is what the settings panel shows about a token.
type Info struct {
	JWT       bool
	Subject   string
	ExpiresAt time.Time
}

// Inspect decodes a JWT-shaped token without checking its signature.
// Anything else is reported as opaque.
func Inspect(token string) Info {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return Info{}
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Info{}
	}
	info := Info{JWT: true, Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info
}

// Expired reports whether the token carries an expiry before now.
func (i Info) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// Describe is a one-line summary for the settings panel.
func (i Info) Describe(now time.Time) string {
	if !i.JWT {
		return "opaque token"
	}
	var b strings.Builder
	b.WriteString("JWT")
	if i.Subject != "" {
		fmt.Fprintf(&b, " for %s", i.Subject)
	}
	switch {
	case i.ExpiresAt.IsZero():
		b.WriteString(", no expiry")
	case i.Expired(now):
		fmt.Fprintf(&b, ", expired %s ago", now.Sub(i.ExpiresAt).Round(time.Second))
	default:
		fmt.Fprintf(&b, ", expires in %s", i.ExpiresAt.Sub(now).Round(time.Second))
	}
	return b.String()
}
