package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthenticated is returned when there is no caller identity.
	ErrUnauthenticated = errors.New("usuario no autenticado")
	// ErrUnsupportedPrincipal is returned for principal shapes this package
	// does not know how to read.
	ErrUnsupportedPrincipal = errors.New("tipo de autenticación no soportado")
)

// Standard attribute names exposed by every principal.
const (
	AttrSubject = "sub"
	AttrEmail   = "email"
	AttrName    = "name"
	AttrPicture = "picture"
)

// Principal is an authenticated caller.
type Principal interface {
	Attribute(name string) string
}

// TokenPrincipal is a caller identified by a locally verified bearer JWT.
type TokenPrincipal struct {
	Claims jwt.MapClaims
}

// Attribute returns a claim as a string. name and picture fall back to the
// user_metadata object the identity provider embeds in its tokens.
func (p *TokenPrincipal) Attribute(name string) string {
	if p == nil {
		return ""
	}
	if v := claimString(p.Claims, name); v != "" {
		return v
	}
	meta, _ := p.Claims["user_metadata"].(map[string]any)
	switch name {
	case AttrName:
		if v := claimString(meta, "full_name"); v != "" {
			return v
		}
		return claimString(meta, "name")
	case AttrPicture:
		if v := claimString(meta, "avatar_url"); v != "" {
			return v
		}
		return claimString(meta, "picture")
	}
	return ""
}

// UserInfoPrincipal is a caller whose token was accepted by the identity
// provider's user-info endpoint. Attributes are already mapped to the
// standard names.
type UserInfoPrincipal struct {
	Attributes map[string]string
}

func (p *UserInfoPrincipal) Attribute(name string) string {
	if p == nil {
		return ""
	}
	return p.Attributes[name]
}

// UserID extracts the stable subject identifier from a principal.
func UserID(p any) (string, error) {
	var sub string
	switch v := p.(type) {
	case nil:
		return "", ErrUnauthenticated
	case *TokenPrincipal:
		if v == nil {
			return "", ErrUnauthenticated
		}
		sub = v.Attribute(AttrSubject)
	case *UserInfoPrincipal:
		if v == nil {
			return "", ErrUnauthenticated
		}
		sub = v.Attribute(AttrSubject)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedPrincipal, p)
	}
	if sub == "" {
		return "", ErrUnauthenticated
	}
	return sub, nil
}

// Email returns the caller's e-mail, or "" when unknown.
func Email(p Principal) string { return attribute(p, AttrEmail) }

// Name returns the caller's display name, or "" when unknown.
func Name(p Principal) string { return attribute(p, AttrName) }

// Picture returns the caller's avatar URL, or "" when unknown.
func Picture(p Principal) string { return attribute(p, AttrPicture) }

func attribute(p Principal, name string) string {
	if p == nil {
		return ""
	}
	return p.Attribute(name)
}

func claimString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}
