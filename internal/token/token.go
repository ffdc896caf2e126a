// Package token mints and decodes bearer tokens. The claims payload uses the
// WS-* claim URIs emitted by the upstream identity stack, so decoding must
// tolerate both string and list role claims.
package token

import (
	"strings"
	"time"

	"github.com/avkuzmin/contact-admin/internal/errs"
	"github.com/avkuzmin/contact-admin/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

// Claim URIs carried in the token payload.
const (
	ClaimNameID = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"
	ClaimEmail  = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"
	ClaimName   = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name"
	ClaimRole   = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"
	ClaimPhone  = "phone"
)

// Decode extracts the identity claims from the middle segment of a bearer
// token without verifying the signature; the backend is the authority on
// token validity, the client only needs the profile.
func Decode(raw string) (model.Profile, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return model.Profile{}, errs.E(errs.ErrTransport, "TOKEN_DECODE", "malformed bearer token")
	}

	first, last := splitName(str(claims[ClaimName]))
	p := model.Profile{
		ID:        str(claims[ClaimNameID]),
		Email:     str(claims[ClaimEmail]),
		FirstName: first,
		LastName:  last,
		Phone:     str(claims[ClaimPhone]),
		// A token is only ever issued after the email channel verified.
		EmailVerified: true,
		PhoneVerified: false,
		Roles:         normalizeRoles(claims[ClaimRole]),
	}
	return p, nil
}

// Mint signs an HS256 token carrying the profile claims, in the same shape
// Decode consumes.
func Mint(p model.Profile, key []byte, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":       p.ID,
		ClaimNameID: p.ID,
		ClaimEmail:  p.Email,
		ClaimName:   strings.TrimSpace(p.FirstName + " " + p.LastName),
		"iat":       jwt.NewNumericDate(now),
		"exp":       jwt.NewNumericDate(exp),
	}
	if p.Phone != "" {
		claims[ClaimPhone] = p.Phone
	}
	if len(p.Roles) > 0 {
		claims[ClaimRole] = p.Roles
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(key)
	return signed, exp, err
}

// Verify parses and validates a signed token, returning the subject claims.
// Used by the reference server to authenticate bearer requests.
func Verify(raw string, key []byte) (model.Profile, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errs.ErrSessionExpired
		}
		return key, nil
	})
	if err != nil {
		return model.Profile{}, errs.E(errs.ErrSessionExpired, "AUTH_002", "invalid or expired token")
	}
	first, last := splitName(str(claims[ClaimName]))
	return model.Profile{
		ID:            str(claims[ClaimNameID]),
		Email:         str(claims[ClaimEmail]),
		FirstName:     first,
		LastName:      last,
		Phone:         str(claims[ClaimPhone]),
		EmailVerified: true,
		Roles:         normalizeRoles(claims[ClaimRole]),
	}, nil
}

// splitName breaks a display name on the first space: "Ada Lovelace King"
// becomes ("Ada", "Lovelace King").
func splitName(name string) (first, last string) {
	first, last, _ = strings.Cut(name, " ")
	return first, last
}

// normalizeRoles promotes a single role string to a one-element list; an
// absent or unrecognized claim yields an empty list, never nil handling
// downstream.
func normalizeRoles(v any) []string {
	switch rv := v.(type) {
	case string:
		return []string{rv}
	case []any:
		out := make([]string, 0, len(rv))
		for _, r := range rv {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return append([]string(nil), rv...)
	default:
		return []string{}
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
