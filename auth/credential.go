// Package auth resolves the DashScope credential used for a synthesis
// request and formats it for the wire and for logs.
package auth

import (
	"errors"
	"strings"
)

const bearerPrefix = "Bearer "

var ErrNoCredential = errors.New("no API key provided")

// Resolve picks the credential for a request. A key sent in the body wins,
// then a bearer token from the Authorization header, then the configured
// fallback.
func Resolve(bodyKey, authorization, fallback string) (string, error) {
	if key := strings.TrimSpace(bodyKey); key != "" {
		return key, nil
	}

	if key := FromAuthorization(authorization); key != "" {
		return key, nil
	}

	if key := strings.TrimSpace(fallback); key != "" {
		return key, nil
	}

	return "", ErrNoCredential
}

// FromAuthorization extracts the token of a "Bearer <token>" header value.
func FromAuthorization(header string) string {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}

	return strings.TrimSpace(header[len(bearerPrefix):])
}

// Bearer formats key as an Authorization header value.
func Bearer(key string) string {
	return bearerPrefix + key
}

// Mask hides all but the first and last three characters of key.
func Mask(key string) string {
	runes := []rune(key)
	if len(runes) <= 8 {
		return strings.Repeat("*", len(runes))
	}

	return string(runes[:3]) + "..." + string(runes[len(runes)-3:])
}
