package cmn

import (
	"github.com/dgrijalva/jwt-go"
)

// TenantClaims is the minimal claim set the core reads out of
// HURRY_API_TOKEN to scope registry/CAS operations to a tenant (spec.md §6
// "tenant" appears throughout the registry API but the token format itself
// is left to the deployment).
type TenantClaims struct {
	Tenant string `json:"tenant"`
	jwt.StandardClaims
}

// TenantFromToken extracts the tenant claim from a JWT without verifying
// its signature: the registry, not this process, is the authority that
// accepts or rejects the token on each call, so the core only needs enough
// of the claims to scope its local cache and log lines sensibly. A reformed
// or expired token still round-trips rejection correctly because the
// registry performs real verification server-side.
func TenantFromToken(token string) (string, error) {
	parser := &jwt.Parser{SkipClaimsValidation: true}
	claims := &TenantClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", &ConfigError{Reason: "malformed API token: " + err.Error()}
	}
	if claims.Tenant == "" {
		return "", &ConfigError{Reason: "API token carries no tenant claim"}
	}
	return claims.Tenant, nil
}
