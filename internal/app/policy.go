package app

import "net/http"

// SecurityPolicy captures the environment-dependent transport and cookie
// rules in one immutable value. It is assembled once at startup and injected
// into the components that need it; nothing reads the environment ad hoc.
type SecurityPolicy struct {
	// SessionSameSite applies to the session cookie. The frontend lives on
	// a different origin in production, so the cookie must be SameSite=None
	// there, which in turn requires Secure.
	SessionSameSite http.SameSite
	// CSRFSameSite applies to the readable csrftoken cookie.
	CSRFSameSite   http.SameSite
	CookieSecure   bool
	SSLRedirect    bool
	HSTSSeconds    int64
	AllowedOrigins []string
}

// DevelopmentPolicy relaxes cookie attributes for a localhost frontend.
func DevelopmentPolicy(origins []string) SecurityPolicy {
	return SecurityPolicy{
		SessionSameSite: http.SameSiteLaxMode,
		CSRFSameSite:    http.SameSiteLaxMode,
		CookieSecure:    false,
		SSLRedirect:     false,
		HSTSSeconds:     0,
		AllowedOrigins:  origins,
	}
}

// ProductionPolicy enforces cross-site cookies over TLS with HSTS.
func ProductionPolicy(origins []string) SecurityPolicy {
	return SecurityPolicy{
		SessionSameSite: http.SameSiteNoneMode,
		CSRFSameSite:    http.SameSiteLaxMode,
		CookieSecure:    true,
		SSLRedirect:     true,
		HSTSSeconds:     31536000,
		AllowedOrigins:  origins,
	}
}
