package llm

import "strings"

// Route is the routing decision derived from a credential.
type Route string

const (
	RouteLocal  Route = "local"
	RouteRemote Route = "remote"
)

// Classify returns RouteLocal when the credential's last "-" segment is a
// non-empty run of '9' characters, RouteRemote otherwise. Total and pure.
func Classify(credential string) Route {
	if IsSentinel(credential) {
		return RouteLocal
	}
	return RouteRemote
}

// IsSentinel reports whether credential is a local-routing sentinel key,
// e.g. "999999999999" or "sk-ant-999999999999".
func IsSentinel(credential string) bool {
	tail := credential
	if i := strings.LastIndexByte(credential, '-'); i >= 0 {
		tail = credential[i+1:]
	}
	if tail == "" {
		return false
	}
	for i := 0; i < len(tail); i++ {
		if tail[i] != '9' {
			return false
		}
	}
	return true
}

// MaskCredential hides all but the last four bytes of a credential for logs.
func MaskCredential(credential string) string {
	if len(credential) <= 4 {
		return strings.Repeat("*", len(credential))
	}
	return "***" + credential[len(credential)-4:]
}
