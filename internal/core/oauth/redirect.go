package oauth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/duynhne/identity-service/internal/core/domain"
)

// RemoteTarget selects the externally visible deployment.
type RemoteTarget string

const (
	TargetLocal   RemoteTarget = "local"
	TargetSandbox RemoteTarget = "sandbox"
	TargetRelease RemoteTarget = "release"
)

// PagesURL returns the frontend base URL for the target.
func (t RemoteTarget) PagesURL() string {
	switch t {
	case TargetSandbox:
		return "https://sandbox.pages.example.com"
	case TargetRelease:
		return "https://pages.example.com"
	default:
		return "http://localhost:4104"
	}
}

// URLKind says which frontend flow the provider redirects back into.
type URLKind string

const (
	URLKindRegister URLKind = "register"
	URLKindLogin    URLKind = "login"
)

// ParseURLKind validates a kind selector from the request.
func ParseURLKind(s string) (URLKind, error) {
	switch k := URLKind(strings.ToLower(s)); k {
	case URLKindRegister, URLKindLogin:
		return k, nil
	default:
		return "", fmt.Errorf("unsupported oauth url kind %q: %w", s, domain.ErrInternal)
	}
}

// Redirects builds redirect URLs under a pages base URL.
type Redirects struct {
	base string
}

// NewRedirects uses pagesURL when set, otherwise the target's default.
func NewRedirects(target RemoteTarget, pagesURL string) (*Redirects, error) {
	base := pagesURL
	if base == "" {
		base = target.PagesURL()
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid pages url %q", base)
	}
	return &Redirects{base: strings.TrimRight(base, "/")}, nil
}

// Google returns the redirect URL for the Google flow of kind. The same
// value must be used when building the consent URL and when exchanging the
// code.
func (r *Redirects) Google(kind URLKind) (string, error) {
	switch kind {
	case URLKindRegister, URLKindLogin:
		return r.base + "/user/" + string(kind) + "/oauth/google", nil
	default:
		return "", fmt.Errorf("unsupported oauth url kind %q: %w", kind, domain.ErrInternal)
	}
}
