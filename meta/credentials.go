package meta

import "os"

// Scope identifies which Meta credential a Graph operation needs.
type Scope string

const (
	ScopePage      Scope = "page"
	ScopeInstagram Scope = "instagram"
	ScopeWhatsApp  Scope = "whatsapp"
)

// IGTokenPolicy decides whether the Instagram scope may fall back to the
// page access token. The Graph API historically accepted the page token for
// IG publishing; newer app setups require a dedicated token. A deployment
// picks exactly one policy at construction.
type IGTokenPolicy string

const (
	IGTokenDedicated    IGTokenPolicy = "dedicated"
	IGTokenPageFallback IGTokenPolicy = "page_fallback"
)

// Credentials holds the configured default tokens per scope.
type Credentials struct {
	PageAccessToken string
	IGAccessToken   string
	WhatsAppToken   string
	IGPolicy        IGTokenPolicy
}

type lookup func() string

// CredentialResolver resolves the token for a scope by walking an ordered
// chain of lookups: explicit override, configured default, environment
// fallback. It performs no I/O beyond reading the environment and never
// panics; absence is a typed error.
type CredentialResolver struct {
	chains map[Scope][]lookup
}

func NewCredentialResolver(creds Credentials) *CredentialResolver {
	if creds.IGPolicy == "" {
		creds.IGPolicy = IGTokenDedicated
	}

	pageChain := []lookup{
		staticLookup(creds.PageAccessToken),
		envLookup("META_PAGE_ACCESS_TOKEN"),
	}

	igChain := []lookup{
		staticLookup(creds.IGAccessToken),
		envLookup("META_IG_ACCESS_TOKEN"),
	}
	if creds.IGPolicy == IGTokenPageFallback {
		igChain = append(igChain, pageChain...)
	}

	// WhatsApp uses the page token by default when no dedicated token is set.
	waChain := []lookup{
		staticLookup(creds.WhatsAppToken),
		envLookup("META_WHATSAPP_TOKEN"),
	}
	waChain = append(waChain, pageChain...)

	return &CredentialResolver{
		chains: map[Scope][]lookup{
			ScopePage:      pageChain,
			ScopeInstagram: igChain,
			ScopeWhatsApp:  waChain,
		},
	}
}

// Resolve returns the first non-empty token in the precedence chain for the
// scope, or a missing_credential error when the chain is exhausted.
func (r *CredentialResolver) Resolve(scope Scope, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	for _, l := range r.chains[scope] {
		if token := l(); token != "" {
			return token, nil
		}
	}
	return "", missingCredential(scope)
}

func staticLookup(value string) lookup {
	return func() string { return value }
}

func envLookup(key string) lookup {
	return func() string { return os.Getenv(key) }
}
