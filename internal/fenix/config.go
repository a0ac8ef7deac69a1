package fenix

import "time"

// Production endpoints and client registration of the Fenix TFT cloud.
const (
	DefaultAPIBase      = "https://vs2-fe-apim-prod.azure-api.net"
	DefaultIdentityBase = "https://vs2-fe-identity-prod.azurewebsites.net"

	DefaultClientID        = "b1760b2e-69f1-4e89-8233-5840a9accdf8"
	DefaultSubscriptionKey = "e14bfd9fa2b3477e874895cb3babe608"
	DefaultRedirectURI     = "fenix://callback"

	// RedirectScheme is the app's private callback scheme. A redirect that
	// targets it terminates the browser emulation.
	RedirectScheme = "fenix"

	DefaultScopes = "profile openid offline_access DataProcessing.Read DataProcessing.Write " +
		"Device.Read Device.Write Installation.Read Installation.Write " +
		"IOTManagement.Read IOTManagement.Write Room.Read Room.Write " +
		"TermOfUse.Read TermOfUse.Write"

	defaultTimeout = 10 * time.Second
)

// Config carries vendor endpoints and account credentials. Zero-valued
// endpoint fields fall back to the production cloud; tests point them at
// an httptest server.
type Config struct {
	APIBase         string
	IdentityBase    string
	ClientID        string
	ClientSecret    string
	SubscriptionKey string
	RedirectURI     string
	Scopes          string

	Username string
	Password string

	// Timeout bounds every single HTTP call (login steps included).
	Timeout time.Duration
}

// withDefaults fills unset fields with production values.
func (c Config) withDefaults() Config {
	if c.APIBase == "" {
		c.APIBase = DefaultAPIBase
	}
	if c.IdentityBase == "" {
		c.IdentityBase = DefaultIdentityBase
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.SubscriptionKey == "" {
		c.SubscriptionKey = DefaultSubscriptionKey
	}
	if c.RedirectURI == "" {
		c.RedirectURI = DefaultRedirectURI
	}
	if c.Scopes == "" {
		c.Scopes = DefaultScopes
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}
