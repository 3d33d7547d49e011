package authprofiles

import (
	"encoding/json"
	"fmt"
)

// CredentialType discriminates the stored credential variants.
type CredentialType string

const (
	TypeAPIKey CredentialType = "api_key"
	TypeToken  CredentialType = "token"
	TypeOAuth  CredentialType = "oauth"
)

// Credential is a stored secret for one provider. The set of implementations
// is closed: *APIKeyCredential, *TokenCredential and *OAuthCredential.
type Credential interface {
	Type() CredentialType
	provider() string
}

// APIKeyCredential is a static provider API key.
type APIKeyCredential struct {
	Provider string
	Key      string
	Email    string
	Metadata map[string]string
}

// TokenCredential is a bearer token with an optional expiry (unix ms).
type TokenCredential struct {
	Provider string
	Token    string
	Expires  int64
	Email    string
}

// OAuthCredential is an OAuth access token, optionally refreshable.
type OAuthCredential struct {
	Provider     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64 // unix ms
	ClientID     string
	Email        string
}

func (*APIKeyCredential) Type() CredentialType { return TypeAPIKey }
func (*TokenCredential) Type() CredentialType  { return TypeToken }
func (*OAuthCredential) Type() CredentialType  { return TypeOAuth }

func (c *APIKeyCredential) provider() string { return c.Provider }
func (c *TokenCredential) provider() string  { return c.Provider }
func (c *OAuthCredential) provider() string  { return c.Provider }

// ProviderOf returns the provider a credential belongs to.
func ProviderOf(c Credential) string {
	if c == nil {
		return ""
	}
	return c.provider()
}

// credentialJSON is the on-disk shape shared by every variant.
type credentialJSON struct {
	Type         CredentialType    `json:"type"`
	Provider     string            `json:"provider"`
	Key          string            `json:"key,omitempty"`
	Token        string            `json:"token,omitempty"`
	Expires      int64             `json:"expires,omitempty"`
	AccessToken  string            `json:"accessToken,omitempty"`
	RefreshToken string            `json:"refreshToken,omitempty"`
	ExpiresAt    int64             `json:"expiresAt,omitempty"`
	ClientID     string            `json:"clientId,omitempty"`
	Email        string            `json:"email,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	// Older OpenClaw files store oauth tokens as access/refresh/expires.
	Access  string `json:"access,omitempty"`
	Refresh string `json:"refresh,omitempty"`
}

func (c *APIKeyCredential) MarshalJSON() ([]byte, error) {
	return json.Marshal(credentialJSON{Type: TypeAPIKey, Provider: c.Provider, Key: c.Key, Email: c.Email, Metadata: c.Metadata})
}

func (c *TokenCredential) MarshalJSON() ([]byte, error) {
	return json.Marshal(credentialJSON{Type: TypeToken, Provider: c.Provider, Token: c.Token, Expires: c.Expires, Email: c.Email})
}

func (c *OAuthCredential) MarshalJSON() ([]byte, error) {
	return json.Marshal(credentialJSON{
		Type:         TypeOAuth,
		Provider:     c.Provider,
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		ExpiresAt:    c.ExpiresAt,
		ClientID:     c.ClientID,
		Email:        c.Email,
	})
}

// DecodeCredential parses a single serialized credential.
func DecodeCredential(data []byte) (Credential, error) {
	var raw credentialJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	switch raw.Type {
	case TypeAPIKey:
		return &APIKeyCredential{Provider: raw.Provider, Key: raw.Key, Email: raw.Email, Metadata: raw.Metadata}, nil
	case TypeToken:
		return &TokenCredential{Provider: raw.Provider, Token: raw.Token, Expires: raw.Expires, Email: raw.Email}, nil
	case TypeOAuth:
		return &OAuthCredential{
			Provider:     raw.Provider,
			AccessToken:  firstNonZero(raw.AccessToken, raw.Access),
			RefreshToken: firstNonZero(raw.RefreshToken, raw.Refresh),
			ExpiresAt:    firstNonZero(raw.ExpiresAt, raw.Expires),
			ClientID:     raw.ClientID,
			Email:        raw.Email,
		}, nil
	default:
		return nil, fmt.Errorf("decode credential: unknown type %q", raw.Type)
	}
}

func firstNonZero[T comparable](vals ...T) T {
	var zero T
	for _, v := range vals {
		if v != zero {
			return v
		}
	}
	return zero
}

// Credentials is the normalized form handed to callers: whatever the stored
// variant, the secret ends up in APIKey.
type Credentials struct {
	ProfileID    string            `json:"profileId,omitempty"`
	Provider     string            `json:"provider"`
	APIKey       string            `json:"apiKey,omitempty"`
	RefreshToken string            `json:"refreshToken,omitempty"`
	ExpiresAt    int64             `json:"expiresAt,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Normalize converts a stored credential into Credentials.
func Normalize(profileID string, c Credential) Credentials {
	out := Credentials{ProfileID: profileID, Provider: ProviderOf(c)}
	switch v := c.(type) {
	case *APIKeyCredential:
		out.APIKey = v.Key
		out.Metadata = v.Metadata
	case *TokenCredential:
		out.APIKey = v.Token
		out.ExpiresAt = v.Expires
	case *OAuthCredential:
		out.APIKey = v.AccessToken
		out.RefreshToken = v.RefreshToken
		out.ExpiresAt = v.ExpiresAt
	}
	return out
}

// Secret returns the raw secret material of a stored credential.
func Secret(c Credential) string {
	return Normalize("", c).APIKey
}
