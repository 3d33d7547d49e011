package authprofiles

import (
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient returns a client authenticated with creds.
// OAuth tokens (sk-ant-oat01-*) and API keys (sk-ant-api03-*) both use x-api-key header.
func AnthropicClient(creds Credentials, opts ...option.RequestOption) *anthropic.Client {
	opts = append([]option.RequestOption{option.WithAPIKey(creds.APIKey)}, opts...)
	c := anthropic.NewClient(opts...)
	return &c
}
