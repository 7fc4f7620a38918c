package domain

// AskRequest is the body of POST /v1/ask. Exactly one of PromptName or
// PromptText must be set; Data supplies template variables.
type AskRequest struct {
	PromptName string            `json:"prompt_name,omitempty"`
	PromptText string            `json:"prompt_text,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	Model      string            `json:"model,omitempty"`
}

// AskResponse is the normalized result of one completion call.
type AskResponse struct {
	Success    bool        `json:"success"`
	Response   string      `json:"response,omitempty"`
	ModelUsed  string      `json:"model_used"`
	TokensUsed *TokenUsage `json:"tokens_used,omitempty"`
	RequestID  string      `json:"request_id"`
	Error      string      `json:"error,omitempty"`
}

// TokenUsage carries the provider's token accounting for one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AccessToken is the response of the token-issuing endpoints.
type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// Identity is the result of a successful credential check. Attributes are
// opaque display data (role, email); the gateway never persists them.
type Identity struct {
	Subject    string            `json:"subject"`
	Attributes map[string]string `json:"attributes,omitempty"`
}
