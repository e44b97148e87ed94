package main

import (
	"net/http"
)

// bearerTransport adds a static bearer token to every outgoing request.
// It is used for Ollama servers that sit behind an authenticating proxy.
type bearerTransport struct {
	base  http.RoundTripper
	token string
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(clone)
}

// newBearerClient returns an HTTP client for the model server, or nil when
// no token is configured so the provider keeps its own default client.
func newBearerClient(token string) *http.Client {
	if token == "" {
		return nil
	}
	return &http.Client{
		Transport: &bearerTransport{base: http.DefaultTransport, token: token},
	}
}
