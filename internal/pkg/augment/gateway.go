package augment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// SummaryMessage is one entry of the transcript sent to Summarize.
type SummaryMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// Gateway is the stateless request/response boundary to the external
// text-augmentation service. A Gateway constructed without a base URL is
// "unconfigured": Status reports unavailable and every operation fails with
// ErrUnavailable before touching the network.
type Gateway struct {
	baseURL string
	client  *http.Client
}

// Ensure the gateway satisfies the orchestrator's boundary
var _ Service = (*Gateway)(nil)

// NewGateway constructs a Gateway for the given service base URL.
func NewGateway(baseURL string) *Gateway {
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// NewGatewayFromEnv reads AI_BASE_URL. An empty variable yields an
// unconfigured Gateway rather than an error; the augmentation features simply
// stay disabled.
func NewGatewayFromEnv() *Gateway {
	return NewGateway(strings.TrimSpace(os.Getenv("AI_BASE_URL")))
}

func (g *Gateway) configured() bool {
	return g.baseURL != ""
}

// Status reports whether the augmentation service is available. An
// unconfigured or unreachable service is reported as unavailable, not as an
// error.
func (g *Gateway) Status(ctx context.Context) (bool, error) {
	if !g.configured() {
		return false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/ai/status", nil)
	if err != nil {
		return false, fmt.Errorf("augment: build status request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()

	var out struct {
		Available bool `json:"available"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, nil
	}
	return out.Available, nil
}

// Chat sends a free-form message to the assistant and returns its reply.
func (g *Gateway) Chat(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", requestErrorf("message is required")
	}

	var out struct {
		Response string `json:"response"`
	}
	in := map[string]string{"message": message}
	if err := g.post(ctx, "/ai/chat", in, &out); err != nil {
		return "", err
	}
	return stripQuotePair(out.Response), nil
}

// Rewrite returns a cleaned-up version of the message with the original
// intent and tone preserved.
func (g *Gateway) Rewrite(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", requestErrorf("message is required")
	}

	var out struct {
		Original  string `json:"original"`
		Rewritten string `json:"rewritten"`
	}
	in := map[string]string{"message": message}
	if err := g.post(ctx, "/ai/rewrite", in, &out); err != nil {
		return "", err
	}
	return stripQuotePair(out.Rewritten), nil
}

// Translate renders the message in the target language.
func (g *Gateway) Translate(ctx context.Context, message, targetLanguage string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", requestErrorf("message is required")
	}
	if strings.TrimSpace(targetLanguage) == "" {
		return "", requestErrorf("target language is required")
	}

	var out struct {
		Original       string `json:"original"`
		Translated     string `json:"translated"`
		TargetLanguage string `json:"targetLanguage"`
	}
	in := map[string]string{"message": message, "targetLanguage": targetLanguage}
	if err := g.post(ctx, "/ai/translate", in, &out); err != nil {
		return "", err
	}
	return stripQuotePair(out.Translated), nil
}

// Complete continues a partial draft with a short natural completion.
func (g *Gateway) Complete(ctx context.Context, partialMessage string) (string, error) {
	partialMessage = strings.TrimSpace(partialMessage)
	if partialMessage == "" {
		return "", requestErrorf("partial message is required")
	}

	var out struct {
		Partial    string `json:"partial"`
		Completion string `json:"completion"`
	}
	in := map[string]string{"partialMessage": partialMessage}
	if err := g.post(ctx, "/ai/complete", in, &out); err != nil {
		return "", err
	}
	return stripQuotePair(out.Completion), nil
}

// Summarize condenses an ordered transcript into a few key points.
func (g *Gateway) Summarize(ctx context.Context, messages []SummaryMessage) (string, error) {
	if len(messages) == 0 {
		return "", requestErrorf("messages are required")
	}

	var out struct {
		MessageCount int    `json:"messageCount"`
		Summary      string `json:"summary"`
	}
	in := map[string][]SummaryMessage{"messages": messages}
	if err := g.post(ctx, "/ai/summarize", in, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Summary), nil
}

func (g *Gateway) post(ctx context.Context, path string, in, out any) error {
	if !g.configured() {
		return ErrUnavailable
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("augment: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("augment: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return ErrUnavailable
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return upstreamError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return requestErrorf("malformed service response")
	}
	return nil
}

// upstreamError maps a non-2xx response to a RequestError carrying the
// upstream's {message, error} payload when present.
func upstreamError(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
		Err     string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(data, &payload); err == nil && payload.Message != "" {
		return requestErrorf(payload.Message)
	}
	return requestErrorf(fmt.Sprintf("service responded with status %d", resp.StatusCode))
}

// stripQuotePair removes a single matching pair of quote characters the
// service sometimes wraps its answer in.
func stripQuotePair(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
