package awsapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	log "github.com/sirupsen/logrus"
)

// Options konfigurieren den Zugriff auf die AWS-Dienste
type Options struct {
	Region   string
	Endpoint string // optional, ersetzt https://{service}.{region}.amazonaws.com
	Timeout  time.Duration
}

// Client sendet SigV4-signierte JSON-Anfragen an AWS-Dienste
type Client struct {
	opts        Options
	credentials aws.CredentialsProvider
	signer      *v4.Signer
	httpClient  *http.Client
}

// APIError ist eine Fehlerantwort eines AWS-Dienstes
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("aws api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("aws api error (status %d): %s: %s", e.StatusCode, e.Type, e.Message)
}

// New lädt die Standard-Credentials-Kette (Umgebung, Profile, Instanzrolle)
func New(ctx context.Context, opts Options) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewWithCredentials(opts, cfg.Credentials), nil
}

// NewWithCredentials erstellt einen Client mit einem festen Credentials-Provider
func NewWithCredentials(opts Options, credentials aws.CredentialsProvider) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		opts:        opts,
		credentials: credentials,
		signer:      v4.NewSigner(),
		httpClient:  &http.Client{Timeout: opts.Timeout},
	}
}

// Region gibt die konfigurierte Region zurück
func (c *Client) Region() string {
	return c.opts.Region
}

// endpointURL setzt Basis-URL und Pfad zusammen
func (c *Client) endpointURL(host, path string) (string, error) {
	base := c.opts.Endpoint
	if base == "" {
		base = fmt.Sprintf("https://%s.%s.amazonaws.com", host, c.opts.Region)
	}
	if path == "" || path == "/" {
		return strings.TrimRight(base, "/") + "/", nil
	}
	return url.JoinPath(base, path)
}

// Call sendet body als JSON und dekodiert die Antwort nach out (falls nicht nil).
// signingName ist der Dienstname für die Signatur, host der Endpunkt-Präfix.
func (c *Client) Call(ctx context.Context, signingName, host, path string, headers map[string]string, body, out interface{}) error {
	apiURL, err := c.endpointURL(host, path)
	if err != nil {
		return fmt.Errorf("failed to create API URL: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if c.credentials == nil {
		return fmt.Errorf("no aws credentials configured")
	}
	creds, err := c.credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve aws credentials: %w", err)
	}

	sum := sha256.Sum256(payload)
	if err := c.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), signingName, c.opts.Region, time.Now()); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	log.Debugf("%s request to %s finished with status %d in %v", signingName, apiURL, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseAPIError(status int, body []byte) error {
	var payload struct {
		Type         string `json:"__type"`
		Message      string `json:"message"`
		MessageUpper string `json:"Message"`
	}
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	if json.Unmarshal(body, &payload) == nil {
		// Typ kann als "namespace#Code" geliefert werden
		if i := strings.LastIndex(payload.Type, "#"); i >= 0 {
			payload.Type = payload.Type[i+1:]
		}
		apiErr.Type = payload.Type
		if payload.Message != "" {
			apiErr.Message = payload.Message
		} else if payload.MessageUpper != "" {
			apiErr.Message = payload.MessageUpper
		}
	}
	return apiErr
}
