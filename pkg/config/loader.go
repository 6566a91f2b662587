package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cubicler/cubicler/pkg/cubicerrors"
)

// DefaultFetchTimeout bounds a remote config fetch when no explicit timeout
// is supplied.
const DefaultFetchTimeout = 10 * time.Second

// Validatable is implemented by every config document type.
type Validatable interface {
	Validate() error
}

// Source reads raw bytes for a config document, either from a local file or
// a remote URL, as named by an environment variable (spec §4.2).
type Source struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewSource builds a Source with sensible defaults.
func NewSource() *Source {
	return &Source{Client: http.DefaultClient, Timeout: DefaultFetchTimeout}
}

// Read resolves envVar to a URL or file path and returns its raw bytes.
func (s *Source) Read(ctx context.Context, envVar string) (source string, raw []byte, err error) {
	source = os.Getenv(envVar)
	if source == "" {
		return "", nil, fmt.Errorf("environment variable %s is not set", envVar)
	}

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		raw, err = s.fetchURL(ctx, source)
		return source, raw, err
	}

	raw, err = os.ReadFile(source)
	return source, raw, err
}

func (s *Source) fetchURL(ctx context.Context, url string) ([]byte, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &cubicerrors.UpstreamStatusError{Status: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}

// docPtr constrains T's pointer type to implement Validatable, letting Load
// allocate a T and validate it through the same type parameter.
type docPtr[T any] interface {
	*T
	Validatable
}

// Load reads the document named by envVar, checks it against its JSON
// Schema (schemaName, one of "agents"/"providers"/"webhooks"), parses it,
// and validates the domain invariants via T's Validate method.
func Load[T any, PT docPtr[T]](ctx context.Context, src *Source, envVar, schemaName string) (*T, error) {
	source, raw, err := src.Read(ctx, envVar)
	if err != nil {
		return nil, &cubicerrors.ConfigLoadError{Source: envVar, Cause: err}
	}

	if err := ValidateSchema(schemaName, raw); err != nil {
		return nil, &cubicerrors.ConfigInvalidError{Source: source, Cause: err}
	}

	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &cubicerrors.ConfigLoadError{Source: source, Cause: err}
	}

	if err := PT(&doc).Validate(); err != nil {
		return nil, &cubicerrors.ConfigInvalidError{Source: source, Cause: err}
	}

	return &doc, nil
}
