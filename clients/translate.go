package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/livepeer/dubworker/errors"
	"github.com/livepeer/dubworker/log"
	"github.com/livepeer/dubworker/metrics"
	"github.com/livepeer/dubworker/pipeline"
)

type translateBatchRequest struct {
	Texts  []string `json:"texts"`
	Source string   `json:"source"`
	Target string   `json:"target"`
}

type translateBatchResponse struct {
	Texts []string `json:"texts"`
}

// httpTranslator is shared plumbing for the FreeService and PaidApi
// variants (§4.6.3/§9): POST a batch of source text, get back the same
// number of translated strings in order, retried with backoff per-batch
// (§4.6.3's "batch-level retry with exponential backoff, bounded attempts").
type httpTranslator struct {
	name       string
	endpoint   string
	apiKey     string
	client     *retryablehttp.Client
	maxRetries int
	retryBase  time.Duration
	retryCap   time.Duration
}

func newHTTPTranslator(name, endpoint, apiKey string, maxRetries int, retryBase, retryCap time.Duration) *httpTranslator {
	client := retryablehttp.NewClient()
	client.RetryMax = 0 // batch-level backoff below supersedes the transport-level retry
	client.Logger = log.NewRetryableHTTPLogger()
	return &httpTranslator{
		name:       name,
		endpoint:   endpoint,
		apiKey:     apiKey,
		client:     client,
		maxRetries: maxRetries,
		retryBase:  retryBase,
		retryCap:   retryCap,
	}
}

func (t *httpTranslator) Name() string { return t.name }

func (t *httpTranslator) TranslateBatch(ctx context.Context, segments []pipeline.Segment, srcLang, tgtLang string) ([]pipeline.Segment, error) {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}

	body, err := json.Marshal(translateBatchRequest{Texts: texts, Source: srcLang, Target: tgtLang})
	if err != nil {
		return nil, errors.NewTaskError(errors.TranslationError, fmt.Sprintf("encoding translation batch: %v", err), err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.retryBase
	bo.MaxInterval = t.retryCap
	bounded := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(t.maxRetries)), ctx)

	var translated []string
	op := func() error {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if t.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+t.apiKey)
		}

		resp, err := metrics.MonitorRequest(metrics.Default.TranslateClient, t.client.StandardClient(), req.Request)
		if err != nil {
			return err // transient network error: retryable
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("%s returned status %d", t.name, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("%s returned status %d", t.name, resp.StatusCode))
		}

		var parsed translateBatchResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding %s response: %w", t.name, err))
		}
		if len(parsed.Texts) != len(texts) {
			return backoff.Permanent(fmt.Errorf("%s returned %d texts, expected %d", t.name, len(parsed.Texts), len(texts)))
		}
		translated = parsed.Texts
		return nil
	}

	if err := backoff.Retry(op, bounded); err != nil {
		return nil, errors.NewTaskError(errors.TranslationError, fmt.Sprintf("translating batch via %s: %v", t.name, err), err)
	}

	out := make([]pipeline.Segment, len(segments))
	for i, s := range segments {
		s.Text = translated[i]
		s.Lang = tgtLang
		out[i] = s
	}
	return out, nil
}

// NewFreeService builds the no-cost §4.6.3/§9 "FreeService" translator
// variant: looser retry budget, shared public endpoint.
func NewFreeService(endpoint string) pipeline.Translator {
	return newHTTPTranslator("free-service", endpoint, "", 2, 1*time.Second, 10*time.Second)
}

// NewPaidApi builds the metered "PaidApi" translator variant: an API key
// and a tighter retry budget since each attempt is billed.
func NewPaidApi(endpoint, apiKey string) pipeline.Translator {
	return newHTTPTranslator("paid-api", endpoint, apiKey, 1, 1*time.Second, 5*time.Second)
}
