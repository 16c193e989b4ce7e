package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/perbu/perturb/pkg/alphabet"
)

// DefaultTimeout bounds a single remote scoring request.
const DefaultTimeout = 30 * time.Second

// Remote asks an external model server for saliency. The server receives
// {"text": ..., "ids": [...]} and answers {"saliency": [...]}.
type Remote struct {
	url    string
	alpha  *alphabet.Alphabet
	client *http.Client
}

type remoteRequest struct {
	Text string `json:"text"`
	IDs  []int  `json:"ids"`
}

type remoteResponse struct {
	Saliency []float64 `json:"saliency"`
	Error    string    `json:"error,omitempty"`
}

// NewRemote creates a remote scorer. A nil client gets DefaultTimeout.
func NewRemote(url string, alpha *alphabet.Alphabet, client *http.Client) *Remote {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Remote{url: url, alpha: alpha, client: client}
}

// Score posts text to the model server.
func (r *Remote) Score(ctx context.Context, text string) ([]float64, error) {
	ids, err := r.alpha.ToIDs(text)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(remoteRequest{Text: text, IDs: ids})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote scorer: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote scorer: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out remoteResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("remote scorer: %s", out.Error)
	}
	return out.Saliency, nil
}
