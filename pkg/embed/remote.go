package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultRemoteTimeout = 30 * time.Second

// RemoteEncoder sends texts and image references to an inference server that
// hosts the aligned model and returns already-fused vectors. The wire format
// follows the KServe/Triton v2 HTTP inference protocol: named inputs with
// shape and datatype, one "embedding" output with flattened FP32 data.
//
// The server applies the same normalize-then-concatenate fusion as the local
// path; the encoder only validates shape.
type RemoteEncoder struct {
	inferURL string
	dim      int
	client   *http.Client
}

// NewRemoteEncoder creates a client for the aligned model at baseURL.
// dim is the aligned vector dimension the server is deployed with.
func NewRemoteEncoder(baseURL, model string, dim int, timeout time.Duration) (*RemoteEncoder, error) {
	if baseURL == "" || model == "" {
		return nil, fmt.Errorf("embed: remote encoder needs a base URL and model name")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embed: remote encoder dim must be positive, got %d", dim)
	}
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &RemoteEncoder{
		inferURL: fmt.Sprintf("%s/v2/models/%s/infer", strings.TrimRight(baseURL, "/"), model),
		dim:      dim,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Dim returns the aligned vector dimension.
func (e *RemoteEncoder) Dim() int { return e.dim }

type inferInput struct {
	Name     string   `json:"name"`
	Shape    []int    `json:"shape"`
	Datatype string   `json:"datatype"`
	Data     []string `json:"data"`
}

type inferRequest struct {
	Inputs  []inferInput `json:"inputs"`
	Outputs []struct {
		Name string `json:"name"`
	} `json:"outputs"`
}

type inferResponse struct {
	Outputs []struct {
		Name  string    `json:"name"`
		Shape []int     `json:"shape"`
		Data  []float32 `json:"data"`
	} `json:"outputs"`
}

// Embed requests aligned vectors for the given rows. Either modality may be
// nil; the server zero-pads the absent one. Both present must match in length.
func (e *RemoteEncoder) Embed(ctx context.Context, texts, refs []string) ([][]float32, error) {
	n := len(texts)
	if texts == nil {
		n = len(refs)
	}
	if n == 0 {
		return nil, fmt.Errorf("embed: remote encoder called with no inputs")
	}
	if texts != nil && refs != nil && len(texts) != len(refs) {
		return nil, fmt.Errorf("embed: %d texts but %d image refs", len(texts), len(refs))
	}

	req := inferRequest{
		Outputs: []struct {
			Name string `json:"name"`
		}{{Name: "embedding"}},
	}
	if texts != nil {
		req.Inputs = append(req.Inputs, inferInput{
			Name: "texts", Shape: []int{len(texts)}, Datatype: "BYTES", Data: texts,
		})
	}
	if refs != nil {
		req.Inputs = append(req.Inputs, inferInput{
			Name: "image_refs", Shape: []int{len(refs)}, Datatype: "BYTES", Data: refs,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("embed: marshal infer request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.inferURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: build infer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embed: inference server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("embed: inference server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embed: decode infer response: %w", err)
	}
	for _, o := range out.Outputs {
		if o.Name != "embedding" {
			continue
		}
		return reshape(o.Data, n, e.dim)
	}
	return nil, fmt.Errorf("%w: no embedding output", ErrNoEmbeddings)
}

// reshape splits flat row-major data into n rows of width dim.
func reshape(flat []float32, n, dim int) ([][]float32, error) {
	if len(flat) != n*dim {
		return nil, fmt.Errorf("embed: server returned %d values, want %d (%dx%d)", len(flat), n*dim, n, dim)
	}
	rows := make([][]float32, n)
	for i := 0; i < n; i++ {
		rows[i] = flat[i*dim : (i+1)*dim]
	}
	return rows, nil
}
