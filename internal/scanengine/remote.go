package scanengine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
)

// maxResponseBytes bounds a remote scan response.
const maxResponseBytes = 64 << 20

// RemoteEngine delegates scans to a scan service over HTTP, posting
// {"repoUrl": ..., "scanType": ...} and returning the response body.
type RemoteEngine struct {
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

var _ schemas.ScanEngine = (*RemoteEngine)(nil)

// NewRemoteEngine creates a RemoteEngine for endpoint. A nil client uses
// http.DefaultClient.
func NewRemoteEngine(endpoint string, client *http.Client, logger *zap.Logger) *RemoteEngine {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteEngine{endpoint: endpoint, client: client, log: logger.Named("remote_engine")}
}

func (e *RemoteEngine) Scan(ctx context.Context, req schemas.ScanRequest) ([]byte, error) {
	body, err := jsoniter.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scan request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build scan request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("scan service unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read scan response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.log.Warn("Scan service returned an error",
			zap.Int("status", resp.StatusCode),
			zap.String("kind", string(req.Kind)),
			zap.ByteString("body", truncate(data, 512)),
		)
		return nil, fmt.Errorf("scan service returned status %d", resp.StatusCode)
	}
	return data, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
