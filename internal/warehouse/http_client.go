package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hospital-e/supply-service/internal/models"
)

type HTTPNotifierConfig struct {
	BaseURL string
	// Path defaults to /warehouse/stock-update.
	Path    string
	Timeout time.Duration
	// Retries is the number of additional attempts after the first; the
	// default is zero, so one attempt per dispatch.
	Retries    int
	HTTPClient *http.Client
}

// HTTPNotifier implements the synchronous request/response path.
type HTTPNotifier struct {
	baseURL string
	path    string
	client  *http.Client
	timeout time.Duration
	retries int
}

func NewHTTPNotifier(cfg HTTPNotifierConfig) (*HTTPNotifier, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("warehouse base url required")
	}
	path := cfg.Path
	if path == "" {
		path = "/warehouse/stock-update"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &HTTPNotifier{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		path:    path,
		client:  client,
		timeout: timeout,
		retries: retries,
	}, nil
}

func (n *HTTPNotifier) Architecture() models.Architecture { return models.ArchSOA }

func (n *HTTPNotifier) Notify(ctx context.Context, b Breach) Outcome {
	req := StockUpdateRequest{
		HospitalID:            b.HospitalID,
		ProductCode:           b.ProductCode,
		CurrentStockUnits:     b.CurrentUnits,
		DailyConsumptionUnits: b.DailyConsumptionUnits,
		DaysOfSupply:          b.DaysOfSupply,
		Timestamp:             b.Timestamp.UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Outcome{
			Architecture: models.ArchSOA,
			EventType:    models.EventStockUpdateSent,
			Status:       models.EventFailure,
			Err:          fmt.Errorf("marshal stock update: %w", err),
		}
	}

	out := Outcome{
		Architecture: models.ArchSOA,
		EventType:    models.EventStockUpdateSent,
		Payload:      string(body),
	}

	attempts := n.retries + 1
	for i := 0; i < attempts; i++ {
		start := time.Now()
		resp, err := n.sendOnce(ctx, body)
		latency := latencySince(start)

		if err == nil && resp.Success {
			out.Status = models.EventSuccess
			out.LatencyMS = latency
			out.Response = resp
			return out
		}
		if err == nil {
			err = fmt.Errorf("warehouse rejected stock update: %s", resp.Message)
			out.Response = resp
		}

		if i < attempts-1 {
			out.Retries = append(out.Retries, Attempt{LatencyMS: latency, Err: err})
			continue
		}
		out.LatencyMS = latency
		out.Err = err
		if isTimeout(err) {
			out.Status = models.EventTimeout
		} else {
			out.Status = models.EventFailure
		}
	}
	return out
}

func (n *HTTPNotifier) sendOnce(ctx context.Context, body []byte) (*StockUpdateResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, n.baseURL+n.path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build stock update request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("warehouse unavailable: %s", resp.Status)
	}
	var decoded StockUpdateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode stock update response: %w", err)
	}
	return &decoded, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
