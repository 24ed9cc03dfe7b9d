// Package scanner brokers likeness scan jobs to the external scanning
// service. Scans are slow, so jobs run in the background through the
// Redis task queue and the upstream sits behind a circuit breaker.
package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/likenesshq/core/internal/config"
	"github.com/likenesshq/core/internal/pkg/metrics"
	"github.com/likenesshq/core/internal/pkg/taskqueue"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	TaskTypeScan = "likeness_scan"

	requestTimeout = 30 * time.Second
)

var (
	ErrDisabled    = errors.New("scanner service is not configured")
	ErrUnavailable = errors.New("scanner service is unavailable")
)

// ScanRequest is the payload submitted by a contributor.
type ScanRequest struct {
	UserID    string   `json:"user_id"`
	ImageURLs []string `json:"image_urls"`
	Sources   []string `json:"sources,omitempty"`
}

// ScanResult is the upstream's verdict for one scan job.
type ScanResult struct {
	Matches []ScanMatch `json:"matches"`
	Scanned int         `json:"scanned"`
}

type ScanMatch struct {
	Source     string  `json:"source"`
	URL        string  `json:"url"`
	Confidence float64 `json:"confidence"`
}

// Client calls the external scanner behind a circuit breaker so a dead
// upstream fails fast instead of tying up workers for 30s each.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewClient(cfg config.ScannerConfig, log *zap.Logger) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "scanner",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("scanner breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: requestTimeout},
		breaker: cb,
		log:     log,
	}
}

// Scan submits one scan synchronously to the upstream.
func (c *Client) Scan(ctx context.Context, req *ScanRequest) (*ScanResult, error) {
	if c.baseURL == "" {
		return nil, ErrDisabled
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doScan(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.ScanRequests.WithLabelValues("circuit_open").Inc()
			return nil, ErrUnavailable
		}
		metrics.ScanRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ScanRequests.WithLabelValues("ok").Inc()
	return out.(*ScanResult), nil
}

func (c *Client) doScan(ctx context.Context, scan *ScanRequest) (*ScanResult, error) {
	body, err := json.Marshal(scan)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/scans", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("scanner returned %d: %s", resp.StatusCode, string(data))
	}

	var result ScanResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("scanner response: %w", err)
	}
	return &result, nil
}

// Service runs scan jobs through the task queue.
type Service struct {
	client *Client
	tasks  *taskqueue.Service
	log    *zap.Logger
}

func NewService(client *Client, tasks *taskqueue.Service, log *zap.Logger) *Service {
	return &Service{client: client, tasks: tasks, log: log}
}

// Submit enqueues a scan job and starts it in the background. A second
// submit with identical inputs within the dedup window returns the
// existing task instead of double-scanning.
func (s *Service) Submit(ctx context.Context, req *ScanRequest) (*taskqueue.Task, error) {
	dedup := fmt.Sprintf("%s:%d", req.UserID, len(req.ImageURLs))
	task, err := s.tasks.Enqueue(ctx, TaskTypeScan, req, dedup, req.UserID)
	if err != nil {
		return nil, err
	}
	if task.Status != taskqueue.TaskPending {
		return task, nil
	}

	go s.run(task.ID, req)
	return task, nil
}

func (s *Service) run(taskID string, req *ScanRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout+5*time.Second)
	defer cancel()

	if err := s.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskRunning, nil, ""); err != nil {
		s.log.Error("scan task update failed", zap.String("task_id", taskID), zap.Error(err))
		return
	}

	result, err := s.client.Scan(ctx, req)
	if err != nil {
		s.log.Warn("scan failed", zap.String("task_id", taskID), zap.Error(err))
		_ = s.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskFailed, nil, err.Error())
		return
	}
	_ = s.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskCompleted, result, "")
}

// Get returns a scan task owned by the user, or nil.
func (s *Service) Get(ctx context.Context, userID, taskID string) (*taskqueue.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil || task == nil {
		return nil, err
	}
	if task.Type != TaskTypeScan || task.GroupKey != userID {
		return nil, nil
	}
	return task, nil
}

// List returns the user's scan tasks, newest first.
func (s *Service) List(ctx context.Context, userID string, page, size int) ([]*taskqueue.Task, int64, error) {
	taskType := TaskTypeScan
	tasks, _, err := s.tasks.List(ctx, 1, 1000, &taskType, nil)
	if err != nil {
		return nil, 0, err
	}

	var owned []*taskqueue.Task
	for _, t := range tasks {
		if t.GroupKey == userID {
			owned = append(owned, t)
		}
	}

	total := int64(len(owned))
	start := (page - 1) * size
	end := start + size
	if start >= len(owned) {
		return []*taskqueue.Task{}, total, nil
	}
	if end > len(owned) {
		end = len(owned)
	}
	return owned[start:end], total, nil
}

// Cancel cancels a pending scan owned by the user.
func (s *Service) Cancel(ctx context.Context, userID, taskID string) error {
	task, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("scan not found")
	}
	return s.tasks.Cancel(ctx, taskID)
}
