// Package inference runs a policy network over session snapshots with ONNX
// Runtime and turns its output into moves.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/brensch/snekgrid/game"
)

const (
	DefaultBatchSize    = 64
	DefaultBatchTimeout = 1 * time.Millisecond
)

var ErrClosed = errors.New("onnx client closed")

type OnnxClientConfig struct {
	// Width and Height are the board size the model was exported for.
	Width        int
	Height       int
	BatchSize    int
	BatchTimeout time.Duration
	// DisableCUDA skips the CUDA execution provider.
	DisableCUDA bool
	Logger      *slog.Logger
}

type inferenceRequest struct {
	input    *[]float32
	respChan chan inferenceResponse
}

type inferenceResponse struct {
	policy []float32
	value  float32
	err    error
}

// RuntimeStats summarises the batches a client has run.
type RuntimeStats struct {
	TotalBatches  int64
	TotalItems    int64
	TotalRunNanos int64
	LastBatchSize int64
	QueueLen      int

	AvgBatchSize float64
	AvgRunMs     float64
}

// OnnxClient batches Predict calls from many goroutines into single
// session runs.
type OnnxClient struct {
	session      *ort.DynamicAdvancedSession
	requestsChan chan inferenceRequest
	cfg          OnnxClientConfig
	inputSize    int

	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	batches   atomic.Int64
	items     atomic.Int64
	runNanos  atomic.Int64
	lastBatch atomic.Int64
}

var ortInitOnce sync.Once
var ortInitErr error

func NewOnnxClient(modelPath string, cfg OnnxClientConfig) (*OnnxClient, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("model board size must be positive, got %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	if err := initEnvironment(); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	// Many workers share few sessions; keep each run single threaded.
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	if !cfg.DisableCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err == nil {
			defer cudaOptions.Destroy()
			if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
				cfg.Logger.Info("cuda provider unavailable", "error", err)
			} else {
				cfg.Logger.Info("cuda provider enabled")
			}
		} else {
			cfg.Logger.Info("cuda options unavailable", "error", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{"input"}, []string{"policy", "value"}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	client := &OnnxClient{
		session:      session,
		cfg:          cfg,
		inputSize:    Channels * cfg.Width * cfg.Height,
		requestsChan: make(chan inferenceRequest, cfg.BatchSize*2),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}
	go client.batchLoop()
	return client, nil
}

func initEnvironment() error {
	ortInitOnce.Do(func() {
		if runtime.GOOS == "linux" {
			if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
				ort.SetSharedLibraryPath(p)
			} else if p := findSharedLibrary(); p != "" {
				ort.SetSharedLibraryPath(p)
			}
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return fmt.Errorf("failed to init ort: %w", ortInitErr)
	}
	return nil
}

// findSharedLibrary looks for libonnxruntime in the working directory and
// its parents, so tests run from a package directory still find it.
func findSharedLibrary() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for up := 0; up < 6; up++ {
		matches, _ := filepath.Glob(filepath.Join(dir, "libonnxruntime.so*"))
		for _, m := range matches {
			if !strings.HasSuffix(m, ".dbg") {
				return m
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// Close stops the batch loop, fails queued requests and destroys the
// session. It is safe to call more than once.
func (c *OnnxClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.loopDone
		err = c.session.Destroy()
	})
	return err
}

func (c *OnnxClient) Size() (int, int) { return c.cfg.Width, c.cfg.Height }

// Predict returns the policy logits (game.Directions order) and the value
// estimate for s.
func (c *OnnxClient) Predict(ctx context.Context, s *game.Snapshot) ([]float32, float32, error) {
	buf := getFloatBuffer(c.inputSize)
	encodeInto(*buf, s, c.cfg.Width, c.cfg.Height)

	respChan := make(chan inferenceResponse, 1)
	select {
	case c.requestsChan <- inferenceRequest{input: buf, respChan: respChan}:
	case <-c.done:
		putFloatBuffer(buf)
		return nil, 0, ErrClosed
	case <-ctx.Done():
		putFloatBuffer(buf)
		return nil, 0, ctx.Err()
	}

	select {
	case resp := <-respChan:
		return resp.policy, resp.value, resp.err
	case <-c.loopDone:
		return nil, 0, ErrClosed
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

func (c *OnnxClient) Stats() RuntimeStats {
	st := RuntimeStats{
		TotalBatches:  c.batches.Load(),
		TotalItems:    c.items.Load(),
		TotalRunNanos: c.runNanos.Load(),
		LastBatchSize: c.lastBatch.Load(),
		QueueLen:      len(c.requestsChan),
	}
	if st.TotalBatches > 0 {
		st.AvgBatchSize = float64(st.TotalItems) / float64(st.TotalBatches)
		st.AvgRunMs = (float64(st.TotalRunNanos) / 1e6) / float64(st.TotalBatches)
	}
	return st
}

func (c *OnnxClient) batchLoop() {
	defer close(c.loopDone)

	batchInput := make([]float32, 0, c.cfg.BatchSize*c.inputSize)
	requests := make([]inferenceRequest, 0, c.cfg.BatchSize)

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(requests) == 0 {
			return
		}
		c.runBatch(requests, batchInput)
		requests = requests[:0]
		batchInput = batchInput[:0]
	}

	for {
		select {
		case <-c.done:
			for {
				select {
				case req := <-c.requestsChan:
					putFloatBuffer(req.input)
					req.respChan <- inferenceResponse{err: ErrClosed}
				default:
					c.failBatch(requests, ErrClosed)
					return
				}
			}
		case req := <-c.requestsChan:
			requests = append(requests, req)
			batchInput = append(batchInput, *req.input...)
			putFloatBuffer(req.input)
			if len(requests) >= c.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (c *OnnxClient) runBatch(requests []inferenceRequest, batchInput []float32) {
	n := int64(len(requests))
	start := time.Now()

	inputTensor, err := ort.NewTensor(ort.NewShape(n, Channels, int64(c.cfg.Height), int64(c.cfg.Width)), batchInput)
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer inputTensor.Destroy()

	policyTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(n, PolicySize))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer policyTensor.Destroy()

	valueTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(n, 1))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer valueTensor.Destroy()

	if err := c.session.Run([]ort.Value{inputTensor}, []ort.Value{policyTensor, valueTensor}); err != nil {
		c.failBatch(requests, err)
		return
	}

	c.batches.Add(1)
	c.items.Add(n)
	c.runNanos.Add(time.Since(start).Nanoseconds())
	c.lastBatch.Store(n)

	policyData := policyTensor.GetData()
	valueData := valueTensor.GetData()
	for i, req := range requests {
		policy := make([]float32, PolicySize)
		copy(policy, policyData[i*PolicySize:(i+1)*PolicySize])
		req.respChan <- inferenceResponse{policy: policy, value: valueData[i]}
	}
}

func (c *OnnxClient) failBatch(requests []inferenceRequest, err error) {
	for _, req := range requests {
		req.respChan <- inferenceResponse{err: err}
	}
}
