package photon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alan-christopher/bb84sim/bb84/bitmap"
)

var (
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = time.Second
	DefaultPollInterval = time.Second
)

// Job states reported by the execution service.
const (
	jobQueued  = "QUEUED"
	jobRunning = "RUNNING"
	jobDone    = "DONE"
	jobFailed  = "FAILED"
)

// RemoteOpts packages together the parameters for reaching a remote execution
// service.
type RemoteOpts struct {
	// Address is the service's base URL. Must be non-empty; a missing scheme
	// defaults to http.
	Address string

	// Token, if set, is sent as a bearer token with every request.
	Token string

	// Backend pins execution to the named backend. If empty, a backend is
	// picked per batch with PickBackend.
	Backend string

	// MaxRetries bounds how often a single HTTP request is retried on
	// transport errors and 5xx responses. Defaults to DefaultMaxRetries; set
	// negative to disable retries.
	MaxRetries int

	// RetryDelay is the minimum wait between retries. Defaults to
	// DefaultRetryDelay.
	RetryDelay time.Duration

	// PollInterval is how often a queued job's status is checked. Defaults to
	// DefaultPollInterval.
	PollInterval time.Duration
}

// A RemoteOpt customizes a Remote.
type RemoteOpt func(*Remote)

// WithLogger makes the Remote log through logger.
func WithLogger(logger *zap.Logger) RemoteOpt {
	return func(r *Remote) {
		r.logger = logger
		r.client.Logger = &retryableHTTPLogger{inner: logger}
	}
}

// WithHTTPClient makes the Remote issue requests through c.
func WithHTTPClient(c *http.Client) RemoteOpt {
	return func(r *Remote) {
		r.client.HTTPClient = c
	}
}

// A Remote is an Executor that submits each batch as a job to a remote
// execution service and waits for its measurements. Every triple of the batch
// is executed as a single-shot circuit.
type Remote struct {
	baseURL *url.URL
	token   string
	backend string
	poll    time.Duration
	client  *retryablehttp.Client
	logger  *zap.Logger
}

// NewRemote returns a Remote configured according to opts.
func NewRemote(opts RemoteOpts, ropts ...RemoteOpt) (*Remote, error) {
	if opts.Address == "" {
		return nil, errors.New("must provide Address")
	}
	addr := opts.Address
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	baseURL, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parsing address: %w", err)
	}
	retries := opts.MaxRetries
	if retries == 0 {
		retries = DefaultMaxRetries
	}
	if retries < 0 {
		retries = 0
	}
	delay := opts.RetryDelay
	if delay == 0 {
		delay = DefaultRetryDelay
	}
	poll := opts.PollInterval
	if poll == 0 {
		poll = DefaultPollInterval
	}

	r := &Remote{
		baseURL: baseURL,
		token:   opts.Token,
		backend: opts.Backend,
		poll:    poll,
		client: &retryablehttp.Client{
			RetryMax:     retries,
			RetryWaitMin: delay,
			RetryWaitMax: 2 * delay,
			Backoff:      retryablehttp.LinearJitterBackoff,
			CheckRetry:   retryablehttp.DefaultRetryPolicy,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range ropts {
		opt(r)
	}
	r.logger.Info("created remote executor",
		zap.Stringer("url", baseURL),
		zap.String("backend", opts.Backend),
		zap.Int("max retries", r.client.RetryMax),
		zap.Duration("poll interval", poll),
	)
	return r, nil
}

// Backends lists the execution targets the service offers.
func (r *Remote) Backends(ctx context.Context) ([]Backend, error) {
	res, err := r.req(ctx, http.MethodGet, nil, "v1", "backends")
	if err != nil {
		return nil, fmt.Errorf("%w: listing backends: %w", ErrExecutor, err)
	}
	list, ok := res.GetFields()["backends"]
	if !ok || list.GetListValue() == nil {
		return nil, fmt.Errorf("%w: malformed backend listing", ErrExecutor)
	}
	var backends []Backend
	for _, v := range list.GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		backends = append(backends, Backend{
			Name:        f["name"].GetStringValue(),
			Simulator:   f["simulator"].GetBoolValue(),
			Operational: f["operational"].GetBoolValue(),
			PendingJobs: int(f["pendingJobs"].GetNumberValue()),
		})
	}
	return backends, nil
}

// Execute implements the Executor interface.
func (r *Remote) Execute(ctx context.Context, b Batch) (bitmap.Dense, error) {
	if err := b.Validate(); err != nil {
		return bitmap.Empty(), fmt.Errorf("%w: %w", ErrExecutor, err)
	}
	backends, err := r.Backends(ctx)
	if err != nil {
		return bitmap.Empty(), err
	}
	backend, err := PickBackend(backends, r.backend)
	if err != nil {
		return bitmap.Empty(), err
	}
	job, err := structpb.NewStruct(map[string]any{
		"backend":       backend.Name,
		"shots":         1,
		"tag":           uuid.NewString(),
		"bits":          b.Bits.String(),
		"senderBases":   b.SenderBases.String(),
		"receiverBases": b.ReceiverBases.String(),
	})
	if err != nil {
		return bitmap.Empty(), fmt.Errorf("%w: building job: %w", ErrExecutor, err)
	}
	status, err := r.req(ctx, http.MethodPost, job, "v1", "jobs")
	if err != nil {
		return bitmap.Empty(), fmt.Errorf("%w: submitting job: %w", ErrExecutor, err)
	}
	id := status.GetFields()["id"].GetStringValue()
	r.logger.Debug("submitted job",
		zap.String("id", id),
		zap.String("backend", backend.Name),
		zap.Int("pending", backend.PendingJobs),
		zap.Int("triples", b.Len()),
	)
	measured, err := r.await(ctx, id, status)
	if err != nil {
		return bitmap.Empty(), fmt.Errorf("%w: job %q: %w", ErrExecutor, id, err)
	}
	bits, err := bitmap.FromString(measured)
	if err != nil {
		return bitmap.Empty(), fmt.Errorf("%w: job %q: %w", ErrExecutor, id, err)
	}
	if bits.Size() != b.Len() {
		return bitmap.Empty(), fmt.Errorf("%w: job %q returned %d measurements for %d triples",
			ErrExecutor, id, bits.Size(), b.Len())
	}
	return bits, nil
}

// await polls job id, whose last known status is status, until it finishes.
func (r *Remote) await(ctx context.Context, id string, status *structpb.Struct) (string, error) {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		f := status.GetFields()
		switch s := f["status"].GetStringValue(); s {
		case jobDone:
			return f["measured"].GetStringValue(), nil
		case jobFailed:
			return "", fmt.Errorf("failed: %s", f["error"].GetStringValue())
		case jobQueued, jobRunning:
		default:
			return "", fmt.Errorf("unrecognized status %q", s)
		}
		if id == "" {
			return "", errors.New("pending job has no id")
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		var err error
		status, err = r.req(ctx, http.MethodGet, nil, "v1", "jobs", id)
		if err != nil {
			return "", fmt.Errorf("polling: %w", err)
		}
	}
}

func (r *Remote) req(ctx context.Context, method string, reqBody *structpb.Struct, path ...string) (*structpb.Struct, error) {
	var body any
	if reqBody != nil {
		data, err := protojson.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		body = data
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, r.baseURL.JoinPath(path...).String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	res, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doing request: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("response status %s, body: %s", res.Status, string(data))
	}
	resBody := &structpb.Struct{}
	unmarshaler := protojson.UnmarshalOptions{DiscardUnknown: true}
	if err := unmarshaler.Unmarshal(data, resBody); err != nil {
		return nil, fmt.Errorf("decoding response body: %w", err)
	}
	return resBody, nil
}

// A retryableHTTPLogger adapts a zap.Logger to retryablehttp.LeveledLogger.
type retryableHTTPLogger struct {
	inner *zap.Logger
}

func (l *retryableHTTPLogger) Error(msg string, keysAndValues ...any) {
	l.inner.Sugar().Errorw(msg, keysAndValues...)
}

func (l *retryableHTTPLogger) Info(msg string, keysAndValues ...any) {
	l.inner.Sugar().Infow(msg, keysAndValues...)
}

func (l *retryableHTTPLogger) Debug(msg string, keysAndValues ...any) {
	l.inner.Sugar().Debugw(msg, keysAndValues...)
}

func (l *retryableHTTPLogger) Warn(msg string, keysAndValues ...any) {
	l.inner.Sugar().Warnw(msg, keysAndValues...)
}
