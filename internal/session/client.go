// Package session is the gateway's handle on running agent sessions. Each
// session is one AgentGoalWorkflow execution whose workflow id is the
// session id; the client starts sessions, delivers signals and runs
// queries against them.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tripagent/internal/goals"
	"github.com/fyrsmithlabs/tripagent/internal/logging"
	"github.com/fyrsmithlabs/tripagent/internal/workflows"
)

var (
	// ErrSessionNotFound is returned when no workflow exists for the
	// session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionUnavailable is returned when the session exists but cannot
	// answer: no worker is polling, the query timed out or the Temporal
	// frontend is unreachable.
	ErrSessionUnavailable = errors.New("session unavailable")

	// ErrClientClosed is returned by every method after Close.
	ErrClientClosed = errors.New("session client closed")
)

const defaultQueryTimeout = 5 * time.Second

// Options configures a Client.
type Options struct {
	HostPort     string
	Namespace    string
	TaskQueue    string
	QueryTimeout time.Duration
	// MaxTurns and KeepMessages are passed to every new session. Zero
	// leaves the workflow defaults in place.
	MaxTurns     int
	KeepMessages int
	Logger       *logging.Logger
}

type dialFunc func(client.Options) (client.Client, error)

// Client wraps a lazily dialled Temporal client. It is safe for concurrent
// use; the underlying connection is created on first use and shared until
// Close.
type Client struct {
	opts   Options
	logger *logging.Logger
	dial   dialFunc

	mu     sync.Mutex
	tc     client.Client
	closed bool
}

// New returns a Client that dials Temporal on first use.
func New(opts Options) *Client {
	return newClient(opts, client.Dial)
}

// NewWithClient returns a Client around an existing Temporal client. The
// Client takes ownership and closes tc on Close.
func NewWithClient(opts Options, tc client.Client) *Client {
	c := newClient(opts, func(client.Options) (client.Client, error) { return tc, nil })
	c.tc = tc
	return c
}

func newClient(opts Options, dial dialFunc) *Client {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = defaultQueryTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{opts: opts, logger: logger.Named("session"), dial: dial}
}

func (c *Client) conn() (client.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if c.tc != nil {
		return c.tc, nil
	}

	tc, err := c.dial(client.Options{
		HostPort:  c.opts.HostPort,
		Namespace: c.opts.Namespace,
		Logger:    logging.NewTemporalLogger(c.logger),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dialing temporal at %s: %v", ErrSessionUnavailable, c.opts.HostPort, err)
	}
	c.tc = tc
	return tc, nil
}

// Close releases the Temporal connection. Subsequent calls on c return
// ErrClientClosed.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.tc != nil {
		c.tc.Close()
		c.tc = nil
	}
}

// Started describes a session start.
type Started struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`
}

// Start begins a session for goal, seeding its queue with the goal's starter
// prompt. Starting a session that is already running attaches to it.
func (c *Client) Start(ctx context.Context, sessionID string, goal goals.Goal) (Started, error) {
	tc, err := c.conn()
	if err != nil {
		return Started{}, err
	}

	input := workflows.AgentGoalInput{
		Goal: goal,
		Params: workflows.AgentGoalParams{
			PromptQueue:  []string{workflows.StarterPrompt(goal.StarterPrompt)},
			MaxTurns:     c.opts.MaxTurns,
			KeepMessages: c.opts.KeepMessages,
		},
	}
	opts := client.StartWorkflowOptions{
		ID:                       sessionID,
		TaskQueue:                c.opts.TaskQueue,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}

	run, err := tc.ExecuteWorkflow(ctx, opts, workflows.AgentGoalWorkflow, input)
	if err != nil {
		return Started{}, fmt.Errorf("starting session %s: %w", sessionID, mapError(err))
	}

	c.logger.Info(ctx, "session started",
		zap.String("session.id", run.GetID()),
		zap.String("run.id", run.GetRunID()),
		zap.String("goal.id", goal.ID))
	return Started{SessionID: run.GetID(), RunID: run.GetRunID()}, nil
}

// SendPrompt enqueues a user prompt.
func (c *Client) SendPrompt(ctx context.Context, sessionID, prompt string) error {
	return c.signal(ctx, sessionID, workflows.SignalUserPrompt, prompt)
}

// Confirm approves the pending tool proposal.
func (c *Client) Confirm(ctx context.Context, sessionID string) error {
	return c.signal(ctx, sessionID, workflows.SignalConfirm, nil)
}

// EndChat ends the session.
func (c *Client) EndChat(ctx context.Context, sessionID string) error {
	return c.signal(ctx, sessionID, workflows.SignalEndChat, nil)
}

func (c *Client) signal(ctx context.Context, sessionID, name string, arg any) error {
	tc, err := c.conn()
	if err != nil {
		return err
	}
	if err := tc.SignalWorkflow(ctx, sessionID, "", name, arg); err != nil {
		return fmt.Errorf("signalling %s to session %s: %w", name, sessionID, mapError(err))
	}
	c.logger.Debug(ctx, "signal sent", zap.String("session.id", sessionID), zap.String("signal", name))
	return nil
}

// History returns the session's conversation history. A session that
// failed, was terminated, was cancelled or timed out has an empty history.
func (c *Client) History(ctx context.Context, sessionID string) (workflows.ConversationHistory, error) {
	tc, err := c.conn()
	if err != nil {
		return workflows.ConversationHistory{}, err
	}

	desc, err := tc.DescribeWorkflowExecution(ctx, sessionID, "")
	if err != nil {
		return workflows.ConversationHistory{}, fmt.Errorf("describing session %s: %w", sessionID, mapError(err))
	}
	if status := desc.GetWorkflowExecutionInfo().GetStatus(); deadStatus(status) {
		c.logger.Debug(ctx, "session is not live",
			zap.String("session.id", sessionID),
			zap.String("status", status.String()))
		return workflows.ConversationHistory{Messages: []workflows.Message{}}, nil
	}

	h, err := query[workflows.ConversationHistory](ctx, c, tc, sessionID, workflows.QueryConversationHistory)
	if err != nil {
		return workflows.ConversationHistory{}, err
	}
	if h.Messages == nil {
		h.Messages = []workflows.Message{}
	}
	return h, nil
}

// LatestToolData returns the current tool proposal, or nil when the agent
// has not proposed anything yet.
func (c *Client) LatestToolData(ctx context.Context, sessionID string) (*workflows.ToolProposal, error) {
	tc, err := c.conn()
	if err != nil {
		return nil, err
	}
	return query[*workflows.ToolProposal](ctx, c, tc, sessionID, workflows.QueryLatestToolData)
}

// Goal returns the goal the session is pursuing.
func (c *Client) Goal(ctx context.Context, sessionID string) (goals.Goal, error) {
	tc, err := c.conn()
	if err != nil {
		return goals.Goal{}, err
	}
	return query[goals.Goal](ctx, c, tc, sessionID, workflows.QueryAgentGoal)
}

// Status returns the session's orchestration flags.
func (c *Client) Status(ctx context.Context, sessionID string) (workflows.SessionStatus, error) {
	tc, err := c.conn()
	if err != nil {
		return workflows.SessionStatus{}, err
	}
	return query[workflows.SessionStatus](ctx, c, tc, sessionID, workflows.QuerySessionStatus)
}

func query[T any](ctx context.Context, c *Client, tc client.Client, sessionID, name string) (T, error) {
	var out T

	qctx, cancel := context.WithTimeout(ctx, c.opts.QueryTimeout)
	defer cancel()

	val, err := tc.QueryWorkflow(qctx, sessionID, "", name)
	if err != nil {
		return out, fmt.Errorf("querying %s on session %s: %w", name, sessionID, mapError(err))
	}
	if val == nil || !val.HasValue() {
		return out, nil
	}
	if err := val.Get(&out); err != nil {
		return out, fmt.Errorf("decoding %s result: %w", name, err)
	}
	return out, nil
}

func deadStatus(s enumspb.WorkflowExecutionStatus) bool {
	switch s {
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED,
		enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return true
	}
	return false
}

// mapError translates Temporal service errors into the session sentinels.
func mapError(err error) error {
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}

	var unavailable *serviceerror.Unavailable
	var deadline *serviceerror.DeadlineExceeded
	if errors.As(err, &unavailable) ||
		errors.As(err, &deadline) ||
		errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(strings.ToLower(err.Error()), "no poller") {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	return err
}
