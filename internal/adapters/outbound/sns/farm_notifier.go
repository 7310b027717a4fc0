// Package sns implements the SnapshotSink port using AWS SNS.
//
// Every published farm update becomes a small JSON notification; consumers
// fetch the full aggregate from Redis or Postgres. Message attributes allow
// subscription filtering:
//   - eventType: "farm_updated" or "farm_removed"
//   - chainId: the chain id as a number
//   - account: the account address, lowercased
//   - hasErrors: "true" when the farm carries error positions
//
// FIFO topics (ARN suffix .fifo) are grouped by account and deduplicated by
// key and generation.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/cenkalti/backoff/v4"

	"github.com/archon-research/farmsync/internal/ports/outbound"
)

var _ outbound.SnapshotSink = (*FarmNotifier)(nil)

// Event types carried in the eventType attribute.
const (
	EventFarmUpdated = "farm_updated"
	EventFarmRemoved = "farm_removed"
)

// SNSPublisher defines the subset of SNS client methods used by FarmNotifier.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config holds configuration for the SNS farm notifier.
type Config struct {
	// TopicARN is the topic farm notifications are published to.
	TopicARN string

	// MaxRetries is the maximum number of retry attempts for transient failures.
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Logger:         slog.Default(),
	}
}

// Notification is the JSON body of a published message.
type Notification struct {
	EventType      string    `json:"eventType"`
	ChainID        int64     `json:"chainId"`
	Account        string    `json:"account"`
	Farm           string    `json:"farm"`
	Generation     uint64    `json:"generation"`
	DepositedCount int       `json:"depositedCount"`
	ErrorPositions []string  `json:"errorPositions"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// FarmNotifier publishes farm update notifications to SNS.
type FarmNotifier struct {
	client SNSPublisher
	config Config
	fifo   bool
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewFarmNotifier creates a new SNS farm notifier.
func NewFarmNotifier(client SNSPublisher, config Config) (*FarmNotifier, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.TopicARN == "" {
		return nil, errors.New("topic ARN is required")
	}

	defaults := ConfigDefaults()
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &FarmNotifier{
		client: client,
		config: config,
		fifo:   strings.HasSuffix(config.TopicARN, ".fifo"),
		logger: config.Logger.With("component", "sns-farm-notifier"),
	}, nil
}

// Name returns the sink name.
func (n *FarmNotifier) Name() string {
	return "sns"
}

// Write publishes a notification for the update.
func (n *FarmNotifier) Write(ctx context.Context, update outbound.FarmUpdate) error {
	n.mu.RLock()
	closed := n.closed
	n.mu.RUnlock()
	if closed {
		return errors.New("farm notifier is closed")
	}

	input, err := n.buildInput(update)
	if err != nil {
		return err
	}
	return n.publishWithRetry(ctx, input, update)
}

func (n *FarmNotifier) buildInput(update outbound.FarmUpdate) (*sns.PublishInput, error) {
	k := update.Key
	eventType := EventFarmUpdated
	if update.Removed {
		eventType = EventFarmRemoved
	}

	msg := Notification{
		EventType:      eventType,
		ChainID:        k.ChainID,
		Account:        k.Account.Hex(),
		Farm:           k.Farm.Hex(),
		Generation:     update.Info.Generation,
		DepositedCount: len(update.Info.DepositedPositions),
		ErrorPositions: make([]string, 0, len(update.Info.ErrorPositions)),
		UpdatedAt:      update.Info.UpdatedAt,
	}
	for _, id := range update.Info.ErrorPositions {
		msg.ErrorPositions = append(msg.ErrorPositions, id.String())
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(n.config.TopicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"eventType": {
				DataType:    aws.String("String"),
				StringValue: aws.String(eventType),
			},
			"chainId": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatInt(k.ChainID, 10)),
			},
			"account": {
				DataType:    aws.String("String"),
				StringValue: aws.String(strings.ToLower(k.Account.Hex())),
			},
			"hasErrors": {
				DataType:    aws.String("String"),
				StringValue: aws.String(strconv.FormatBool(len(msg.ErrorPositions) > 0)),
			},
		},
	}
	if n.fifo {
		input.MessageGroupId = aws.String(strings.ToLower(k.Account.Hex()))
		input.MessageDeduplicationId = aws.String(fmt.Sprintf("%s:%d:%s", k, update.Info.Generation, eventType))
	}
	return input, nil
}

func (n *FarmNotifier) publishWithRetry(ctx context.Context, input *sns.PublishInput, update outbound.FarmUpdate) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.config.InitialBackoff
	b.MaxInterval = n.config.MaxBackoff
	b.MaxElapsedTime = 0

	attempt := 0
	notify := func(err error, wait time.Duration) {
		attempt++
		n.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"maxRetries", n.config.MaxRetries,
			"backoff", wait,
			"error", err,
			"key", update.Key.String(),
		)
	}

	op := func() error {
		_, err := n.client.Publish(ctx, input)
		if err != nil && !isRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(n.config.MaxRetries)), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}

// isRetryableError determines if an error should trigger a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var notFound *types.NotFoundException
	if errors.As(err, &notFound) {
		return false
	}
	var authErr *types.AuthorizationErrorException
	if errors.As(err, &authErr) {
		return false
	}
	var invalidParam *types.InvalidParameterException
	if errors.As(err, &invalidParam) {
		return false
	}

	// Throttling, internal errors and network failures are transient.
	return true
}

// Close marks the notifier as closed and rejects further writes.
func (n *FarmNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.closed {
		n.closed = true
		n.logger.Info("SNS farm notifier closed")
	}
	return nil
}
