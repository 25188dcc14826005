// Package registry is the authoritative durable record of intake: one Redis
// hash per bounty fingerprint with a retention TTL, an append-only intake
// stream for downstream consumers, and a persistent fingerprint set used to
// rebuild the in-memory membership filter after a restart.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bountyhunter/internal/models"
)

// ErrNotFound is returned when no record exists for a fingerprint.
var ErrNotFound = errors.New("bounty not found")

const (
	intakeStreamKey = "bounties:incoming"
	seenSetKey      = "bounties:seen"
	payoutSetKey    = "bounties:payouts"
	bountyKeyPrefix = "bounty:"
)

// Registry wraps a Redis client with the bounty persistence schema.
type Registry struct {
	client    *redis.Client
	retention time.Duration
}

// Options configures the registry connection and retention window.
type Options struct {
	Addr      string
	Password  string
	DB        int
	Retention time.Duration
}

// New builds a registry client. Retention defaults to 30 days.
func New(opts Options) *Registry {
	retention := opts.Retention
	if retention == 0 {
		retention = 30 * 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Registry{client: client, retention: retention}
}

// NewWithClient builds a registry around an existing client. Used by tests.
func NewWithClient(client *redis.Client, retention time.Duration) *Registry {
	if retention == 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Registry{client: client, retention: retention}
}

func (r *Registry) key(fingerprint string) string {
	return bountyKeyPrefix + fingerprint
}

// Ping verifies the connection.
func (r *Registry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *Registry) Close() error {
	return r.client.Close()
}

// Exists reports whether a record is present for the fingerprint.
func (r *Registry) Exists(ctx context.Context, fingerprint string) (bool, error) {
	n, err := r.client.HExists(ctx, r.key(fingerprint), "fingerprint").Result()
	if err != nil {
		return false, fmt.Errorf("registry exists %s: %w", fingerprint, err)
	}
	return n, nil
}

// Put persists a bounty under its fingerprint with the given status. The
// fingerprint field is claimed with HSETNX so that of two concurrent writers
// exactly one observes created=true; the loser must treat the item as a
// duplicate.
func (r *Registry) Put(ctx context.Context, fingerprint string, b models.Bounty, status models.Status) (bool, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return false, fmt.Errorf("marshal bounty %s: %w", fingerprint, err)
	}
	key := r.key(fingerprint)
	created, err := r.client.HSetNX(ctx, key, "fingerprint", fingerprint).Result()
	if err != nil {
		return false, fmt.Errorf("registry put %s: %w", fingerprint, err)
	}
	if !created {
		return false, nil
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, "data", data, "status", string(status))
	pipe.Expire(ctx, key, r.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("registry put %s: %w", fingerprint, err)
	}
	return true, nil
}

// Get retrieves the stored bounty.
func (r *Registry) Get(ctx context.Context, fingerprint string) (models.Bounty, error) {
	data, err := r.client.HGet(ctx, r.key(fingerprint), "data").Result()
	if err == redis.Nil {
		return models.Bounty{}, ErrNotFound
	}
	if err != nil {
		return models.Bounty{}, fmt.Errorf("registry get %s: %w", fingerprint, err)
	}
	var b models.Bounty
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return models.Bounty{}, fmt.Errorf("unmarshal bounty %s: %w", fingerprint, err)
	}
	return b, nil
}

// GetStatus returns the persisted status for a fingerprint.
func (r *Registry) GetStatus(ctx context.Context, fingerprint string) (models.Status, error) {
	status, err := r.client.HGet(ctx, r.key(fingerprint), "status").Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("registry status %s: %w", fingerprint, err)
	}
	return models.Status(status), nil
}

// SetStatus writes through the persisted status.
func (r *Registry) SetStatus(ctx context.Context, fingerprint string, status models.Status) error {
	if err := r.client.HSet(ctx, r.key(fingerprint), "status", string(status)).Err(); err != nil {
		return fmt.Errorf("registry set status %s: %w", fingerprint, err)
	}
	return nil
}

// AppendIntake appends an admission summary to the intake stream.
func (r *Registry) AppendIntake(ctx context.Context, ev models.IntakeEvent) error {
	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: intakeStreamKey,
		Values: map[string]any{
			"fingerprint": ev.Fingerprint,
			"source":      ev.Source,
			"title":       ev.Title,
			"reward_usd":  fmt.Sprintf("%g", ev.RewardUSD),
			"category":    ev.Category,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("append intake %s: %w", ev.Fingerprint, err)
	}
	return nil
}

// RegisterFingerprint adds the fingerprint to the durable seen-set used for
// membership-filter replay at startup.
func (r *Registry) RegisterFingerprint(ctx context.Context, fingerprint string) error {
	if err := r.client.SAdd(ctx, seenSetKey, fingerprint).Err(); err != nil {
		return fmt.Errorf("register fingerprint %s: %w", fingerprint, err)
	}
	return nil
}

// SeenFingerprints returns every fingerprint ever registered.
func (r *Registry) SeenFingerprints(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, seenSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("seen fingerprints: %w", err)
	}
	return members, nil
}

// MarkPayout records that payment for the fingerprint has been confirmed.
// Operators (or a reconciliation job) call this when funds land.
func (r *Registry) MarkPayout(ctx context.Context, fingerprint string) error {
	if err := r.client.SAdd(ctx, payoutSetKey, fingerprint).Err(); err != nil {
		return fmt.Errorf("mark payout %s: %w", fingerprint, err)
	}
	return nil
}

// PayoutConfirmed reports whether payment has been confirmed for the
// fingerprint.
func (r *Registry) PayoutConfirmed(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, payoutSetKey, fingerprint).Result()
	if err != nil {
		return false, fmt.Errorf("payout confirmed %s: %w", fingerprint, err)
	}
	return ok, nil
}

// QueueSize returns the length of the intake stream.
func (r *Registry) QueueSize(ctx context.Context) (int64, error) {
	n, err := r.client.XLen(ctx, intakeStreamKey).Result()
	if err != nil {
		return 0, fmt.Errorf("intake stream length: %w", err)
	}
	return n, nil
}
