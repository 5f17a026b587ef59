// Package redeem owns the multi-use key lifecycle: generation,
// per-redeemer decrement, and the giveaway winner draw when the last
// use is consumed.
package redeem

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"credpool/entity"
	"credpool/lib/guard"
	"credpool/lib/keygen"
	"credpool/lib/sl"

	"github.com/google/uuid"
)

const codeAttempts = 5

type Database interface {
	GetKeyByCode(ctx context.Context, platform, code string) (*entity.RedemptionKey, error)
	UpdateKey(ctx context.Context, key *entity.RedemptionKey) error
	InsertKey(ctx context.Context, key *entity.RedemptionKey) error
	KeyCodeExists(ctx context.Context, code string) (bool, error)
}

type Recorder interface {
	Record(ctx context.Context, entry *entity.AuditEntry) error
}

// CredentialSource hands out one claimed credential per redemption and
// takes it back when the redemption fails to commit. Implemented by the
// claim coordinator.
type CredentialSource interface {
	ClaimAvailable(ctx context.Context, platform string, actor entity.Actor) (*entity.Credential, error)
	ReleaseClaimed(ctx context.Context, platform string, cred *entity.Credential) error
}

// Notifier receives the winner announcement once a key is fully used.
type Notifier interface {
	WinnerSelected(key *entity.RedemptionKey)
}

// Result is the outcome of a redemption attempt. AlreadyRedeemed
// reports the idempotent no-op case: the key state is returned
// unchanged and nothing was consumed or granted.
type Result struct {
	Key             *entity.RedemptionKey `json:"key"`
	Credential      *entity.Credential    `json:"credential,omitempty"`
	Granted         string                `json:"granted,omitempty"`
	AlreadyRedeemed bool                  `json:"already_redeemed"`
}

type Engine struct {
	db         Database
	creds      CredentialSource
	audit      Recorder
	guard      *guard.Guard
	log        *slog.Logger
	notify     Notifier
	expiryDays int
	now        func() time.Time
	pick       func(n int) int
}

func New(db Database, creds CredentialSource, audit Recorder, g *guard.Guard, expiryDays int, log *slog.Logger) *Engine {
	return &Engine{
		db:         db,
		creds:      creds,
		audit:      audit,
		guard:      g,
		log:        log.With(sl.Module("redeem")),
		expiryDays: expiryDays,
		now:        func() time.Time { return time.Now().UTC() },
		pick:       rand.Intn,
	}
}

// SetNotifier connects the winner announcement channel.
func (e *Engine) SetNotifier(n Notifier) {
	e.notify = n
}

// Redeem consumes one use of a key for the actor. Validation order:
// unknown code, expired, exhausted, then the idempotent repeat-redeemer
// case. On success the actor is granted a claimed credential from the
// platform pool, or the key's description payload when the pool is
// empty. Two concurrent redemptions of the last remaining use never
// both succeed.
func (e *Engine) Redeem(ctx context.Context, platform, code string, actor entity.Actor) (*Result, error) {
	result, err := e.redeemLocked(ctx, platform, keygen.Normalize(code), actor)
	if err != nil {
		return nil, err
	}

	// announced outside the locks; the notifier talks to the network
	if !result.AlreadyRedeemed && result.Key.RemainingUses == 0 && e.notify != nil {
		e.notify.WinnerSelected(result.Key)
	}
	return result, nil
}

func (e *Engine) redeemLocked(ctx context.Context, platform, code string, actor entity.Actor) (*Result, error) {
	release, ok := e.guard.EnterShared(platform)
	if !ok {
		return nil, entity.ConflictError(platform, code)
	}
	defer release()

	peek, err := e.db.GetKeyByCode(ctx, platform, code)
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}
	if peek == nil {
		return nil, entity.NotFoundError(platform, code)
	}

	unlock := e.guard.LockResource(platform, peek.Id)
	defer unlock()

	// re-read under the lock; the first read ran without it
	key, err := e.db.GetKeyByCode(ctx, platform, code)
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}
	if key == nil {
		return nil, entity.NotFoundError(platform, code)
	}

	now := e.now()
	if key.ComputeStatus(now) == entity.KeyExpired {
		if key.Status != entity.KeyExpired {
			key.Status = entity.KeyExpired
			if err = e.db.UpdateKey(ctx, key); err != nil {
				e.log.Warn("persist expired status", slog.String("key", key.Id), sl.Err(err))
			}
		}
		return nil, entity.ExpiredError(platform, key.Id)
	}
	if key.RemainingUses == 0 {
		return nil, entity.ExhaustedError(platform, key.Id)
	}
	if key.HasRedeemer(actor.Id) {
		return &Result{Key: key, AlreadyRedeemed: true}, nil
	}

	result := &Result{Key: key}
	cred, err := e.creds.ClaimAvailable(ctx, platform, actor)
	switch {
	case err == nil:
		result.Credential = cred
	case entity.KindOf(err) == entity.ErrNotAvailable && key.Description != "":
		// pool is empty but the key carries its own payload
		result.Granted = key.Description
	default:
		return nil, err
	}

	key.UsersInfo = append(key.UsersInfo, entity.Redemption{
		UserId:   actor.Id,
		Username: actor.Username,
		JoinedAt: now,
	})
	key.RemainingUses--
	key.Status = key.ComputeStatus(now)
	if key.RemainingUses == 0 {
		key.RedeemedAt = now
		key.GiveawayWinner = key.UsersInfo[e.pick(len(key.UsersInfo))].UserId
	}

	if err = e.db.UpdateKey(ctx, key); err != nil {
		e.releaseGrant(ctx, platform, result.Credential)
		return nil, fmt.Errorf("store redemption: %w", err)
	}

	entry := &entity.AuditEntry{
		Kind:       entity.AuditRedemption,
		Platform:   platform,
		ResourceId: key.Id,
		Actor:      actor,
		Timestamp:  now,
	}
	if err = e.audit.Record(ctx, entry); err != nil {
		e.revert(ctx, key, now)
		e.releaseGrant(ctx, platform, result.Credential)
		return nil, err
	}

	e.log.Info("key redeemed",
		slog.String("platform", platform),
		slog.String("key", key.Id),
		slog.String("user_id", actor.Id),
		slog.Int("remaining_uses", key.RemainingUses),
	)

	if key.RemainingUses == 0 {
		e.log.Info("giveaway winner selected",
			slog.String("key", key.Id),
			slog.String("winner", key.GiveawayWinner),
		)
	}
	return result, nil
}

// releaseGrant returns a claimed credential to the pool after the
// enclosing redemption failed to commit.
func (e *Engine) releaseGrant(ctx context.Context, platform string, cred *entity.Credential) {
	if cred == nil {
		return
	}
	if err := e.creds.ReleaseClaimed(ctx, platform, cred); err != nil {
		e.log.Error("grant release failed",
			slog.String("credential", cred.Id),
			sl.Err(err),
		)
	}
}

// revert undoes the in-memory and stored key mutation after a failed
// audit append. The redemption is only acknowledged together with its
// audit record.
func (e *Engine) revert(ctx context.Context, key *entity.RedemptionKey, now time.Time) {
	key.UsersInfo = key.UsersInfo[:len(key.UsersInfo)-1]
	key.RemainingUses++
	key.GiveawayWinner = ""
	key.RedeemedAt = time.Time{}
	key.Status = key.ComputeStatus(now)
	if err := e.db.UpdateKey(ctx, key); err != nil {
		e.log.Error("redemption revert failed", slog.String("key", key.Id), sl.Err(err))
	}
}

// Generate creates a key with a collision-checked random code. uses is
// the total redemption budget; expiresInDays == 0 falls back to the
// configured default (which may itself be "never").
func (e *Engine) Generate(ctx context.Context, platform string, uses int, description string, expiresInDays int) (*entity.RedemptionKey, error) {
	if uses < 1 {
		return nil, entity.ValidationError("uses must be at least 1")
	}

	var code string
	for i := 0; ; i++ {
		c, err := keygen.Code(platform)
		if err != nil {
			return nil, err
		}
		exists, err := e.db.KeyCodeExists(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("check key code: %w", err)
		}
		if !exists {
			code = c
			break
		}
		if i+1 >= codeAttempts {
			return nil, fmt.Errorf("key code collision after %d attempts", codeAttempts)
		}
	}

	now := e.now()
	days := expiresInDays
	if days == 0 {
		days = e.expiryDays
	}
	key := &entity.RedemptionKey{
		Id:            uuid.NewString(),
		Platform:      platform,
		KeyCode:       code,
		Uses:          uses,
		RemainingUses: uses,
		Description:   description,
		Status:        entity.KeyActive,
		UsersInfo:     []entity.Redemption{},
		CreatedAt:     now,
	}
	if days > 0 {
		key.ExpiresAt = now.AddDate(0, 0, days)
	}

	if err := e.db.InsertKey(ctx, key); err != nil {
		return nil, fmt.Errorf("store key: %w", err)
	}

	e.log.Info("key generated",
		slog.String("platform", platform),
		sl.Secret("key_code", code),
		slog.Int("uses", uses),
	)
	return key, nil
}
