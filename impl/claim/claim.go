// Package claim owns the single-claim transition on credentials:
// active → claimed by exactly one actor, never two.
package claim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"credpool/entity"
	"credpool/lib/guard"
	"credpool/lib/sl"
)

// claimAvailable retries over racing claimers before giving up.
const pickAttempts = 5

type Database interface {
	GetCredential(ctx context.Context, platform, id string) (*entity.Credential, error)
	FirstAvailableCredential(ctx context.Context, platform string) (*entity.Credential, error)
	UpdateCredential(ctx context.Context, cred *entity.Credential) error
	ClaimedCredentials(ctx context.Context, platform string) ([]*entity.Credential, error)
}

type Recorder interface {
	Record(ctx context.Context, entry *entity.AuditEntry) error
}

type Coordinator struct {
	db    Database
	audit Recorder
	guard *guard.Guard
	log   *slog.Logger
	now   func() time.Time
}

func New(db Database, audit Recorder, g *guard.Guard, log *slog.Logger) *Coordinator {
	return &Coordinator{
		db:    db,
		audit: audit,
		guard: g,
		log:   log.With(sl.Module("claim")),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Claim transitions one credential to claimed-by-actor. Exactly one of
// any set of concurrent callers succeeds; the rest receive
// already_claimed carrying the winning claimant. A repeat claim by the
// current owner is also already_claimed: re-claiming is not treated as
// idempotent ownership confirmation.
func (c *Coordinator) Claim(ctx context.Context, platform, id string, actor entity.Actor) (*entity.Credential, error) {
	release, ok := c.guard.EnterShared(platform)
	if !ok {
		return nil, entity.ConflictError(platform, id)
	}
	defer release()

	unlock := c.guard.LockResource(platform, id)
	defer unlock()

	return c.claimLocked(ctx, platform, id, actor)
}

// ClaimAvailable claims the oldest active credential of the platform.
// The candidate can be taken by a racing caller between the snapshot
// read and the locked re-read, so it retries with fresh candidates up
// to a small bound before reporting conflict.
func (c *Coordinator) ClaimAvailable(ctx context.Context, platform string, actor entity.Actor) (*entity.Credential, error) {
	release, ok := c.guard.EnterShared(platform)
	if !ok {
		return nil, entity.ConflictError(platform, "")
	}
	defer release()

	for i := 0; i < pickAttempts; i++ {
		candidate, err := c.db.FirstAvailableCredential(ctx, platform)
		if err != nil {
			return nil, fmt.Errorf("pick credential: %w", err)
		}
		if candidate == nil {
			return nil, entity.NotAvailableError(platform, "")
		}

		cred, err := func() (*entity.Credential, error) {
			unlock := c.guard.LockResource(platform, candidate.Id)
			defer unlock()
			return c.claimLocked(ctx, platform, candidate.Id, actor)
		}()
		if err == nil {
			return cred, nil
		}
		switch entity.KindOf(err) {
		case entity.ErrAlreadyClaimed, entity.ErrNotAvailable, entity.ErrNotFound:
			continue // candidate lost to a racer or toggled off, pick again
		default:
			return nil, err
		}
	}
	return nil, entity.ConflictError(platform, "")
}

// claimLocked performs the transition. Caller holds the platform shared
// entry and the credential's resource lock.
func (c *Coordinator) claimLocked(ctx context.Context, platform, id string, actor entity.Actor) (*entity.Credential, error) {
	cred, err := c.db.GetCredential(ctx, platform, id)
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if cred == nil {
		return nil, entity.NotFoundError(platform, id)
	}

	switch cred.Status {
	case entity.CredentialClaimed:
		return nil, entity.AlreadyClaimedError(platform, id, cred.ClaimedBy)
	case entity.CredentialInactive:
		return nil, entity.NotAvailableError(platform, id)
	}

	cred.MarkClaimed(actor, c.now())
	if err = c.db.UpdateCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("store claim: %w", err)
	}

	entry := &entity.AuditEntry{
		Kind:       entity.AuditClaim,
		Platform:   platform,
		ResourceId: cred.Id,
		Actor:      actor,
		Timestamp:  cred.ClaimedAt,
	}
	if err = c.audit.Record(ctx, entry); err != nil {
		// the claim is only acknowledged together with its audit record
		cred.Release()
		if revertErr := c.db.UpdateCredential(ctx, cred); revertErr != nil {
			c.log.Error("claim revert failed",
				slog.String("credential", cred.Id),
				sl.Err(revertErr),
			)
		}
		return nil, err
	}

	c.log.Info("credential claimed",
		slog.String("platform", platform),
		slog.String("credential", cred.Id),
		slog.String("user_id", actor.Id),
	)
	return cred, nil
}

// ReleaseClaimed reverts a committed claim whose enclosing operation
// failed after the grant, returning the credential to the active pool.
// A release entry compensates the claim's audit record; a failed append
// here is logged rather than propagated, the revert itself must not be
// lost.
func (c *Coordinator) ReleaseClaimed(ctx context.Context, platform string, cred *entity.Credential) error {
	unlock := c.guard.LockResource(platform, cred.Id)
	defer unlock()

	actor := entity.Actor{Id: cred.ClaimedBy, Username: cred.ClaimedByUsername, FullName: cred.ClaimedByName}
	cred.Release()
	if err := c.db.UpdateCredential(ctx, cred); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}

	entry := &entity.AuditEntry{
		Kind:       entity.AuditRelease,
		Platform:   platform,
		ResourceId: cred.Id,
		Actor:      actor,
		Timestamp:  c.now(),
	}
	if err := c.audit.Record(ctx, entry); err != nil {
		c.log.Warn("release audit append failed",
			slog.String("credential", cred.Id),
			sl.Err(err),
		)
	}

	c.log.Info("credential released",
		slog.String("platform", platform),
		slog.String("credential", cred.Id),
	)
	return nil
}

// ListClaimed returns the platform's claimed credentials ordered by
// claimed_at ascending. Read-only snapshot, no locks taken.
func (c *Coordinator) ListClaimed(ctx context.Context, platform string) ([]*entity.Credential, error) {
	creds, err := c.db.ClaimedCredentials(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("list claimed: %w", err)
	}
	return creds, nil
}
