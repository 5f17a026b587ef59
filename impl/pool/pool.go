// Package pool manages the per-platform credential and key inventory.
// Per-item edits are serialized against in-flight claims through the
// shared guard; bulk deletes take the platform exclusively so no claim
// or redemption ever observes a half-deleted pool.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"credpool/entity"
	"credpool/lib/guard"
	"credpool/lib/sl"

	"github.com/google/uuid"
)

type Database interface {
	ListCredentials(ctx context.Context, platform string) ([]*entity.Credential, error)
	GetCredential(ctx context.Context, platform, id string) (*entity.Credential, error)
	InsertCredential(ctx context.Context, cred *entity.Credential) error
	InsertCredentials(ctx context.Context, creds []*entity.Credential) error
	UpdateCredential(ctx context.Context, cred *entity.Credential) error
	DeleteCredential(ctx context.Context, platform, id string) (bool, error)
	DeleteAllCredentials(ctx context.Context, platform string) (int64, error)

	ListKeys(ctx context.Context, platform string) ([]*entity.RedemptionKey, error)
	DeleteKey(ctx context.Context, platform, id string) (bool, error)
	DeleteAllKeys(ctx context.Context, platform string) (int64, error)
}

type Manager struct {
	db    Database
	guard *guard.Guard
	log   *slog.Logger
	now   func() time.Time
}

func New(db Database, g *guard.Guard, log *slog.Logger) *Manager {
	return &Manager{
		db:    db,
		guard: g,
		log:   log.With(sl.Module("pool")),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// ListCredentials is a read-only snapshot, no locks taken.
func (m *Manager) ListCredentials(ctx context.Context, platform string) ([]*entity.Credential, error) {
	creds, err := m.db.ListCredentials(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

func (m *Manager) AddCredential(ctx context.Context, platform string, in *entity.CredentialInput) (*entity.Credential, error) {
	status := entity.CredentialStatus(in.Status)
	if status == "" {
		status = entity.CredentialActive
	}
	cred := &entity.Credential{
		Id:        uuid.NewString(),
		Platform:  platform,
		Email:     in.Email,
		Password:  in.Password,
		Status:    status,
		CreatedAt: m.now(),
	}
	if err := m.db.InsertCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("insert credential: %w", err)
	}
	m.log.Info("credential added",
		slog.String("platform", platform),
		slog.String("credential", cred.Id),
	)
	return cred, nil
}

// EditCredential applies a partial update under the credential's
// resource lock, so an edit never interleaves with a claim in flight.
// The claim path owns the claimed_by fields; an edit cannot unset them.
func (m *Manager) EditCredential(ctx context.Context, platform, id string, patch *entity.CredentialPatch) (*entity.Credential, error) {
	release, ok := m.guard.EnterShared(platform)
	if !ok {
		return nil, entity.ConflictError(platform, id)
	}
	defer release()

	unlock := m.guard.LockResource(platform, id)
	defer unlock()

	cred, err := m.db.GetCredential(ctx, platform, id)
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if cred == nil {
		return nil, entity.NotFoundError(platform, id)
	}

	if patch.Email != "" {
		cred.Email = patch.Email
	}
	if patch.Password != "" {
		cred.Password = patch.Password
	}
	if patch.Status != "" {
		status := entity.CredentialStatus(patch.Status)
		if !entity.ValidCredentialStatus(status) {
			return nil, entity.ValidationError("unknown status " + patch.Status)
		}
		if cred.IsClaimed() && status != entity.CredentialClaimed {
			return nil, entity.ValidationError("claimed credentials cannot be reactivated by edit")
		}
		cred.Status = status
	}
	cred.UpdatedAt = m.now()

	if err = m.db.UpdateCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("update credential: %w", err)
	}
	return cred, nil
}

func (m *Manager) DeleteCredential(ctx context.Context, platform, id string) error {
	release, ok := m.guard.EnterShared(platform)
	if !ok {
		return entity.ConflictError(platform, id)
	}
	defer release()

	unlock := m.guard.LockResource(platform, id)
	defer unlock()

	deleted, err := m.db.DeleteCredential(ctx, platform, id)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if !deleted {
		return entity.NotFoundError(platform, id)
	}
	m.log.Info("credential deleted",
		slog.String("platform", platform),
		slog.String("credential", id),
	)
	return nil
}

// DeleteAllCredentials empties the platform's credential pool. The
// confirm token must repeat the platform name. Holding the platform
// exclusively drains admitted claims and blocks new ones, so callers
// after the delete see an empty pool, never a partial one.
func (m *Manager) DeleteAllCredentials(ctx context.Context, platform, confirm string) (int64, error) {
	if confirm != platform {
		return 0, entity.ValidationError("confirmation token does not match platform")
	}

	release := m.guard.EnterExclusive(platform)
	defer release()

	count, err := m.db.DeleteAllCredentials(ctx, platform)
	if err != nil {
		return 0, fmt.Errorf("delete all credentials: %w", err)
	}
	m.guard.Forget(platform)

	m.log.Info("credential pool emptied",
		slog.String("platform", platform),
		slog.Int64("deleted", count),
	)
	return count, nil
}

func (m *Manager) ListKeys(ctx context.Context, platform string) ([]*entity.RedemptionKey, error) {
	keys, err := m.db.ListKeys(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

func (m *Manager) DeleteKey(ctx context.Context, platform, id string) error {
	release, ok := m.guard.EnterShared(platform)
	if !ok {
		return entity.ConflictError(platform, id)
	}
	defer release()

	unlock := m.guard.LockResource(platform, id)
	defer unlock()

	deleted, err := m.db.DeleteKey(ctx, platform, id)
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	if !deleted {
		return entity.NotFoundError(platform, id)
	}
	m.log.Info("key deleted",
		slog.String("platform", platform),
		slog.String("key", id),
	)
	return nil
}

func (m *Manager) DeleteAllKeys(ctx context.Context, platform, confirm string) (int64, error) {
	if confirm != platform {
		return 0, entity.ValidationError("confirmation token does not match platform")
	}

	release := m.guard.EnterExclusive(platform)
	defer release()

	count, err := m.db.DeleteAllKeys(ctx, platform)
	if err != nil {
		return 0, fmt.Errorf("delete all keys: %w", err)
	}
	m.guard.Forget(platform)

	m.log.Info("key pool emptied",
		slog.String("platform", platform),
		slog.Int64("deleted", count),
	)
	return count, nil
}
