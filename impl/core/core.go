package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"credpool/entity"
	"credpool/impl/audit"
	"credpool/impl/claim"
	"credpool/impl/pool"
	"credpool/impl/redeem"
	"credpool/lib/sl"
)

type AuthService interface {
	UserByToken(token string) (*entity.User, error)
}

// Core wires the allocation engines behind the single surface the HTTP
// handlers consume. It also owns the static platform catalog: platform
// names are validated here at the boundary and treated as opaque keys
// everywhere below.
type Core struct {
	pool      *pool.Manager
	claims    *claim.Coordinator
	keys      *redeem.Engine
	history   *audit.Log
	auth      AuthService
	platforms []string
	known     map[string]bool
	log       *slog.Logger
}

func New(p *pool.Manager, c *claim.Coordinator, k *redeem.Engine, h *audit.Log, platforms []string, log *slog.Logger) *Core {
	if p == nil || c == nil || k == nil || h == nil {
		panic("core: missing service")
	}
	known := make(map[string]bool, len(platforms))
	for _, name := range platforms {
		known[name] = true
	}
	return &Core{
		pool:      p,
		claims:    c,
		keys:      k,
		history:   h,
		platforms: platforms,
		known:     known,
		log:       log.With(sl.Module("core")),
	}
}

func (c *Core) SetAuthService(auth AuthService) {
	c.auth = auth
}

func (c *Core) AuthenticateByToken(token string) (*entity.User, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("auth service not connected")
	}
	return c.auth.UserByToken(token)
}

func (c *Core) KnownPlatform(name string) bool {
	return c.known[name]
}

func (c *Core) Platforms() []string {
	return c.platforms
}

func (c *Core) Credentials(ctx context.Context, platform string) ([]*entity.Credential, error) {
	return c.pool.ListCredentials(ctx, platform)
}

func (c *Core) AddCredential(ctx context.Context, platform string, in *entity.CredentialInput) (*entity.Credential, error) {
	return c.pool.AddCredential(ctx, platform, in)
}

func (c *Core) EditCredential(ctx context.Context, platform, id string, patch *entity.CredentialPatch) (*entity.Credential, error) {
	return c.pool.EditCredential(ctx, platform, id, patch)
}

func (c *Core) DeleteCredential(ctx context.Context, platform, id string) error {
	return c.pool.DeleteCredential(ctx, platform, id)
}

func (c *Core) DeleteAllCredentials(ctx context.Context, platform, confirm string) (int64, error) {
	return c.pool.DeleteAllCredentials(ctx, platform, confirm)
}

func (c *Core) ImportCredentials(ctx context.Context, platform, content string) (*pool.ImportReport, error) {
	return c.pool.Import(ctx, platform, content)
}

func (c *Core) Claim(ctx context.Context, platform, id string, actor entity.Actor) (*entity.Credential, error) {
	return c.claims.Claim(ctx, platform, id, actor)
}

func (c *Core) ClaimedCredentials(ctx context.Context, platform string) ([]*entity.Credential, error) {
	return c.claims.ListClaimed(ctx, platform)
}

func (c *Core) Keys(ctx context.Context, platform string) ([]*entity.RedemptionKey, error) {
	return c.pool.ListKeys(ctx, platform)
}

func (c *Core) GenerateKey(ctx context.Context, platform string, req *entity.GenerateKeyRequest) (*entity.RedemptionKey, error) {
	return c.keys.Generate(ctx, platform, req.Uses, req.Description, req.ExpiresInDays)
}

func (c *Core) Redeem(ctx context.Context, platform, code string, actor entity.Actor) (*redeem.Result, error) {
	return c.keys.Redeem(ctx, platform, code, actor)
}

func (c *Core) DeleteKey(ctx context.Context, platform, id string) error {
	return c.pool.DeleteKey(ctx, platform, id)
}

func (c *Core) DeleteAllKeys(ctx context.Context, platform, confirm string) (int64, error) {
	return c.pool.DeleteAllKeys(ctx, platform, confirm)
}

func (c *Core) History(ctx context.Context, platform string, kind entity.AuditKind, from, to time.Time) ([]*entity.AuditEntry, error) {
	return c.history.Query(ctx, platform, kind, from, to)
}

func (c *Core) Stats(ctx context.Context) (map[string]*pool.PlatformStats, error) {
	return c.pool.Stats(ctx, c.platforms)
}
