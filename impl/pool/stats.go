package pool

import (
	"context"
	"fmt"

	"credpool/entity"
)

// PlatformStats mirrors the dashboard counters.
type PlatformStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Claimed  int `json:"claimed"`
	Inactive int `json:"inactive"`

	TotalKeys  int `json:"total_keys"`
	ActiveKeys int `json:"active_keys"`
}

// Stats counts credentials by status and keys by activity for every
// configured platform. Read-only snapshot. Key activity is derived at
// read time; a stored "active" past its expiry does not count.
func (m *Manager) Stats(ctx context.Context, platforms []string) (map[string]*PlatformStats, error) {
	now := m.now()
	out := make(map[string]*PlatformStats, len(platforms))
	for _, platform := range platforms {
		s := &PlatformStats{}

		creds, err := m.db.ListCredentials(ctx, platform)
		if err != nil {
			return nil, fmt.Errorf("stats %s: %w", platform, err)
		}
		s.Total = len(creds)
		for _, c := range creds {
			switch c.Status {
			case entity.CredentialActive:
				s.Active++
			case entity.CredentialClaimed:
				s.Claimed++
			case entity.CredentialInactive:
				s.Inactive++
			}
		}

		keys, err := m.db.ListKeys(ctx, platform)
		if err != nil {
			return nil, fmt.Errorf("stats %s: %w", platform, err)
		}
		s.TotalKeys = len(keys)
		for _, k := range keys {
			if k.ComputeStatus(now) == entity.KeyActive {
				s.ActiveKeys++
			}
		}

		out[platform] = s
	}
	return out, nil
}
