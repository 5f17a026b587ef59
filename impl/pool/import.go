package pool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"credpool/entity"

	"github.com/google/uuid"
)

// ImportReport summarizes a bulk credential import.
type ImportReport struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// Import parses combolist-style text, one credential per line:
//
//	email:password
//	email:password:status
//	email:password | any trailing annotation
//
// Annotations after the first "|" are ignored, malformed lines are
// counted as skipped, and imported credentials default to active.
func (m *Manager) Import(ctx context.Context, platform, content string) (*ImportReport, error) {
	report := &ImportReport{}
	now := m.now()

	var batch []*entity.Credential
	for _, line := range strings.Split(content, "\n") {
		if i := strings.Index(line, "|"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Split(line, ":")
		if len(parts) < 2 {
			report.Skipped++
			continue
		}
		email := strings.TrimSpace(parts[0])
		password := strings.TrimSpace(parts[1])
		status := entity.CredentialActive
		if len(parts) >= 3 {
			if s := entity.CredentialStatus(strings.TrimSpace(parts[2])); s == entity.CredentialActive || s == entity.CredentialInactive {
				status = s
			}
		}

		if email == "" || password == "" || !strings.Contains(email, "@") {
			report.Skipped++
			continue
		}

		batch = append(batch, &entity.Credential{
			Id:        uuid.NewString(),
			Platform:  platform,
			Email:     email,
			Password:  password,
			Status:    status,
			CreatedAt: now,
		})
	}

	if len(batch) == 0 && report.Skipped > 0 {
		return report, entity.ValidationError("no valid credential lines found")
	}
	if len(batch) > 0 {
		if err := m.db.InsertCredentials(ctx, batch); err != nil {
			return nil, fmt.Errorf("import credentials: %w", err)
		}
	}
	report.Added = len(batch)

	m.log.Info("credentials imported",
		slog.String("platform", platform),
		slog.Int("added", report.Added),
		slog.Int("skipped", report.Skipped),
	)
	return report, nil
}
