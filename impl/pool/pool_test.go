package pool

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"credpool/entity"
	"credpool/lib/guard"
)

type fakeStore struct {
	mu    sync.Mutex
	creds map[string]*entity.Credential
	keys  map[string]*entity.RedemptionKey
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		creds: make(map[string]*entity.Credential),
		keys:  make(map[string]*entity.RedemptionKey),
	}
}

func (s *fakeStore) ListCredentials(_ context.Context, platform string) ([]*entity.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Credential
	for _, c := range s.creds {
		if c.Platform == platform {
			cc := *c
			out = append(out, &cc)
		}
	}
	return out, nil
}

func (s *fakeStore) GetCredential(_ context.Context, platform, id string) (*entity.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok || c.Platform != platform {
		return nil, nil
	}
	cc := *c
	return &cc, nil
}

func (s *fakeStore) InsertCredential(_ context.Context, cred *entity.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cc := *cred
	s.creds[cred.Id] = &cc
	return nil
}

func (s *fakeStore) InsertCredentials(ctx context.Context, creds []*entity.Credential) error {
	for _, c := range creds {
		if err := s.InsertCredential(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) UpdateCredential(_ context.Context, cred *entity.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cc := *cred
	s.creds[cred.Id] = &cc
	return nil
}

func (s *fakeStore) DeleteCredential(_ context.Context, platform, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok || c.Platform != platform {
		return false, nil
	}
	delete(s.creds, id)
	return true, nil
}

func (s *fakeStore) DeleteAllCredentials(_ context.Context, platform string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.creds {
		if c.Platform == platform {
			delete(s.creds, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) ListKeys(_ context.Context, platform string) ([]*entity.RedemptionKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.RedemptionKey
	for _, k := range s.keys {
		if k.Platform == platform {
			kk := *k
			out = append(out, &kk)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteKey(_ context.Context, platform, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.Platform != platform {
		return false, nil
	}
	delete(s.keys, id)
	return true, nil
}

func (s *fakeStore) DeleteAllKeys(_ context.Context, platform string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, k := range s.keys {
		if k.Platform == platform {
			delete(s.keys, id)
			n++
		}
	}
	return n, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testManager() (*Manager, *fakeStore) {
	store := newFakeStore()
	return New(store, guard.New(), discard()), store
}

func TestAddCredential_Defaults(t *testing.T) {
	m, store := testManager()

	cred, err := m.AddCredential(context.Background(), "netflix", &entity.CredentialInput{
		Email:    "a@mail.test",
		Password: "pw",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.Status != entity.CredentialActive {
		t.Errorf("status = %s, want active", cred.Status)
	}
	if cred.Id == "" || cred.CreatedAt.IsZero() {
		t.Errorf("id/created_at not populated: %+v", cred)
	}
	if _, ok := store.creds[cred.Id]; !ok {
		t.Error("credential not persisted")
	}
}

func TestAddCredential_ExplicitStatus(t *testing.T) {
	m, _ := testManager()

	cred, err := m.AddCredential(context.Background(), "netflix", &entity.CredentialInput{
		Email:    "a@mail.test",
		Password: "pw",
		Status:   "inactive",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.Status != entity.CredentialInactive {
		t.Errorf("status = %s, want inactive", cred.Status)
	}
}

func TestEditCredential(t *testing.T) {
	seed := func(store *fakeStore) {
		store.creds["c1"] = &entity.Credential{
			Id: "c1", Platform: "netflix", Email: "old@mail.test", Password: "old",
			Status: entity.CredentialActive, CreatedAt: time.Now(),
		}
		claimed := &entity.Credential{
			Id: "c2", Platform: "netflix", Email: "c@mail.test", Password: "pw",
			Status: entity.CredentialActive, CreatedAt: time.Now(),
		}
		claimed.MarkClaimed(entity.Actor{Id: "7"}, time.Now())
		store.creds["c2"] = claimed
	}

	tests := []struct {
		name     string
		id       string
		patch    entity.CredentialPatch
		wantKind entity.ErrorKind
		check    func(t *testing.T, c *entity.Credential)
	}{
		{
			name:  "partial patch keeps other fields",
			id:    "c1",
			patch: entity.CredentialPatch{Password: "new"},
			check: func(t *testing.T, c *entity.Credential) {
				if c.Email != "old@mail.test" || c.Password != "new" {
					t.Errorf("patched credential = %q/%q", c.Email, c.Password)
				}
				if c.UpdatedAt.IsZero() {
					t.Error("updated_at not set")
				}
			},
		},
		{
			name:  "status toggle",
			id:    "c1",
			patch: entity.CredentialPatch{Status: "inactive"},
			check: func(t *testing.T, c *entity.Credential) {
				if c.Status != entity.CredentialInactive {
					t.Errorf("status = %s", c.Status)
				}
			},
		},
		{
			name:     "unknown status rejected",
			id:       "c1",
			patch:    entity.CredentialPatch{Status: "banana"},
			wantKind: entity.ErrValidation,
		},
		{
			name:     "claimed cannot be reactivated",
			id:       "c2",
			patch:    entity.CredentialPatch{Status: "active"},
			wantKind: entity.ErrValidation,
		},
		{
			name:     "missing credential",
			id:       "nope",
			patch:    entity.CredentialPatch{Password: "new"},
			wantKind: entity.ErrNotFound,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, store := testManager()
			seed(store)

			cred, err := m.EditCredential(context.Background(), "netflix", tc.id, &tc.patch)
			if tc.wantKind != "" {
				if entity.KindOf(err) != tc.wantKind {
					t.Fatalf("error kind = %q (%v), want %q", entity.KindOf(err), err, tc.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tc.check(t, cred)
		})
	}
}

func TestDeleteCredential(t *testing.T) {
	m, store := testManager()
	store.creds["c1"] = &entity.Credential{Id: "c1", Platform: "netflix", Status: entity.CredentialActive}

	if err := m.DeleteCredential(context.Background(), "netflix", "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.creds["c1"]; ok {
		t.Error("credential still present")
	}
	if err := m.DeleteCredential(context.Background(), "netflix", "c1"); entity.KindOf(err) != entity.ErrNotFound {
		t.Errorf("repeat delete error kind = %q, want not_found", entity.KindOf(err))
	}
}

func TestDeleteAllCredentials(t *testing.T) {
	m, store := testManager()
	store.creds["c1"] = &entity.Credential{Id: "c1", Platform: "netflix"}
	store.creds["c2"] = &entity.Credential{Id: "c2", Platform: "netflix"}
	store.creds["c3"] = &entity.Credential{Id: "c3", Platform: "spotify"}

	if _, err := m.DeleteAllCredentials(context.Background(), "netflix", "wrong"); entity.KindOf(err) != entity.ErrValidation {
		t.Fatalf("mismatched confirm error kind = %q, want validation", entity.KindOf(err))
	}
	if len(store.creds) != 3 {
		t.Fatal("credentials deleted despite rejected confirmation")
	}

	count, err := m.DeleteAllCredentials(context.Background(), "netflix", "netflix")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("deleted = %d, want 2", count)
	}
	if _, ok := store.creds["c3"]; !ok {
		t.Error("other platform's credential deleted")
	}
}

func TestDeleteAllKeys(t *testing.T) {
	m, store := testManager()
	store.keys["k1"] = &entity.RedemptionKey{Id: "k1", Platform: "netflix"}
	store.keys["k2"] = &entity.RedemptionKey{Id: "k2", Platform: "spotify"}

	if _, err := m.DeleteAllKeys(context.Background(), "netflix", ""); entity.KindOf(err) != entity.ErrValidation {
		t.Fatalf("empty confirm error kind = %q, want validation", entity.KindOf(err))
	}

	count, err := m.DeleteAllKeys(context.Background(), "netflix", "netflix")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("deleted = %d, want 1", count)
	}
	if _, ok := store.keys["k2"]; !ok {
		t.Error("other platform's key deleted")
	}
}

func TestImport(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantAdded   int
		wantSkipped int
	}{
		{
			name:      "plain pairs",
			content:   "a@mail.test:pw1\nb@mail.test:pw2\n",
			wantAdded: 2,
		},
		{
			name:      "status column",
			content:   "a@mail.test:pw:inactive",
			wantAdded: 1,
		},
		{
			name:      "trailing annotation stripped",
			content:   "a@mail.test:pw | Plan: Premium | Country: US",
			wantAdded: 1,
		},
		{
			name:        "malformed lines skipped",
			content:     "a@mail.test:pw\nno-separator-here\nnoat:pw\n:missing\n",
			wantAdded:   1,
			wantSkipped: 3,
		},
		{
			name:      "blank lines ignored",
			content:   "\n\na@mail.test:pw\n\n",
			wantAdded: 1,
		},
		{
			name:      "password containing colon",
			content:   "a@mail.test:pw:rest:ignored",
			wantAdded: 1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, store := testManager()

			report, err := m.Import(context.Background(), "netflix", tc.content)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if report.Added != tc.wantAdded || report.Skipped != tc.wantSkipped {
				t.Errorf("report = %d added, %d skipped, want %d/%d",
					report.Added, report.Skipped, tc.wantAdded, tc.wantSkipped)
			}
			if len(store.creds) != tc.wantAdded {
				t.Errorf("persisted = %d, want %d", len(store.creds), tc.wantAdded)
			}
		})
	}
}

func TestImport_StatusAndDefaults(t *testing.T) {
	m, store := testManager()

	_, err := m.Import(context.Background(), "netflix", "a@mail.test:pw\nb@mail.test:pw:inactive\nc@mail.test:pw:banana")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	byEmail := make(map[string]entity.CredentialStatus)
	for _, c := range store.creds {
		byEmail[c.Email] = c.Status
	}
	if byEmail["a@mail.test"] != entity.CredentialActive {
		t.Errorf("default status = %s", byEmail["a@mail.test"])
	}
	if byEmail["b@mail.test"] != entity.CredentialInactive {
		t.Errorf("explicit status = %s", byEmail["b@mail.test"])
	}
	// unknown status column falls back to active rather than failing the line
	if byEmail["c@mail.test"] != entity.CredentialActive {
		t.Errorf("unknown status fallback = %s", byEmail["c@mail.test"])
	}
}

func TestImport_AllInvalid(t *testing.T) {
	m, _ := testManager()

	report, err := m.Import(context.Background(), "netflix", "garbage\nmore garbage")
	if entity.KindOf(err) != entity.ErrValidation {
		t.Fatalf("error kind = %q (%v), want validation", entity.KindOf(err), err)
	}
	if report.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", report.Skipped)
	}
}

func TestStats(t *testing.T) {
	m, store := testManager()
	store.creds["c1"] = &entity.Credential{Id: "c1", Platform: "netflix", Status: entity.CredentialActive}
	store.creds["c2"] = &entity.Credential{Id: "c2", Platform: "netflix", Status: entity.CredentialClaimed}
	store.creds["c3"] = &entity.Credential{Id: "c3", Platform: "netflix", Status: entity.CredentialInactive}
	store.creds["c4"] = &entity.Credential{Id: "c4", Platform: "spotify", Status: entity.CredentialActive}
	store.keys["k1"] = &entity.RedemptionKey{Id: "k1", Platform: "netflix", Status: entity.KeyActive, RemainingUses: 2}
	store.keys["k2"] = &entity.RedemptionKey{Id: "k2", Platform: "netflix", Status: entity.KeyUsed}
	// stored as active but past expiry, no one has touched it since
	store.keys["k3"] = &entity.RedemptionKey{
		Id: "k3", Platform: "netflix", Status: entity.KeyActive, RemainingUses: 2,
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}

	stats, err := m.Stats(context.Background(), []string{"netflix", "spotify"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	nf := stats["netflix"]
	if nf.Total != 3 || nf.Active != 1 || nf.Claimed != 1 || nf.Inactive != 1 {
		t.Errorf("netflix credential counters = %+v", nf)
	}
	if nf.TotalKeys != 3 || nf.ActiveKeys != 1 {
		t.Errorf("netflix key counters = %+v", nf)
	}

	sp := stats["spotify"]
	if sp.Total != 1 || sp.Active != 1 || sp.TotalKeys != 0 {
		t.Errorf("spotify counters = %+v", sp)
	}
}
