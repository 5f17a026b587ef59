package redeem

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"credpool/entity"
	"credpool/lib/guard"
)

type fakeStore struct {
	mu   sync.Mutex
	keys map[string]*entity.RedemptionKey

	collisions int // KeyCodeExists reports true this many times
	insertErr  error
	updateErr  error
}

func newFakeStore(keys ...*entity.RedemptionKey) *fakeStore {
	s := &fakeStore{keys: make(map[string]*entity.RedemptionKey)}
	for _, k := range keys {
		s.put(k)
	}
	return s
}

func (s *fakeStore) put(k *entity.RedemptionKey) {
	kk := *k
	kk.UsersInfo = append([]entity.Redemption(nil), k.UsersInfo...)
	s.keys[k.Id] = &kk
}

func (s *fakeStore) GetKeyByCode(_ context.Context, platform, code string) (*entity.RedemptionKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.Platform == platform && k.KeyCode == code {
			kk := *k
			kk.UsersInfo = append([]entity.Redemption(nil), k.UsersInfo...)
			return &kk, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) UpdateKey(_ context.Context, key *entity.RedemptionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.put(key)
	return nil
}

func (s *fakeStore) InsertKey(_ context.Context, key *entity.RedemptionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.put(key)
	return nil
}

func (s *fakeStore) KeyCodeExists(_ context.Context, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collisions > 0 {
		s.collisions--
		return true, nil
	}
	return false, nil
}

func (s *fakeStore) stored(id string) entity.RedemptionKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.keys[id]
}

// fakeCreds grants a fresh claimed credential per call, or a typed
// failure when err is set.
type fakeCreds struct {
	mu       sync.Mutex
	err      error
	seq      int
	calls    int
	released []string
}

func (f *fakeCreds) ClaimAvailable(_ context.Context, platform string, actor entity.Actor) (*entity.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.seq++
	return &entity.Credential{
		Id:        "cred-" + strconv.Itoa(f.seq),
		Platform:  platform,
		Status:    entity.CredentialClaimed,
		ClaimedBy: actor.Id,
	}, nil
}

func (f *fakeCreds) ReleaseClaimed(_ context.Context, _ string, cred *entity.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, cred.Id)
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*entity.AuditEntry
	err     error
}

func (a *fakeAudit) Record(_ context.Context, entry *entity.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, entry)
	return nil
}

func (a *fakeAudit) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

type fakeNotifier struct {
	mu   sync.Mutex
	keys []*entity.RedemptionKey
}

func (n *fakeNotifier) WinnerSelected(key *entity.RedemptionKey) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keys = append(n.keys, key)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine(store *fakeStore, creds CredentialSource, audit Recorder) *Engine {
	if creds == nil {
		creds = &fakeCreds{}
	}
	if audit == nil {
		audit = &fakeAudit{}
	}
	return New(store, creds, audit, guard.New(), 7, discard())
}

func testKey(uses int) *entity.RedemptionKey {
	return &entity.RedemptionKey{
		Id:            "k1",
		Platform:      "netflix",
		KeyCode:       "NETFLIX-AAAA-BBBB-CCCC",
		Uses:          uses,
		RemainingUses: uses,
		Status:        entity.KeyActive,
		UsersInfo:     []entity.Redemption{},
		CreatedAt:     time.Now().UTC(),
	}
}

func TestRedeem_GrantsCredential(t *testing.T) {
	store := newFakeStore(testKey(3))
	audit := &fakeAudit{}
	e := testEngine(store, nil, audit)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return at }

	res, err := e.Redeem(context.Background(), "netflix", "netflix-aaaa-bbbb-cccc ", entity.Actor{Id: "42", Username: "bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AlreadyRedeemed {
		t.Error("fresh redemption reported as repeat")
	}
	if res.Credential == nil || res.Credential.ClaimedBy != "42" {
		t.Errorf("credential = %+v", res.Credential)
	}

	key := store.stored("k1")
	if key.RemainingUses != 2 {
		t.Errorf("remaining uses = %d, want 2", key.RemainingUses)
	}
	if len(key.UsersInfo) != 1 || key.UsersInfo[0].UserId != "42" || key.UsersInfo[0].Username != "bob" {
		t.Errorf("users info = %+v", key.UsersInfo)
	}
	if !key.UsersInfo[0].JoinedAt.Equal(at) {
		t.Errorf("joined at = %v, want %v", key.UsersInfo[0].JoinedAt, at)
	}
	if key.GiveawayWinner != "" {
		t.Error("winner drawn before exhaustion")
	}
	if audit.count() != 1 || audit.entries[0].Kind != entity.AuditRedemption {
		t.Errorf("audit entries = %d", audit.count())
	}
}

func TestRedeem_RepeatRedeemerIsIdempotent(t *testing.T) {
	store := newFakeStore(testKey(3))
	creds := &fakeCreds{}
	e := testEngine(store, creds, nil)
	actor := entity.Actor{Id: "42"}

	if _, err := e.Redeem(context.Background(), "netflix", "NETFLIX-AAAA-BBBB-CCCC", actor); err != nil {
		t.Fatalf("first redemption failed: %v", err)
	}
	res, err := e.Redeem(context.Background(), "netflix", "NETFLIX-AAAA-BBBB-CCCC", actor)
	if err != nil {
		t.Fatalf("repeat redemption errored: %v", err)
	}
	if !res.AlreadyRedeemed {
		t.Error("repeat redemption not flagged")
	}
	if res.Credential != nil || res.Granted != "" {
		t.Error("repeat redemption granted something")
	}
	if creds.calls != 1 {
		t.Errorf("credential source calls = %d, want 1", creds.calls)
	}
	if key := store.stored("k1"); key.RemainingUses != 2 {
		t.Errorf("remaining uses = %d, want 2", key.RemainingUses)
	}
}

func TestRedeem_LastUseDrawsWinner(t *testing.T) {
	store := newFakeStore(testKey(2))
	notifier := &fakeNotifier{}
	e := testEngine(store, nil, nil)
	e.SetNotifier(notifier)
	e.pick = func(n int) int { return n - 1 } // deterministic draw, last redeemer

	if _, err := e.Redeem(context.Background(), "netflix", "NETFLIX-AAAA-BBBB-CCCC", entity.Actor{Id: "1"}); err != nil {
		t.Fatalf("first redemption failed: %v", err)
	}
	if _, err := e.Redeem(context.Background(), "netflix", "NETFLIX-AAAA-BBBB-CCCC", entity.Actor{Id: "2"}); err != nil {
		t.Fatalf("second redemption failed: %v", err)
	}

	key := store.stored("k1")
	if key.Status != entity.KeyUsed {
		t.Errorf("status = %s, want used", key.Status)
	}
	if key.GiveawayWinner != "2" {
		t.Errorf("winner = %q, want 2", key.GiveawayWinner)
	}
	if key.RedeemedAt.IsZero() {
		t.Error("redeemed_at not set on exhaustion")
	}
	if len(notifier.keys) != 1 || notifier.keys[0].GiveawayWinner != "2" {
		t.Errorf("notifications = %d", len(notifier.keys))
	}
}

// relockNotifier re-takes the platform and key locks during the winner
// announcement; it only succeeds when the redemption released them first.
type relockNotifier struct {
	g        *guard.Guard
	acquired bool
}

func (n *relockNotifier) WinnerSelected(key *entity.RedemptionKey) {
	done := make(chan struct{})
	go func() {
		release := n.g.EnterExclusive(key.Platform)
		release()
		unlock := n.g.LockResource(key.Platform, key.Id)
		unlock()
		close(done)
	}()
	select {
	case <-done:
		n.acquired = true
	case <-time.After(time.Second):
	}
}

func TestRedeem_WinnerNotifiedAfterLocksReleased(t *testing.T) {
	store := newFakeStore(testKey(1))
	g := guard.New()
	e := New(store, &fakeCreds{}, &fakeAudit{}, g, 7, discard())
	notifier := &relockNotifier{g: g}
	e.SetNotifier(notifier)

	if _, err := e.Redeem(context.Background(), "netflix", "NETFLIX-AAAA-BBBB-CCCC", entity.Actor{Id: "1"}); err != nil {
		t.Fatalf("redemption failed: %v", err)
	}
	if !notifier.acquired {
		t.Error("locks still held during winner notification")
	}
}

func TestRedeem_WinnerIsARedeemer(t *testing.T) {
	store := newFakeStore(testKey(3))
	e := testEngine(store, nil, nil)

	for _, id := range []string{"10", "20", "30"} {
		if _, err := e.Redeem(context.Background(), "netflix", "NETFLIX-AAAA-BBBB-CCCC", entity.Actor{Id: id}); err != nil {
			t.Fatalf("redemption by %s failed: %v", id, err)
		}
	}

	key := store.stored("k1")
	if !key.HasRedeemer(key.GiveawayWinner) {
		t.Errorf("winner %q is not a redeemer", key.GiveawayWinner)
	}
}

func TestRedeem_Failures(t *testing.T) {
	expired := testKey(3)
	expired.Id = "k-expired"
	expired.KeyCode = "NETFLIX-EXPI-RED0-0000"
	expired.ExpiresAt = time.Now().UTC().Add(-time.Hour)

	exhausted := testKey(1)
	exhausted.Id = "k-used"
	exhausted.KeyCode = "NETFLIX-USED-0000-0000"
	exhausted.RemainingUses = 0
	exhausted.Status = entity.KeyUsed
	exhausted.UsersInfo = []entity.Redemption{{UserId: "1"}}

	tests := []struct {
		name     string
		code     string
		wantKind entity.ErrorKind
	}{
		{"unknown code", "NETFLIX-NOPE-0000-0000", entity.ErrNotFound},
		{"expired", "NETFLIX-EXPI-RED0-0000", entity.ErrExpired},
		{"exhausted", "NETFLIX-USED-0000-0000", entity.ErrExhausted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore(expired, exhausted)
			e := testEngine(store, nil, nil)

			_, err := e.Redeem(context.Background(), "netflix", tc.code, entity.Actor{Id: "42"})
			if entity.KindOf(err) != tc.wantKind {
				t.Fatalf("error kind = %q (%v), want %q", entity.KindOf(err), err, tc.wantKind)
			}
		})
	}
}

func TestRedeem_ExpiryPersisted(t *testing.T) {
	key := testKey(3)
	key.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	store := newFakeStore(key)
	e := testEngine(store, nil, nil)

	_, err := e.Redeem(context.Background(), "netflix", key.KeyCode, entity.Actor{Id: "42"})
	if entity.KindOf(err) != entity.ErrExpired {
		t.Fatalf("error kind = %q, want expired", entity.KindOf(err))
	}
	if stored := store.stored("k1"); stored.Status != entity.KeyExpired {
		t.Errorf("stored status = %s, want expired", stored.Status)
	}
}

func TestRedeem_DescriptionFallback(t *testing.T) {
	key := testKey(2)
	key.Description = "shared login: promo@mail.test / hunter2"
	store := newFakeStore(key)
	creds := &fakeCreds{err: entity.NotAvailableError("netflix", "")}
	e := testEngine(store, creds, nil)

	res, err := e.Redeem(context.Background(), "netflix", key.KeyCode, entity.Actor{Id: "42"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Credential != nil {
		t.Error("credential granted from an empty pool")
	}
	if res.Granted != key.Description {
		t.Errorf("granted = %q, want key description", res.Granted)
	}
	if stored := store.stored("k1"); stored.RemainingUses != 1 {
		t.Errorf("remaining uses = %d, want 1", stored.RemainingUses)
	}
}

func TestRedeem_EmptyPoolNoPayload(t *testing.T) {
	store := newFakeStore(testKey(2))
	creds := &fakeCreds{err: entity.NotAvailableError("netflix", "")}
	e := testEngine(store, creds, nil)

	_, err := e.Redeem(context.Background(), "netflix", "NETFLIX-AAAA-BBBB-CCCC", entity.Actor{Id: "42"})
	if entity.KindOf(err) != entity.ErrNotAvailable {
		t.Fatalf("error kind = %q (%v), want not_available", entity.KindOf(err), err)
	}
	// the use must not be consumed on a failed grant
	if key := store.stored("k1"); key.RemainingUses != 2 || len(key.UsersInfo) != 0 {
		t.Errorf("key mutated on failed grant: %+v", key)
	}
}

func TestRedeem_AuditFailureRollsBack(t *testing.T) {
	store := newFakeStore(testKey(1))
	audit := &fakeAudit{err: errors.New("sink down")}
	creds := &fakeCreds{}
	e := testEngine(store, creds, audit)

	_, err := e.Redeem(context.Background(), "netflix", "NETFLIX-AAAA-BBBB-CCCC", entity.Actor{Id: "42"})
	if err == nil {
		t.Fatal("redemption succeeded with failing audit sink")
	}

	key := store.stored("k1")
	if key.RemainingUses != 1 || len(key.UsersInfo) != 0 {
		t.Errorf("key not reverted: %+v", key)
	}
	if key.GiveawayWinner != "" || !key.RedeemedAt.IsZero() {
		t.Errorf("exhaustion fields survived revert: %+v", key)
	}
	if key.Status != entity.KeyActive {
		t.Errorf("status = %s, want active", key.Status)
	}
	// the granted credential must go back to the pool with the key
	if len(creds.released) != 1 || creds.released[0] != "cred-1" {
		t.Errorf("released credentials = %v, want [cred-1]", creds.released)
	}
}

func TestRedeem_KeyWriteFailureReleasesGrant(t *testing.T) {
	store := newFakeStore(testKey(3))
	store.updateErr = errors.New("store down")
	creds := &fakeCreds{}
	e := testEngine(store, creds, nil)

	_, err := e.Redeem(context.Background(), "netflix", "NETFLIX-AAAA-BBBB-CCCC", entity.Actor{Id: "42"})
	if err == nil {
		t.Fatal("redemption succeeded with failing key store")
	}
	if len(creds.released) != 1 || creds.released[0] != "cred-1" {
		t.Errorf("released credentials = %v, want [cred-1]", creds.released)
	}
	if key := store.stored("k1"); key.RemainingUses != 3 || len(key.UsersInfo) != 0 {
		t.Errorf("key mutated despite failed write: %+v", key)
	}
}

func TestRedeem_DescriptionGrantNotReleasedOnFailure(t *testing.T) {
	key := testKey(2)
	key.Description = "shared login"
	store := newFakeStore(key)
	creds := &fakeCreds{err: entity.NotAvailableError("netflix", "")}
	e := testEngine(store, creds, &fakeAudit{err: errors.New("sink down")})

	if _, err := e.Redeem(context.Background(), "netflix", key.KeyCode, entity.Actor{Id: "42"}); err == nil {
		t.Fatal("redemption succeeded with failing audit sink")
	}
	if len(creds.released) != 0 {
		t.Errorf("released credentials = %v, want none for a description grant", creds.released)
	}
}

func TestRedeem_ConcurrentLastUse(t *testing.T) {
	store := newFakeStore(testKey(1))
	e := testEngine(store, nil, nil)

	const callers = 16
	var wg sync.WaitGroup
	var won, exhausted int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			actor := entity.Actor{Id: strconv.Itoa(n)}
			_, err := e.Redeem(context.Background(), "netflix", "NETFLIX-AAAA-BBBB-CCCC", actor)
			switch {
			case err == nil:
				atomic.AddInt32(&won, 1)
			case entity.KindOf(err) == entity.ErrExhausted:
				atomic.AddInt32(&exhausted, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if won != 1 {
		t.Errorf("winners = %d, want 1", won)
	}
	if exhausted != callers-1 {
		t.Errorf("exhausted losses = %d, want %d", exhausted, callers-1)
	}
	key := store.stored("k1")
	if key.RemainingUses != 0 || len(key.UsersInfo) != 1 {
		t.Errorf("final key state: %+v", key)
	}
	if key.GiveawayWinner != key.UsersInfo[0].UserId {
		t.Errorf("winner = %q, want sole redeemer %q", key.GiveawayWinner, key.UsersInfo[0].UserId)
	}
}

func TestGenerate(t *testing.T) {
	store := newFakeStore()
	e := testEngine(store, nil, nil)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return at }

	key, err := e.Generate(context.Background(), "netflix", 5, "march giveaway", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pattern := regexp.MustCompile(`^NETFLIX-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)
	if !pattern.MatchString(key.KeyCode) {
		t.Errorf("key code %q has wrong format", key.KeyCode)
	}
	if key.Uses != 5 || key.RemainingUses != 5 {
		t.Errorf("uses = %d/%d, want 5/5", key.Uses, key.RemainingUses)
	}
	if key.Status != entity.KeyActive {
		t.Errorf("status = %s, want active", key.Status)
	}
	// expiresInDays 0 falls back to the configured default of 7
	if want := at.AddDate(0, 0, 7); !key.ExpiresAt.Equal(want) {
		t.Errorf("expires at = %v, want %v", key.ExpiresAt, want)
	}
	if stored := store.stored(key.Id); stored.KeyCode != key.KeyCode {
		t.Error("key not persisted")
	}
}

func TestGenerate_Validation(t *testing.T) {
	e := testEngine(newFakeStore(), nil, nil)
	for _, uses := range []int{0, -1} {
		if _, err := e.Generate(context.Background(), "netflix", uses, "", 0); entity.KindOf(err) != entity.ErrValidation {
			t.Errorf("uses=%d: error kind = %q, want validation", uses, entity.KindOf(err))
		}
	}
}

func TestGenerate_CollisionRetries(t *testing.T) {
	store := newFakeStore()
	store.collisions = 2
	e := testEngine(store, nil, nil)

	key, err := e.Generate(context.Background(), "netflix", 1, "", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.KeyCode == "" {
		t.Error("empty key code after collision retries")
	}
}

func TestGenerate_CollisionExhausted(t *testing.T) {
	store := newFakeStore()
	store.collisions = codeAttempts
	e := testEngine(store, nil, nil)

	if _, err := e.Generate(context.Background(), "netflix", 1, "", 3); err == nil {
		t.Fatal("generation succeeded despite persistent collisions")
	}
}
