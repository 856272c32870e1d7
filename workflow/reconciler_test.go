package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/forecast_backend/models"
	"bitbucket.org/mmdatafocus/forecast_backend/utils"
	"github.com/shopspring/decimal"
)

// fakeStore keeps everything in slices so pipeline behavior can be checked
// without a database.
type fakeStore struct {
	entries       []*models.Entry
	audits        []*models.AuditLog
	projects      []*models.Project
	nextEntryId   int
	nextProjectId int
	now           time.Time
}

func newFakeStore(now time.Time) *fakeStore {
	return &fakeStore{now: now}
}

func (f *fakeStore) FindEntry(_ context.Context, projectId, year, month int, typ models.EntryType) (*models.Entry, error) {
	for _, e := range f.entries {
		if e.ProjectId == projectId && e.Year == year && e.Month == month && e.Type == typ {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateEntry(_ context.Context, entry *models.Entry) error {
	for _, e := range f.entries {
		if e.ProjectId == entry.ProjectId && e.Year == entry.Year && e.Month == entry.Month && e.Type == entry.Type {
			return models.ErrDuplicateEntry
		}
	}
	f.nextEntryId++
	entry.ID = f.nextEntryId
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = f.now
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeStore) UpdateEntry(_ context.Context, entry *models.Entry) error {
	for i, e := range f.entries {
		if e.ID == entry.ID {
			f.entries[i] = entry
			return nil
		}
	}
	return errors.New("entry not found")
}

func (f *fakeStore) LatestEntryCreatedAt(_ context.Context, projectId, managerId int, typ models.EntryType) (*time.Time, error) {
	var latest *time.Time
	for _, e := range f.entries {
		if e.ProjectId == projectId && e.ManagerId == managerId && e.Type == typ {
			t := e.CreatedAt
			if latest == nil || t.After(*latest) {
				latest = &t
			}
		}
	}
	return latest, nil
}

func (f *fakeStore) AppendAuditLog(_ context.Context, log *models.AuditLog) error {
	log.ID = len(f.audits) + 1
	log.ChangedAt = f.now
	f.audits = append(f.audits, log)
	return nil
}

func (f *fakeStore) FindProjectByAccountAndName(_ context.Context, account, name string) (*models.Project, error) {
	for _, p := range f.projects {
		if p.Account == account && p.Name == name {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateProject(_ context.Context, project *models.Project) error {
	f.nextProjectId++
	project.ID = f.nextProjectId
	f.projects = append(f.projects, project)
	return nil
}

func (f *fakeStore) addProject(account, name string) *models.Project {
	p := &models.Project{Account: account, Name: name}
	_ = f.CreateProject(context.Background(), p)
	return p
}

func openPolicy() EditPolicy {
	return EditPolicy{
		FreezeDays:           2,
		ThrottleWindow:       7 * 24 * time.Hour,
		AllowCommentOnFrozen: true,
		EnforceFreeze:        false,
		EnforceThrottle:      false,
	}
}

func testReconciler(store *fakeStore, policy EditPolicy, now time.Time) *Reconciler {
	r := NewReconciler(store, policy)
	r.Now = func() time.Time { return now }
	return r
}

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func forecastEntry(projectId, month int, value string) *CanonicalEntry {
	return &CanonicalEntry{
		ProjectId:    projectId,
		Year:         2025,
		Month:        month,
		Type:         models.EntryTypeForecast,
		ValueMillion: dec(value),
	}
}

func TestApplyCreateThenUpdateAuditOrdering(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(now)
	p := store.addProject("acme", "alpha")
	r := testReconciler(store, openPolicy(), now)
	actor := Actor{UserId: 7, Role: models.UserRoleManager}

	for _, value := range []string{"1.0", "2.0", "3.0"} {
		if _, err := r.Apply(context.Background(), actor, SourceInteractive, forecastEntry(p.ID, 4, value)); err != nil {
			t.Fatalf("apply %s: %v", value, err)
		}
	}

	if len(store.entries) != 1 {
		t.Fatalf("want 1 entry after 3 upserts, got %d", len(store.entries))
	}
	if got := store.entries[0].ValueMillion; !got.Equal(dec("3.0")) {
		t.Errorf("final value = %s, want 3.0", got)
	}
	if len(store.audits) != 2 {
		t.Fatalf("want 2 audit rows, got %d", len(store.audits))
	}
	wantAudits := [][2]string{{"1", "2"}, {"2", "3"}}
	for i, w := range wantAudits {
		a := store.audits[i]
		if !a.PrevValue.Equal(dec(w[0])) || !a.NewValue.Equal(dec(w[1])) {
			t.Errorf("audit %d = (%s -> %s), want (%s -> %s)", i, a.PrevValue, a.NewValue, w[0], w[1])
		}
		if a.ChangedBy != actor.UserId {
			t.Errorf("audit %d changedBy = %d, want %d", i, a.ChangedBy, actor.UserId)
		}
	}
}

// racingStore simulates a concurrent writer inserting the same key between
// the reconciler's lookup and its create, which is exactly what the unique
// index turns into a duplicate-key error.
type racingStore struct {
	*fakeStore
	raced *models.Entry
}

func (s *racingStore) CreateEntry(ctx context.Context, entry *models.Entry) error {
	if s.raced != nil {
		slipped := s.raced
		s.raced = nil
		if err := s.fakeStore.CreateEntry(ctx, slipped); err != nil {
			return err
		}
	}
	return s.fakeStore.CreateEntry(ctx, entry)
}

func TestApplyRecoversFromCreateRace(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	fake := newFakeStore(now)
	p := fake.addProject("acme", "alpha")
	actor := Actor{UserId: 7, Role: models.UserRoleManager}

	store := &racingStore{
		fakeStore: fake,
		raced: &models.Entry{
			ProjectId:    p.ID,
			Year:         2025,
			Month:        4,
			Type:         models.EntryTypeForecast,
			ValueMillion: dec("2.0"),
			ManagerId:    actor.UserId,
		},
	}
	r := NewReconciler(store, openPolicy())
	r.Now = func() time.Time { return now }

	got, err := r.Apply(context.Background(), actor, SourceInteractive, forecastEntry(p.ID, 4, "5.0"))
	if err != nil {
		t.Fatalf("apply after losing create race: %v", err)
	}

	if len(fake.entries) != 1 {
		t.Fatalf("want 1 entry after race recovery, got %d", len(fake.entries))
	}
	if !got.ValueMillion.Equal(dec("5.0")) {
		t.Errorf("final value = %s, want 5.0", got.ValueMillion)
	}
	if len(fake.audits) != 1 {
		t.Fatalf("want 1 audit row, got %d", len(fake.audits))
	}
	if a := fake.audits[0]; !a.PrevValue.Equal(dec("2.0")) || !a.NewValue.Equal(dec("5.0")) {
		t.Errorf("audit = (%s -> %s), want (2.0 -> 5.0)", a.PrevValue, a.NewValue)
	}
}

func TestApplyUnchangedValueIsNoOp(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(now)
	p := store.addProject("acme", "alpha")
	r := testReconciler(store, openPolicy(), now)
	actor := Actor{UserId: 7, Role: models.UserRoleManager}

	for i := 0; i < 2; i++ {
		if _, err := r.Apply(context.Background(), actor, SourceInteractive, forecastEntry(p.ID, 4, "5.5")); err != nil {
			t.Fatalf("apply #%d: %v", i+1, err)
		}
	}
	if len(store.entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(store.entries))
	}
	if len(store.audits) != 0 {
		t.Errorf("no-op upsert appended %d audit rows, want 0", len(store.audits))
	}
}

func TestApplyValidation(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(now)
	r := testReconciler(store, openPolicy(), now)
	actor := Actor{UserId: 7, Role: models.UserRoleManager}

	cases := []struct {
		name  string
		entry *CanonicalEntry
	}{
		{"missing project", &CanonicalEntry{Year: 2025, Month: 4, Type: models.EntryTypeForecast}},
		{"bad month", &CanonicalEntry{ProjectId: 1, Year: 2025, Month: 13, Type: models.EntryTypeForecast}},
		{"negative value", &CanonicalEntry{ProjectId: 1, Year: 2025, Month: 4, Type: models.EntryTypeForecast, ValueMillion: dec("-1")}},
		{"missing type", &CanonicalEntry{ProjectId: 1, Year: 2025, Month: 4}},
	}
	for _, tc := range cases {
		_, err := r.Apply(context.Background(), actor, SourceInteractive, tc.entry)
		var ve *utils.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: err = %v, want ValidationError", tc.name, err)
		}
	}
	if len(store.entries) != 0 {
		t.Errorf("rejected payloads persisted %d entries", len(store.entries))
	}
}

func TestWeeklyThrottle(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore(t0)
	p := store.addProject("acme", "alpha")
	policy := openPolicy()
	policy.EnforceThrottle = true
	actor := Actor{UserId: 7, Role: models.UserRoleManager}

	r := testReconciler(store, policy, t0)
	if _, err := r.Apply(context.Background(), actor, SourceInteractive, forecastEntry(p.ID, 4, "1.0")); err != nil {
		t.Fatalf("first create: %v", err)
	}

	r.Now = func() time.Time { return t0.Add(3 * 24 * time.Hour) }
	_, err := r.Apply(context.Background(), actor, SourceInteractive, forecastEntry(p.ID, 5, "1.0"))
	if !errors.Is(err, utils.ErrRateLimited) {
		t.Fatalf("create at T0+3d: err = %v, want ErrRateLimited", err)
	}

	r.Now = func() time.Time { return t0.Add(8 * 24 * time.Hour) }
	if _, err := r.Apply(context.Background(), actor, SourceInteractive, forecastEntry(p.ID, 5, "1.0")); err != nil {
		t.Fatalf("create at T0+8d: %v", err)
	}
}

func TestThrottleSkipsBatchSources(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore(t0)
	p := store.addProject("acme", "alpha")
	policy := openPolicy()
	policy.EnforceThrottle = true
	r := testReconciler(store, policy, t0)
	actor := Actor{UserId: 7, Role: models.UserRoleManager}

	// twelve new-key creates in one batch must not trip the throttle
	for _, month := range models.FiscalMonthOrder {
		if _, err := r.Apply(context.Background(), actor, SourceImport, forecastEntry(p.ID, month, "1.0")); err != nil {
			t.Fatalf("import month %d: %v", month, err)
		}
	}
	if len(store.entries) != 12 {
		t.Errorf("want 12 entries, got %d", len(store.entries))
	}
}

func TestForecastFreezeWindow(t *testing.T) {
	store := newFakeStore(time.Time{})
	p := store.addProject("acme", "alpha")
	policy := openPolicy()
	policy.EnforceFreeze = true
	actor := Actor{UserId: 7, Role: models.UserRoleManager}

	// April 2025 locks at the start of April 29 with FreezeDays=2
	frozen := time.Date(2025, 4, 29, 0, 0, 0, 0, time.UTC)
	r := testReconciler(store, policy, frozen)
	_, err := r.Apply(context.Background(), actor, SourceInteractive, forecastEntry(p.ID, 4, "1.0"))
	if !errors.Is(err, utils.ErrFrozen) {
		t.Fatalf("create inside freeze window: err = %v, want ErrFrozen", err)
	}

	open := time.Date(2025, 4, 28, 23, 59, 0, 0, time.UTC)
	r.Now = func() time.Time { return open }
	if _, err := r.Apply(context.Background(), actor, SourceInteractive, forecastEntry(p.ID, 4, "1.0")); err != nil {
		t.Fatalf("create just before freeze: %v", err)
	}
}

func TestFrozenOpportunity(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(now)
	p := store.addProject("acme", "alpha")
	r := testReconciler(store, openPolicy(), now)
	actor := Actor{UserId: 7, Role: models.UserRoleManager}

	won := &CanonicalEntry{
		ProjectId:    p.ID,
		Year:         2025,
		Month:        4,
		Type:         models.EntryTypeOpportunity,
		ValueMillion: dec("10"),
		Probability:  "A",
		Status:       models.OpportunityStatusWon,
	}
	if _, err := r.Apply(context.Background(), actor, SourceInteractive, won); err != nil {
		t.Fatalf("create won opportunity: %v", err)
	}

	changedValue := *won
	changedValue.ValueMillion = dec("20")
	if _, err := r.Apply(context.Background(), actor, SourceInteractive, &changedValue); !errors.Is(err, utils.ErrFrozen) {
		t.Fatalf("value change on won entry: err = %v, want ErrFrozen", err)
	}

	commentOnly := *won
	commentOnly.Comment = "closed in Q1"
	got, err := r.Apply(context.Background(), actor, SourceInteractive, &commentOnly)
	if err != nil {
		t.Fatalf("comment-only change on won entry: %v", err)
	}
	if got.Comment != "closed in Q1" {
		t.Errorf("comment = %q, want %q", got.Comment, "closed in Q1")
	}
	if !got.ValueMillion.Equal(dec("10")) {
		t.Errorf("value = %s, want unchanged 10", got.ValueMillion)
	}

	// clients editing only the comment often serialize status as ""
	emptyStatus := commentOnly
	emptyStatus.Status = ""
	emptyStatus.Comment = "handover done"
	got, err = r.Apply(context.Background(), actor, SourceInteractive, &emptyStatus)
	if err != nil {
		t.Fatalf("comment-only change with empty status: %v", err)
	}
	if got.Comment != "handover done" {
		t.Errorf("comment = %q, want %q", got.Comment, "handover done")
	}
	if got.Status != models.OpportunityStatusWon {
		t.Errorf("status = %q, want unchanged Won", got.Status)
	}
}

func TestManagerScoping(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(now)
	p := store.addProject("acme", "alpha")
	r := testReconciler(store, openPolicy(), now)

	owner := Actor{UserId: 7, Role: models.UserRoleManager}
	if _, err := r.Apply(context.Background(), owner, SourceInteractive, forecastEntry(p.ID, 4, "1.0")); err != nil {
		t.Fatalf("owner create: %v", err)
	}

	other := Actor{UserId: 8, Role: models.UserRoleManager}
	_, err := r.Apply(context.Background(), other, SourceInteractive, forecastEntry(p.ID, 4, "2.0"))
	if !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("other manager update: err = %v, want ErrNotFound", err)
	}

	admin := Actor{UserId: 9, Role: models.UserRoleAdmin}
	if _, err := r.Apply(context.Background(), admin, SourceInteractive, forecastEntry(p.ID, 4, "2.0")); err != nil {
		t.Fatalf("admin update: %v", err)
	}
}

func TestSnapshotURLReplacedOnlyWhenSupplied(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(now)
	p := store.addProject("acme", "alpha")
	r := testReconciler(store, openPolicy(), now)
	actor := Actor{UserId: 7, Role: models.UserRoleManager}

	first := forecastEntry(p.ID, 4, "1.0")
	first.SnapshotURL = "https://storage.example.com/snap-1.png"
	if _, err := r.Apply(context.Background(), actor, SourceInteractive, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	second := forecastEntry(p.ID, 4, "2.0")
	got, err := r.Apply(context.Background(), actor, SourceInteractive, second)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.SnapshotURL != "https://storage.example.com/snap-1.png" {
		t.Errorf("snapshotURL = %q, want original kept", got.SnapshotURL)
	}

	third := forecastEntry(p.ID, 4, "3.0")
	third.SnapshotURL = "https://storage.example.com/snap-2.png"
	got, err = r.Apply(context.Background(), actor, SourceInteractive, third)
	if err != nil {
		t.Fatalf("update with new snapshot: %v", err)
	}
	if got.SnapshotURL != "https://storage.example.com/snap-2.png" {
		t.Errorf("snapshotURL = %q, want replacement", got.SnapshotURL)
	}
}
