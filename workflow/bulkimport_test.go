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

func testCoordinator(store *fakeStore, now time.Time) *Coordinator {
	policy := openPolicy()
	policy.EnforceThrottle = true
	policy.EnforceFreeze = true
	c := NewCoordinator(store, testReconciler(store, policy, now))
	c.Locker = nil
	return c
}

func actualsRow(account, project, apr string) RawRow {
	return RawRow{"accountName": account, "projectName": project, "Apr": apr}
}

func TestImportPartialFailure(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(now)
	store.addProject("acct1", "proj1")
	store.addProject("acct3", "proj3")
	c := testCoordinator(store, now)
	actor := Actor{UserId: 1, Role: models.UserRoleAdmin}

	rows := []RawRow{
		actualsRow("acct1", "proj1", "1.0"),
		actualsRow("acct2", "proj2", "2.0"),
		actualsRow("acct3", "proj3", "3.0"),
	}
	result, err := c.Import(context.Background(), actor, models.EntryTypeActual, 2025, rows)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Success {
		t.Error("success = true with a mismatch present")
	}
	if result.Imported != 2 {
		t.Errorf("imported = %d, want 2", result.Imported)
	}
	if len(result.Mismatches) != 1 || result.Mismatches[0] != "acct2/proj2" {
		t.Errorf("mismatches = %v, want [acct2/proj2]", result.Mismatches)
	}
	// rows 1 and 3 persisted, 12 months each
	if len(store.entries) != 24 {
		t.Errorf("persisted %d entries, want 24", len(store.entries))
	}
}

func TestImportActualsDoesNotCreateProjects(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(now)
	c := testCoordinator(store, now)
	actor := Actor{UserId: 1, Role: models.UserRoleAdmin}

	result, err := c.Import(context.Background(), actor, models.EntryTypeActual, 2025,
		[]RawRow{actualsRow("acct", "proj", "1.0")})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(store.projects) != 0 {
		t.Errorf("actuals import created %d projects", len(store.projects))
	}
	if result.Imported != 0 || len(result.Mismatches) != 1 {
		t.Errorf("result = %+v, want 0 imported with 1 mismatch", result)
	}
}

func TestImportForecastsCreatesMissingProjects(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(now)
	c := testCoordinator(store, now)
	actor := Actor{UserId: 1, Role: models.UserRoleAdmin}

	rows := []RawRow{{
		"Account Name":     "Acme",
		"Project Name":     "Alpha",
		"Delivery Manager": "Kyaw",
		"BU":               "Cloud",
		"Apr":              "12.5",
		"May":              "abc",
	}}
	result, err := c.Import(context.Background(), actor, models.EntryTypeForecast, 2025, rows)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !result.Success || result.Imported != 1 {
		t.Fatalf("result = %+v, want success with 1 imported", result)
	}
	if len(store.projects) != 1 {
		t.Fatalf("want 1 auto-created project, got %d", len(store.projects))
	}
	p := store.projects[0]
	if p.Account != "Acme" || p.Name != "Alpha" || p.ManagerName != "Kyaw" || p.BU != "Cloud" {
		t.Errorf("project = %+v, want fields carried from the row", p)
	}
	if len(store.entries) != 12 {
		t.Fatalf("want 12 monthly entries, got %d", len(store.entries))
	}

	byMonth := make(map[int]decimal.Decimal)
	for _, e := range store.entries {
		byMonth[e.Month] = e.ValueMillion
	}
	if !byMonth[4].Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("apr = %s, want 12.5", byMonth[4])
	}
	if !byMonth[5].IsZero() {
		t.Errorf("may = %s, want coerced 0", byMonth[5])
	}
}

func TestImportIsIdempotent(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(now)
	store.addProject("Acme", "Alpha")
	c := testCoordinator(store, now)
	actor := Actor{UserId: 1, Role: models.UserRoleAdmin}

	rows := []RawRow{actualsRow("Acme", "Alpha", "5.0")}
	for i := 0; i < 2; i++ {
		if _, err := c.Import(context.Background(), actor, models.EntryTypeActual, 2025, rows); err != nil {
			t.Fatalf("import #%d: %v", i+1, err)
		}
	}
	if len(store.entries) != 12 {
		t.Errorf("reimport duplicated entries: got %d, want 12", len(store.entries))
	}
	if len(store.audits) != 0 {
		t.Errorf("actuals reimport wrote %d audit rows, want 0", len(store.audits))
	}
}

func TestBulkSaveRejectsWholeBatchOnValidation(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(now)
	store.addProject("Acme", "Alpha")
	c := testCoordinator(store, now)
	actor := Actor{UserId: 1, Role: models.UserRoleAdmin}

	rows := []RawRow{
		actualsRow("Acme", "Alpha", "1.0"),
		{"accountName": "Acme", "projectName": "", "Apr": "2.0"},
	}
	saved, err := c.BulkSave(context.Background(), actor, models.EntryTypeForecast, 2025, rows)
	var ve *utils.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if saved != 0 {
		t.Errorf("saved = %d, want 0", saved)
	}
	if len(store.entries) != 0 {
		t.Errorf("rejected batch persisted %d entries", len(store.entries))
	}
}

func TestBulkSaveRejectsUnknownProject(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(now)
	c := testCoordinator(store, now)
	actor := Actor{UserId: 1, Role: models.UserRoleAdmin}

	_, err := c.BulkSave(context.Background(), actor, models.EntryTypeForecast, 2025,
		[]RawRow{actualsRow("Acme", "Alpha", "1.0")})
	var ve *utils.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestBulkSaveAppliesAllRows(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(now)
	store.addProject("Acme", "Alpha")
	store.addProject("Acme", "Beta")
	c := testCoordinator(store, now)
	actor := Actor{UserId: 1, Role: models.UserRoleAdmin}

	rows := []RawRow{
		actualsRow("Acme", "Alpha", "1.0"),
		actualsRow("Acme", "Beta", "2.0"),
	}
	saved, err := c.BulkSave(context.Background(), actor, models.EntryTypeForecast, 2025, rows)
	if err != nil {
		t.Fatalf("bulk save: %v", err)
	}
	if saved != 2 {
		t.Errorf("saved = %d, want 2", saved)
	}
	if len(store.entries) != 24 {
		t.Errorf("persisted %d entries, want 24", len(store.entries))
	}
}
