package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/forecast_backend/models"
	"bitbucket.org/mmdatafocus/forecast_backend/utils"
	"github.com/shopspring/decimal"
)

// Store is the narrow persistence surface the pipeline needs. models.Store
// implements it over MySQL; tests use an in-memory fake.
type Store interface {
	FindEntry(ctx context.Context, projectId int, year int, month int, typ models.EntryType) (*models.Entry, error)
	CreateEntry(ctx context.Context, entry *models.Entry) error
	UpdateEntry(ctx context.Context, entry *models.Entry) error
	LatestEntryCreatedAt(ctx context.Context, projectId int, managerId int, typ models.EntryType) (*time.Time, error)
	AppendAuditLog(ctx context.Context, log *models.AuditLog) error
	FindProjectByAccountAndName(ctx context.Context, account string, name string) (*models.Project, error)
	CreateProject(ctx context.Context, project *models.Project) error
}

// Actor identifies the principal applying a change.
type Actor struct {
	UserId int
	Name   string
	Role   models.UserRole
}

// Source tells the reconciler which path a change arrived on. The weekly
// throttle and freeze window only bind interactive single-cell edits;
// batch paths would trip the throttle on their own twelve-month writes.
type Source int

const (
	SourceInteractive Source = iota
	SourceBulkSave
	SourceImport
)

// CanonicalEntry is the alias-free entry shape the reconciler applies.
// ProjectId must already be resolved by the caller.
type CanonicalEntry struct {
	ProjectId    int
	Year         int
	Month        int
	Type         models.EntryType
	ValueMillion decimal.Decimal
	Comment      string
	Probability  models.Probability
	Status       models.OpportunityStatus
	SnapshotURL  string
}

// Reconciler applies one canonical entry to persisted state, honoring
// identity, audit and edit-window rules.
type Reconciler struct {
	store  Store
	policy EditPolicy
	// Now is swappable for deterministic tests.
	Now func() time.Time
}

func NewReconciler(store Store, policy EditPolicy) *Reconciler {
	return &Reconciler{store: store, policy: policy, Now: time.Now}
}

func validateEntry(ce *CanonicalEntry) error {
	problems := make([]string, 0)
	if ce.ProjectId <= 0 {
		problems = append(problems, "projectId is required")
	}
	if ce.Year <= 0 {
		problems = append(problems, "year is required")
	}
	if ce.Month < 1 || ce.Month > 12 {
		problems = append(problems, "month must be between 1 and 12")
	}
	if ce.Type == "" {
		problems = append(problems, "type is required")
	}
	if ce.ValueMillion.IsNegative() {
		problems = append(problems, "valueMillion must be a non-negative number")
	}
	if len(problems) > 0 {
		return utils.NewValidationError(problems...)
	}
	return nil
}

// Apply upserts exactly one entry. Returns the persisted post-mutation
// record. Error taxonomy: ValidationError for malformed input,
// ErrRateLimited for the weekly throttle, ErrFrozen for closed edit
// windows and terminal opportunities, ErrNotFound for out-of-scope keys.
func (r *Reconciler) Apply(ctx context.Context, actor Actor, source Source, ce *CanonicalEntry) (*models.Entry, error) {
	if err := validateEntry(ce); err != nil {
		return nil, err
	}

	existing, err := r.store.FindEntry(ctx, ce.ProjectId, ce.Year, ce.Month, ce.Type)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		entry, err := r.create(ctx, actor, source, ce)
		if !errors.Is(err, models.ErrDuplicateEntry) {
			return entry, err
		}
		// lost a create race; the unique index is the arbiter, so refetch
		// and fall through to the update path
		existing, err = r.store.FindEntry(ctx, ce.ProjectId, ce.Year, ce.Month, ce.Type)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, models.ErrDuplicateEntry
		}
	}
	return r.update(ctx, actor, source, ce, existing)
}

func (r *Reconciler) create(ctx context.Context, actor Actor, source Source, ce *CanonicalEntry) (*models.Entry, error) {
	if source == SourceInteractive && ce.Type != models.EntryTypeActual {
		if err := r.checkThrottle(ctx, actor, ce); err != nil {
			return nil, err
		}
	}
	if source == SourceInteractive && ce.Type == models.EntryTypeForecast {
		if err := r.checkFreeze(ce); err != nil {
			return nil, err
		}
	}
	if ce.Type == models.EntryTypeOpportunity && ce.Status == "" {
		ce.Status = models.OpportunityStatusInProgress
	}

	entry := &models.Entry{
		ProjectId:    ce.ProjectId,
		Year:         ce.Year,
		Month:        ce.Month,
		Type:         ce.Type,
		ValueMillion: ce.ValueMillion,
		Comment:      ce.Comment,
		Probability:  ce.Probability,
		Status:       ce.Status,
		SnapshotURL:  ce.SnapshotURL,
		ManagerId:    actor.UserId,
	}
	if err := r.store.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Reconciler) update(ctx context.Context, actor Actor, source Source, ce *CanonicalEntry, existing *models.Entry) (*models.Entry, error) {
	if actor.Role == models.UserRoleManager && existing.ManagerId != 0 && existing.ManagerId != actor.UserId {
		return nil, utils.ErrNotFound
	}
	if source == SourceInteractive && ce.Type == models.EntryTypeForecast {
		if err := r.checkFreeze(ce); err != nil {
			return nil, err
		}
	}

	valueChanged := !existing.ValueMillion.Equal(ce.ValueMillion)
	probabilityChanged := ce.Type == models.EntryTypeOpportunity && existing.Probability != ce.Probability
	statusChanged := ce.Type == models.EntryTypeOpportunity && ce.Status != "" && existing.Status != ce.Status
	commentChanged := existing.Comment != ce.Comment
	snapshotChanged := ce.SnapshotURL != "" && existing.SnapshotURL != ce.SnapshotURL

	if ce.Type == models.EntryTypeOpportunity && existing.Status.Frozen() {
		if valueChanged || probabilityChanged || statusChanged {
			return nil, utils.ErrFrozen
		}
		if !r.policy.AllowCommentOnFrozen {
			return existing, nil
		}
	}

	if !valueChanged && !probabilityChanged && !statusChanged && !commentChanged && !snapshotChanged {
		// no-op upsert appends nothing, not even an audit row
		return existing, nil
	}

	if valueChanged && ce.Type != models.EntryTypeActual {
		audit := &models.AuditLog{
			EntryId:   existing.ID,
			PrevValue: existing.ValueMillion,
			NewValue:  ce.ValueMillion,
			ChangedBy: actor.UserId,
		}
		if err := r.store.AppendAuditLog(ctx, audit); err != nil {
			return nil, err
		}
	}

	existing.ValueMillion = ce.ValueMillion
	existing.Comment = ce.Comment
	if ce.Type == models.EntryTypeOpportunity {
		existing.Probability = ce.Probability
		if ce.Status != "" {
			existing.Status = ce.Status
		}
	}
	if ce.SnapshotURL != "" {
		existing.SnapshotURL = ce.SnapshotURL
	}
	if err := r.store.UpdateEntry(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (r *Reconciler) checkThrottle(ctx context.Context, actor Actor, ce *CanonicalEntry) error {
	if !r.policy.EnforceThrottle {
		return nil
	}
	latest, err := r.store.LatestEntryCreatedAt(ctx, ce.ProjectId, actor.UserId, ce.Type)
	if err != nil {
		return err
	}
	if latest != nil && r.Now().Sub(*latest) < r.policy.ThrottleWindow {
		return utils.ErrRateLimited
	}
	return nil
}

func (r *Reconciler) checkFreeze(ce *CanonicalEntry) error {
	if !r.policy.EnforceFreeze {
		return nil
	}
	if !IsEditWindowOpen(r.Now(), ce.Year, ce.Month, r.policy) {
		return utils.ErrFrozen
	}
	return nil
}
