package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/forecast_backend/config"
	"bitbucket.org/mmdatafocus/forecast_backend/models"
	"bitbucket.org/mmdatafocus/forecast_backend/utils"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const importLockTTL = 5 * time.Minute

// ErrImportInProgress means another import for the same (type, year) holds
// the lock.
var ErrImportInProgress = fmt.Errorf("an import for this type and year is already running")

// ImportResult is the aggregate outcome of one bulk import. Mismatches
// lists "<account>/<project>" pairs that matched no project; Errors lists
// per-row failures from the reconciler. Success is true only when every
// row applied.
type ImportResult struct {
	Success    bool     `json:"success"`
	Imported   int      `json:"imported"`
	Mismatches []string `json:"mismatches"`
	Errors     []string `json:"errors,omitempty"`
}

// Coordinator drives a parsed file through the normalizer and reconciler
// row by row, in source-file order, without letting one bad row abort the
// batch.
type Coordinator struct {
	store      Store
	reconciler *Reconciler
	logger     *logrus.Logger
	// Locker serializes concurrent imports per (type, year); nil disables
	// locking.
	Locker *redislock.Client
}

func NewCoordinator(store Store, reconciler *Reconciler) *Coordinator {
	return &Coordinator{
		store:      store,
		reconciler: reconciler,
		logger:     config.GetLogger(),
		Locker:     config.GetRedisLock(),
	}
}

// Import applies every row of a parsed spreadsheet as twelve monthly
// upserts. Forecast imports create missing projects on the fly;
// opportunity and actuals imports require the project to exist already and
// record a mismatch otherwise. Rows are processed sequentially in file
// order, so audit logs and mismatches come out deterministic.
func (c *Coordinator) Import(ctx context.Context, actor Actor, typ models.EntryType, year int, rows []RawRow) (*ImportResult, error) {
	tracer := otel.Tracer("workflow")
	ctx, span := tracer.Start(ctx, "bulk-import", trace.WithAttributes(
		attribute.String("import.type", string(typ)),
		attribute.Int("import.year", year),
		attribute.Int("import.rows", len(rows)),
	))
	defer span.End()

	if c.Locker != nil {
		lockKey := fmt.Sprintf("import:%s:%d", typ, year)
		lock, err := c.Locker.Obtain(ctx, lockKey, importLockTTL, nil)
		if err == redislock.ErrNotObtained {
			return nil, ErrImportInProgress
		}
		if err != nil {
			return nil, err
		}
		defer lock.Release(ctx)
	}

	result := &ImportResult{Mismatches: make([]string, 0)}
	for i, raw := range rows {
		row := NormalizeRow(raw)
		if row.Account == "" || row.ProjectName == "" {
			result.Mismatches = append(result.Mismatches, fmt.Sprintf("%s/%s", row.Account, row.ProjectName))
			continue
		}

		project, err := c.resolveProject(ctx, typ, row)
		if err != nil {
			return nil, err
		}
		if project == nil {
			result.Mismatches = append(result.Mismatches, fmt.Sprintf("%s/%s", row.Account, row.ProjectName))
			continue
		}

		if err := c.applyRow(ctx, actor, typ, year, project, row); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		result.Imported++
	}

	result.Success = len(result.Mismatches) == 0 && len(result.Errors) == 0
	c.finishImport(ctx, actor, typ, year, result)
	return result, nil
}

// resolveProject finds the row's project, creating it only for forecast
// imports. Returns nil, nil when the row matches nothing.
func (c *Coordinator) resolveProject(ctx context.Context, typ models.EntryType, row *NormalizedRow) (*models.Project, error) {
	project, err := c.store.FindProjectByAccountAndName(ctx, row.Account, row.ProjectName)
	if err != nil {
		return nil, err
	}
	if project != nil || typ != models.EntryTypeForecast {
		return project, nil
	}
	project = &models.Project{
		Account:     row.Account,
		Name:        row.ProjectName,
		ManagerName: row.ManagerName,
		BU:          row.BU,
		VDE:         row.VDE,
		GDE:         row.GDE,
	}
	if err := c.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// applyRow upserts all twelve fiscal months of one row. Missing cells
// import as zero, same as the frontend's numeric coercion.
func (c *Coordinator) applyRow(ctx context.Context, actor Actor, typ models.EntryType, year int, project *models.Project, row *NormalizedRow) error {
	return c.applyRowSource(ctx, actor, typ, year, project, row, SourceImport)
}

func (c *Coordinator) finishImport(ctx context.Context, actor Actor, typ models.EntryType, year int, result *ImportResult) {
	if err := models.ClearEntryYearsCache(typ); err != nil {
		config.LogError(c.logger, "workflow", "Import", "clear years cache", typ, err)
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	event := &config.ImportEvent{
		Type:          string(typ),
		Year:          year,
		Imported:      result.Imported,
		Mismatches:    result.Mismatches,
		ImportedBy:    actor.UserId,
		FinishedAt:    time.Now().UTC(),
		CorrelationId: correlationId,
	}
	if err := config.PublishImportEvent(ctx, event); err != nil {
		config.LogError(c.logger, "workflow", "Import", "publish import event", event, err)
	}

	c.logger.WithFields(logrus.Fields{
		"type":       typ,
		"year":       year,
		"imported":   result.Imported,
		"mismatches": len(result.Mismatches),
		"errors":     len(result.Errors),
	}).Info("bulk import finished")
}

// BulkSave applies a grid of edited rows. Unlike Import it is
// all-or-nothing on validation: every row is checked first and any problem
// rejects the whole batch before a single write happens. Projects must
// already exist.
func (c *Coordinator) BulkSave(ctx context.Context, actor Actor, typ models.EntryType, year int, rows []RawRow) (int, error) {
	normalized := make([]*NormalizedRow, 0, len(rows))
	projects := make([]*models.Project, 0, len(rows))
	problems := make([]string, 0)
	for i, raw := range rows {
		row := NormalizeRow(raw)
		problems = append(problems, ValidateRow(row, i+1)...)
		normalized = append(normalized, row)

		var project *models.Project
		if row.Account != "" && row.ProjectName != "" {
			var err error
			project, err = c.store.FindProjectByAccountAndName(ctx, row.Account, row.ProjectName)
			if err != nil {
				return 0, err
			}
			if project == nil {
				problems = append(problems, fmt.Sprintf("row %d: project %s/%s not found", i+1, row.Account, row.ProjectName))
			}
		}
		projects = append(projects, project)
	}
	if len(problems) > 0 {
		return 0, utils.NewValidationError(problems...)
	}

	saved := 0
	for i, row := range normalized {
		if err := c.applyRowSource(ctx, actor, typ, year, projects[i], row, SourceBulkSave); err != nil {
			return saved, err
		}
		saved++
	}
	if err := models.ClearEntryYearsCache(typ); err != nil {
		config.LogError(c.logger, "workflow", "BulkSave", "clear years cache", typ, err)
	}
	return saved, nil
}

func (c *Coordinator) applyRowSource(ctx context.Context, actor Actor, typ models.EntryType, year int, project *models.Project, row *NormalizedRow, source Source) error {
	probability, _ := models.ParseProbability(row.Probability)
	status, _ := models.ParseOpportunityStatus(row.Status)
	for _, month := range models.FiscalMonthOrder {
		ce := &CanonicalEntry{
			ProjectId:    project.ID,
			Year:         year,
			Month:        month,
			Type:         typ,
			ValueMillion: row.Months[month],
			Comment:      row.Comment,
		}
		if typ == models.EntryTypeOpportunity {
			ce.Probability = probability
			ce.Status = status
		}
		if _, err := c.reconciler.Apply(ctx, actor, source, ce); err != nil {
			return err
		}
	}
	return nil
}
