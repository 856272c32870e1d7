package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/forecast_backend/config"
	"bitbucket.org/mmdatafocus/forecast_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Project is the reference entity entries hang off. (Account, Name) is the
// natural key imports match against.
type Project struct {
	ID          int          `gorm:"primary_key" json:"id"`
	Account     string       `gorm:"size:255;uniqueIndex:idx_account_name;not null" json:"account"`
	Name        string       `gorm:"size:255;uniqueIndex:idx_account_name;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	ManagerName string       `gorm:"size:255" json:"manager_name"`
	BU          string       `gorm:"size:100" json:"bu"`
	VDE         string       `gorm:"size:100" json:"vde"`
	GDE         string       `gorm:"size:100" json:"gde"`
	Managers    []*User      `gorm:"many2many:project_managers" json:"managers,omitempty"`
	AOPTargets  []*AOPTarget `json:"aop_targets,omitempty"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// AOPTarget is an append-only annual-operating-plan target record.
// Targets are never edited; corrections append a new row.
type AOPTarget struct {
	ID           int             `gorm:"primary_key" json:"id"`
	ProjectId    int             `gorm:"index;not null" json:"project_id"`
	Year         int             `gorm:"not null" json:"year"`
	Month        int             `gorm:"not null" json:"month"`
	ValueMillion decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"value_million"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func ListProjects(ctx context.Context) ([]*Project, error) {
	if cached, err := utils.RetrieveRedisList[Project](""); err == nil && cached != nil {
		return cached, nil
	}

	db := config.GetDB()
	var projects []*Project
	if err := db.WithContext(ctx).Model(&Project{}).
		Preload("Managers").Preload("AOPTargets").
		Order("account, name").Find(&projects).Error; err != nil {
		return nil, err
	}
	if len(projects) > 0 {
		if err := utils.StoreRedisList[Project](projects, ""); err != nil {
			return nil, err
		}
	}
	return projects, nil
}

func GetProjectById(ctx context.Context, id int) (*Project, error) {
	db := config.GetDB()
	var project Project
	err := db.WithContext(ctx).Preload("Managers").First(&project, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &project, nil
}

func CreateProject(ctx context.Context, project *Project) error {
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(project).Error; err != nil {
		return err
	}
	return utils.ClearModelCache[Project](project.ID)
}

// UpdateProjectManagers replaces the manager assignment set.
func UpdateProjectManagers(ctx context.Context, projectId int, managerIds []int) (*Project, error) {
	db := config.GetDB()
	project, err := GetProjectById(ctx, projectId)
	if err != nil {
		return nil, err
	}

	var managers []*User
	if len(managerIds) > 0 {
		ids := utils.UniqueSlice(managerIds)
		if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&managers).Error; err != nil {
			return nil, err
		}
		if len(managers) != len(ids) {
			return nil, errors.New("one or more managers not found")
		}
	}

	if err := db.WithContext(ctx).Model(project).Association("Managers").Replace(managers); err != nil {
		return nil, err
	}
	project.Managers = managers
	if err := utils.ClearModelCache[Project](project.ID); err != nil {
		return nil, err
	}
	return project, nil
}

// AppendAOPTarget records a new target; existing target rows are never touched.
func AppendAOPTarget(ctx context.Context, projectId int, year int, month int, valueMillion decimal.Decimal) (*AOPTarget, error) {
	if month < 1 || month > 12 {
		return nil, utils.NewValidationError("month must be between 1 and 12")
	}
	if valueMillion.IsNegative() {
		return nil, utils.NewValidationError("value_million must be a non-negative number")
	}
	if _, err := GetProjectById(ctx, projectId); err != nil {
		return nil, err
	}

	target := &AOPTarget{
		ProjectId:    projectId,
		Year:         year,
		Month:        month,
		ValueMillion: valueMillion,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(target).Error; err != nil {
		return nil, err
	}
	if err := utils.ClearModelCache[Project](projectId); err != nil {
		return nil, err
	}
	return target, nil
}
