package metadata

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pkgerrors "github.com/daniel-olson-code/buelon/internal/pkg/errors"
)

// Repo is the metadata store's query surface. Candidate selection and
// leasing for the scheduler live in internal/scheduler, built on top of
// SelectCandidates/LeaseWorking below — this file only owns row-level CRUD.
type Repo interface {
	Insert(ctx context.Context, step *Step) error
	Get(ctx context.Context, id string) (*Step, error)
	GetMany(ctx context.Context, ids []string) ([]*Step, error)
	UpdateFields(ctx context.Context, id string, updates map[string]interface{}) error
	SelectCandidates(ctx context.Context, scopes []string, status Status, includeWorking bool, staleCutoff time.Time, limit int, priorityAsc bool) ([]*Step, error)
	LeaseWorking(ctx context.Context, ids []string) error
	CountByStatus(ctx context.Context, scopes []string) (map[Status]int64, error)
	Delete(ctx context.Context, id string) error
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) Repo {
	return &repo{db: db}
}

func (r *repo) Insert(ctx context.Context, step *Step) error {
	if step.Epoch == 0 {
		step.Epoch = nowEpoch()
	}
	return r.db.WithContext(ctx).Create(step).Error
}

func (r *repo) Get(ctx context.Context, id string) (*Step, error) {
	var step Step
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&step).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &step, nil
}

func (r *repo) GetMany(ctx context.Context, ids []string) ([]*Step, error) {
	var out []*Step
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

func (r *repo) UpdateFields(ctx context.Context, id string, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["epoch"]; !ok {
		updates["epoch"] = nowEpoch()
	}
	return r.db.WithContext(ctx).Model(&Step{}).Where("id = ?", id).Updates(updates).Error
}


// SelectCandidates returns rows matching the scheduler's admission filter:
// scope in scopes AND (status = status OR (includeWorking AND status =
// working AND epoch < staleCutoff)), ordered priority DESC/ASC then epoch
// ASC, capped at limit. It does not mutate rows or perform velocity
// admission — that sequential, tag-aware decision belongs to the caller.
func (r *repo) SelectCandidates(ctx context.Context, scopes []string, status Status, includeWorking bool, staleCutoff time.Time, limit int, priorityAsc bool) ([]*Step, error) {
	q := r.db.WithContext(ctx).Model(&Step{})
	if len(scopes) > 0 {
		q = q.Where("scope IN ?", scopes)
	}
	if includeWorking {
		q = q.Where("(status = ? OR (status = ? AND epoch < ?))", status, StatusWorking, staleCutoff.Unix())
	} else {
		q = q.Where("status = ?", status)
	}
	order := "priority DESC, epoch ASC"
	if priorityAsc {
		order = "priority ASC, epoch ASC"
	}
	var out []*Step
	err := q.Order(order).Limit(limit).Find(&out).Error
	return out, err
}

// LeaseWorking atomically transitions a batch of rows to working with a
// fresh epoch, row-locked to avoid two schedulers leasing the same step.
func (r *repo) LeaseWorking(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked []Step
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", ids).Find(&locked).Error; err != nil {
			return err
		}
		return tx.Model(&Step{}).Where("id IN ?", ids).
			Updates(map[string]interface{}{"status": StatusWorking, "epoch": nowEpoch()}).Error
	})
}

func (r *repo) CountByStatus(ctx context.Context, scopes []string) (map[Status]int64, error) {
	type row struct {
		Status Status
		Count  int64
	}
	var rows []row
	q := r.db.WithContext(ctx).Model(&Step{}).Select("status, count(*) as count")
	if len(scopes) > 0 {
		q = q.Where("scope IN ?", scopes)
	}
	if err := q.Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[Status]int64, len(rows))
	for _, rr := range rows {
		out[rr.Status] = rr.Count
	}
	return out, nil
}

func (r *repo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&Step{}).Error
}
