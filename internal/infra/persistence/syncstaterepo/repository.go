package syncstaterepo

import (
	"context"
	"errors"
	"time"

	"github.com/google/wire"
	domain "github.com/pulsedev/pulse/internal/biz/run"
	"github.com/pulsedev/pulse/internal/infra/persistence/commonrepo"
	"github.com/samber/mo"
	"github.com/yitter/idgenerator-go/idgen"
	"gorm.io/gorm"
)

var Provider = wire.NewSet(NewMysqlRepositoryImpl)

type MysqlRepositoryImpl struct {
	commonrepo.DefaultRepo
}

func NewMysqlRepositoryImpl(db commonrepo.DB) domain.Repo {
	return &MysqlRepositoryImpl{
		DefaultRepo: commonrepo.NewDefaultRepo(db),
	}
}

func (r *MysqlRepositoryImpl) LastSuccess(ctx context.Context, taskID string) (mo.Option[time.Time], error) {
	po, err := r.get(ctx, taskID)
	if err != nil {
		return mo.None[time.Time](), err
	}
	if po == nil || po.LastSuccessAt == nil {
		return mo.None[time.Time](), nil
	}
	return mo.Some(*po.LastSuccessAt), nil
}

func (r *MysqlRepositoryImpl) SetLastSuccess(ctx context.Context, taskID string, at time.Time) error {
	return r.Execute(ctx, func(ctx context.Context) error {
		po, err := r.ensure(ctx, taskID)
		if err != nil {
			return err
		}
		return r.Db(ctx).Model(&SyncState{}).Where("id = ?", po.ID).Update("last_success_at", at).Error
	})
}

func (r *MysqlRepositoryImpl) LastOutcome(ctx context.Context, taskID string) (mo.Option[string], error) {
	po, err := r.get(ctx, taskID)
	if err != nil {
		return mo.None[string](), err
	}
	if po == nil || po.LastOutcome == "" {
		return mo.None[string](), nil
	}
	return mo.Some(po.LastOutcome), nil
}

func (r *MysqlRepositoryImpl) RecordOutcome(ctx context.Context, taskID string, display string) error {
	return r.Execute(ctx, func(ctx context.Context) error {
		po, err := r.ensure(ctx, taskID)
		if err != nil {
			return err
		}
		return r.Db(ctx).Model(&SyncState{}).Where("id = ?", po.ID).Update("last_outcome", display).Error
	})
}

func (r *MysqlRepositoryImpl) get(ctx context.Context, taskID string) (*SyncState, error) {
	var po SyncState
	err := r.Db(ctx).Where("task_id = ?", taskID).First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &po, nil
}

// ensure returns the row for taskID, creating it on first use.
func (r *MysqlRepositoryImpl) ensure(ctx context.Context, taskID string) (*SyncState, error) {
	po, err := r.get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if po != nil {
		return po, nil
	}
	po = &SyncState{
		Model:  commonrepo.Model{ID: uint64(idgen.NextId())},
		TaskID: taskID,
	}
	if err := r.Db(ctx).Create(po).Error; err != nil {
		return nil, err
	}
	return po, nil
}
