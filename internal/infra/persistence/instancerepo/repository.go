package instancerepo

import (
	"context"
	"errors"

	"github.com/google/wire"
	domain "github.com/pulsedev/pulse/internal/biz/instance"
	"github.com/pulsedev/pulse/internal/infra/persistence/commonrepo"
	"github.com/samber/lo"
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

func (r *MysqlRepositoryImpl) Register(ctx context.Context, inst *domain.AgentInstance) error {
	return r.Execute(ctx, func(ctx context.Context) error {
		var po AgentInstance
		err := r.Db(ctx).Where("instance_id = ?", inst.InstanceID).First(&po).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			po = AgentInstance{
				Model:      commonrepo.Model{ID: uint64(idgen.NextId())},
				InstanceID: inst.InstanceID,
				Host:       inst.Host,
				Port:       inst.Port,
			}
			return r.Db(ctx).Create(&po).Error
		}
		if err != nil {
			return err
		}
		return r.Db(ctx).Model(&AgentInstance{}).Where("id = ?", po.ID).
			Updates(map[string]any{"host": inst.Host, "port": inst.Port, "is_leader": false}).Error
	})
}

func (r *MysqlRepositoryImpl) UpdateLeader(ctx context.Context, instanceID string, leader bool) error {
	return r.Db(ctx).Model(&AgentInstance{}).
		Where("instance_id = ?", instanceID).
		Update("is_leader", leader).Error
}

func (r *MysqlRepositoryImpl) List(ctx context.Context) ([]*domain.AgentInstance, error) {
	var pos []*AgentInstance
	if err := r.Db(ctx).Order("instance_id").Find(&pos).Error; err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po *AgentInstance, _ int) *domain.AgentInstance {
		return po.ToDomain()
	}), nil
}
