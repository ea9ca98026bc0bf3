package settingsrepo

import (
	"context"
	"errors"

	"github.com/google/wire"
	domain "github.com/pulsedev/pulse/internal/biz/settings"
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

func (r *MysqlRepositoryImpl) Get(ctx context.Context, name string) (mo.Option[string], error) {
	var po Setting
	err := r.Db(ctx).Where("name = ?", name).First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return mo.None[string](), nil
	}
	if err != nil {
		return mo.None[string](), err
	}
	return mo.Some(po.Value), nil
}

func (r *MysqlRepositoryImpl) Set(ctx context.Context, name, value string) error {
	return r.Db(ctx).Transaction(func(tx *gorm.DB) error {
		var po Setting
		err := tx.Where("name = ?", name).First(&po).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			po = Setting{
				Model: commonrepo.Model{ID: uint64(idgen.NextId())},
				Name:  name,
				Value: value,
			}
			return tx.Create(&po).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&Setting{}).Where("id = ?", po.ID).Update("value", value).Error
	})
}

func (r *MysqlRepositoryImpl) EnsureDefault(ctx context.Context, name, value string) error {
	po := Setting{
		Model: commonrepo.Model{ID: uint64(idgen.NextId())},
		Name:  name,
		Value: value,
	}
	return r.Db(ctx).Where("name = ?", name).FirstOrCreate(&po).Error
}
