package packagerepo

import (
	"context"
	"time"

	"github.com/google/wire"
	domain "github.com/pulsedev/pulse/internal/biz/download"
	"github.com/pulsedev/pulse/internal/infra/persistence/commonrepo"
	"github.com/samber/lo"
	"github.com/yitter/idgenerator-go/idgen"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var Provider = wire.NewSet(NewMysqlRepositoryImpl)

type MysqlRepositoryImpl struct {
	commonrepo.DefaultRepo
}

func NewMysqlRepositoryImpl(db commonrepo.DB) domain.Cursor {
	return &MysqlRepositoryImpl{
		DefaultRepo: commonrepo.NewDefaultRepo(db),
	}
}

// Applied reports which of the given package identifiers were already fed
// to the analyzer by a past run.
func (r *MysqlRepositoryImpl) Applied(ctx context.Context, packageIDs []string) (map[string]bool, error) {
	if len(packageIDs) == 0 {
		return map[string]bool{}, nil
	}

	var found []string
	err := r.Db(ctx).Model(&AppliedPackage{}).
		Where("package_id IN ?", packageIDs).
		Pluck("package_id", &found).Error
	if err != nil {
		return nil, err
	}

	return lo.SliceToMap(found, func(id string) (string, bool) {
		return id, true
	}), nil
}

// MarkApplied records the batches of a successful run. Re-marking a package
// is a no-op so replayed runs stay idempotent.
func (r *MysqlRepositoryImpl) MarkApplied(ctx context.Context, batches []domain.Batch) error {
	if len(batches) == 0 {
		return nil
	}

	now := time.Now()
	pos := lo.Map(batches, func(b domain.Batch, _ int) AppliedPackage {
		return AppliedPackage{
			Model:     commonrepo.Model{ID: uint64(idgen.NextId())},
			PackageID: b.PackageID,
			Day:       b.Day,
			Hour:      b.Hour,
			Size:      b.Size,
			Checksum:  b.Checksum,
			Meta: datatypes.JSONMap{
				"staging_path": b.Path,
			},
			AppliedAt: now,
		}
	})

	return r.Db(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "package_id"}},
			DoNothing: true,
		}).Create(&pos).Error
	})
}

// ListRecent returns the most recently applied packages, newest first.
func (r *MysqlRepositoryImpl) ListRecent(ctx context.Context, limit int) ([]domain.AppliedPackage, error) {
	if limit <= 0 {
		limit = 50
	}

	var pos []AppliedPackage
	err := r.Db(ctx).Model(&AppliedPackage{}).
		Order("applied_at DESC").
		Limit(limit).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	return lo.Map(pos, func(po AppliedPackage, _ int) domain.AppliedPackage {
		return po.ToDomain()
	}), nil
}
