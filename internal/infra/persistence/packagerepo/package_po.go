package packagerepo

import (
	"time"

	"github.com/pulsedev/pulse/internal/infra/persistence/commonrepo"
	"gorm.io/datatypes"
)

type AppliedPackage struct {
	commonrepo.Model
	PackageID string            `gorm:"column:package_id;size:128;not null;uniqueIndex"`
	Day       string            `gorm:"column:day;size:16;not null;index"`
	Hour      int               `gorm:"column:hour;default:-1"`
	Size      int64             `gorm:"column:size;default:0"`
	Checksum  string            `gorm:"column:checksum;size:128"`
	Meta      datatypes.JSONMap `gorm:"column:meta;type:json"`
	AppliedAt time.Time         `gorm:"column:applied_at;not null;index"`
}

func (AppliedPackage) TableName() string {
	return "applied_packages"
}
