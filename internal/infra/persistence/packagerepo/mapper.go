package packagerepo

import (
	domain "github.com/pulsedev/pulse/internal/biz/download"
)

func (po *AppliedPackage) ToDomain() domain.AppliedPackage {
	return domain.AppliedPackage{
		PackageID: po.PackageID,
		Day:       po.Day,
		Hour:      po.Hour,
		Size:      po.Size,
		Checksum:  po.Checksum,
		AppliedAt: po.AppliedAt,
	}
}
