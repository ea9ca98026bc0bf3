package settingsrepo

import "github.com/pulsedev/pulse/internal/infra/persistence/commonrepo"

type Setting struct {
	commonrepo.Model
	Name  string `gorm:"column:name;size:128;not null;uniqueIndex"`
	Value string `gorm:"column:value;size:256;not null"`
}

func (Setting) TableName() string {
	return "agent_settings"
}
