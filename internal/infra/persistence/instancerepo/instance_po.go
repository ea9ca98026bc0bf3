package instancerepo

import (
	"github.com/pulsedev/pulse/internal/infra/persistence/commonrepo"
)

type AgentInstance struct {
	commonrepo.Model
	InstanceID string `gorm:"column:instance_id;size:64;not null;uniqueIndex"`
	Host       string `gorm:"column:host;size:255"`
	Port       int    `gorm:"column:port"`
	IsLeader   bool   `gorm:"column:is_leader;default:false"`
}

func (AgentInstance) TableName() string {
	return "agent_instances"
}
