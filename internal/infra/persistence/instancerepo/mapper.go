package instancerepo

import (
	domain "github.com/pulsedev/pulse/internal/biz/instance"
)

func (po *AgentInstance) ToDomain() *domain.AgentInstance {
	return &domain.AgentInstance{
		ID:         po.ID,
		InstanceID: po.InstanceID,
		Host:       po.Host,
		Port:       po.Port,
		Leader:     po.IsLeader,
		CreatedAt:  po.CreatedAt,
		UpdatedAt:  po.UpdatedAt,
	}
}
