package main

import (
	"context"
	"fmt"
	"log"

	"github.com/pulsedev/pulse/internal/infra/persistence/instancerepo"
	"github.com/pulsedev/pulse/internal/orm"
	"github.com/pulsedev/pulse/pkg/config"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatal(err)
	}

	storage, err := orm.New(orm.Config{
		Host:                  cfg.Database.Host,
		Port:                  cfg.Database.Port,
		Database:              cfg.Database.Database,
		User:                  cfg.Database.User,
		Password:              cfg.Database.Password,
		MaxConnections:        cfg.Database.MaxConnections,
		MaxIdleConnections:    cfg.Database.MaxIdleConnections,
		ConnectionMaxLifetime: cfg.Database.ConnectionMaxLifetime,
	})
	if err != nil {
		log.Fatal(err)
	}

	repo := instancerepo.NewMysqlRepositoryImpl(storage.DB())
	instances, err := repo.List(context.Background())
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("查询到 %d 个代理实例:\n", len(instances))
	for _, inst := range instances {
		fmt.Printf("InstanceID: %s, Host: %s, Port: %d, IsLeader: %t\n",
			inst.InstanceID, inst.Host, inst.Port, inst.Leader)
	}
}
