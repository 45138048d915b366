package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"kvshard/config"
	"kvshard/partitioned"
	"kvshard/server"
	"kvshard/service"
)

func main() {
	confPath := flag.String("conf", "", "path to conf file (optional; defaults are used if omitted)")
	port := flag.Int("port", 0, "server port (overrides conf/default network.addr)")
	dataDir := flag.String("dir", "", "path to data directory (overrides conf/default partition.base_dir)")
	numPartitions := flag.Int("partitions", 0, "number of partitions (overrides conf/default partition.count)")

	flag.Parse()

	if *confPath != "" {
		if _, err := os.Stat(*confPath); os.IsNotExist(err) {
			log.Fatal("conf file not exist")
		}
		if err := config.Init(*confPath); err != nil {
			log.Fatal(err)
		}
	} else {
		config.InitDefault()
	}

	cfg := config.Get()

	dir := cfg.Partition.BaseDir
	if *dataDir != "" {
		dir = *dataDir
	}
	count := cfg.Partition.Count
	if *numPartitions > 0 {
		count = *numPartitions
	}

	store, err := partitioned.Open(partitioned.Options{
		Count:            count,
		BaseDir:          dir,
		BatchSize:        cfg.WAL.BatchSize,
		BatchTimeout:     cfg.WAL.BatchTimeout,
		SweepInterval:    cfg.Background.SweepInterval,
		SnapshotInterval: cfg.Background.SnapshotInterval,
	})
	if err != nil {
		log.Fatalf("open partitioned store: %v", err)
	}

	adapter := service.NewFromStore(store)

	netCfg := server.Config{
		Addr:           cfg.Network.Addr,
		IdleTimeout:    cfg.Network.IdleTimeout,
		MaxConnections: cfg.Network.MaxConns,
		ReadTimeout:    cfg.Network.ReadTimeout,
		WriteTimeout:   cfg.Network.WriteTimeout,
	}
	if *port > 0 {
		netCfg.Addr = fmt.Sprintf(":%d", *port)
	}

	srv, err := server.New(adapter, netCfg)
	if err != nil {
		log.Fatalf("create server: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("server start: %v", err)
		}
	}()

	<-sigCh
	log.Println("shutting down...")

	if err := srv.Stop(); err != nil {
		log.Printf("error stopping server: %v", err)
	}
	if err := adapter.Shutdown(); err != nil {
		log.Printf("error shutting down store: %v", err)
	}
}
