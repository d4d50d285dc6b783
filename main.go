package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/zjuerme/MiniSQL/conf"
	"github.com/zjuerme/MiniSQL/engine"
	"github.com/zjuerme/MiniSQL/logger"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "configPath", "", "path to minisql.ini")
	flag.Parse()

	cfg := conf.NewCfg()
	cfg.Load(&conf.CommandLineArgs{ConfigPath: configPath})

	if err := logger.InitLogger(logger.LogConfig{
		ErrorLogPath: cfg.LogError,
		InfoLogPath:  cfg.LogInfos,
		LogLevel:     cfg.LogLevel,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	db, err := engine.Open(cfg)
	if err != nil {
		logger.Errorf("failed to open storage engine: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Errorf("failed to close storage engine: %v", err)
		}
	}()

	for _, table := range db.Catalog.GetTables() {
		logger.Infof("table %s (id %d), first heap page %d",
			table.GetTableName(), table.Meta.TableID, table.Meta.FirstHeapPage)
	}
}
