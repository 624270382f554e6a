package main

import (
	"context"
	"sensor-replay/pkg/config"
	"sensor-replay/pkg/database"
	"sensor-replay/pkg/indexer"
	"sensor-replay/pkg/utils"

	"github.com/sirupsen/logrus"
)

func main() {
	utils.InitializeLogging("indexer.log")
	conf, err := config.GetConfig("config.toml")
	if err != nil {
		logrus.Errorf("Failed reading config with err %v", err)
		return
	}

	db, err := database.OpenDatabase(conf.DatabasePath)
	if err != nil {
		logrus.Errorf("%v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background()) // Create a cancelable context and pass it to all goroutines, allows us to gracefully shut down the program
	indexer.Indexer(ctx, db, conf)

	<-utils.CtrlC()
	cancel() // Gracefully shutdown and stop all goroutines
}
