package main

import (
	"fmt"
	"os"
	"sensor-replay/pkg/config"
	"sensor-replay/pkg/replay"

	"github.com/nats-io/nats.go"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Printf("Usage: %s <request.json>\n", os.Args[0])
		return
	}
	conf, err := config.GetConfig("config.toml")
	if err != nil {
		fmt.Printf("Failed reading config with err %v\n", err)
		return
	}

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Printf("%v\n", err)
		return
	}
	// reject a broken document here instead of in the daemon log
	if _, err := replay.ParseRequest(raw); err != nil {
		fmt.Printf("%v\n", err)
		return
	}

	nc, err := nats.Connect(conf.NatsURL)
	if err != nil {
		fmt.Printf("Failed connecting to NATS at '%s': %v\n", conf.NatsURL, err)
		return
	}
	defer nc.Close()

	if err := nc.Publish(conf.RequestSubject, raw); err != nil {
		fmt.Printf("%v\n", err)
		return
	}
	if err := nc.Flush(); err != nil {
		fmt.Printf("%v\n", err)
		return
	}
	fmt.Printf("Replay request published on '%s'\n", conf.RequestSubject)
}
