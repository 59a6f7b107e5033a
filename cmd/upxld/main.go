package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/upxl/pkg/env"
	"github.com/robotalks/upxl/pkg/framework"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	e := env.MustNewConfig().MustNewEnv()
	runner := framework.NewRunner().HandleSignals()
	err := runner.Go(framework.NewLoop().Add(e)).Wait()
	e.Close()
	if err != nil {
		log.Fatalln(err)
	}
}
