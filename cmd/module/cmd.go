package main

import (
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	genericservice "go.viam.com/rdk/services/generic"

	_ "github.com/erh/camtrack/engines/replay"
	_ "github.com/erh/camtrack/engines/sonar"
	"github.com/erh/camtrack/posetracker"
)

func main() {
	module.ModularMain(
		resource.APIModel{genericservice.API, posetracker.Model},
	)
}
