// Command playurld serves signed playback URLs for stored tracks and runs the
// deletion lifecycle that purges their media.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kbukum/playurl/bootstrap"
	"github.com/kbukum/playurl/config"
	"github.com/kbukum/playurl/logger"
)

func main() {
	configFile := flag.String("config", "", "path to config.yml (default: search cmd/playurld, config/)")
	envFile := flag.String("env", "", "path to a .env file")
	flag.Parse()

	var opts []config.LoaderOption
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	if *envFile != "" {
		opts = append(opts, config.WithEnvFile(*envFile))
	}

	var cfg Config
	if err := config.Load(binaryName, &cfg, opts...); err != nil {
		fmt.Fprintf(os.Stderr, "playurld: load config: %v\n", err)
		os.Exit(1)
	}

	app, err := bootstrap.NewApp(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "playurld: %v\n", err)
		os.Exit(1)
	}

	w, err := newWiring(app)
	if err != nil {
		app.Logger.Error("Wiring failed", logger.Fields(logger.FieldError, err.Error()))
		os.Exit(1)
	}
	app.OnStart(w.initTelemetry)
	app.OnConfigure(w.configure)
	app.OnStop(w.shutdownTelemetry)

	if err := app.Run(context.Background()); err != nil {
		app.Logger.Error("playurld stopped with error", logger.Fields(logger.FieldError, err.Error()))
		os.Exit(1)
	}
}
