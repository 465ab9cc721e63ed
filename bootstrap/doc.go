// Package bootstrap runs a service through its lifecycle: start components,
// configure the business layer, report readiness, wait for a signal and shut
// down within a deadline.
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.RegisterComponent(redisComponent)
//	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*Config]) error {
//	    return wireHandlers(a)
//	})
//	err = app.Run(ctx)
package bootstrap
