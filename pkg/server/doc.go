// Package server runs the Steward HTTP API: router assembly and server
// lifecycle.
//
//	router := server.NewRouter(server.Routes{
//	    API:     handlers.New(svc),
//	    Health:  checker,
//	    Metrics: collector,
//	})
//	srv := server.New(&cfg.Server, router)
//	err := srv.Start(ctx) // returns after ctx is canceled and requests drain
//
// Signal handling belongs to the caller; cancel ctx on SIGINT or SIGTERM.
package server
