/*
Package auth authenticates API callers by key.

Each configured key names the actor recorded in audit events and whether
the caller may use administrative overrides such as skipping a purge grace
period:

	validator := auth.NewAPIKeyValidator([]*auth.APIKeyInfo{
		{Key: opsKey, Actor: "ops@example.com", Admin: true, Enabled: true},
	})
	mw := auth.NewAPIKeyMiddleware(validator, auth.DefaultSources())
	router.Use(mw.Handle)

Handlers read the authenticated key with GetAPIKeyInfo. Key values are
normally supplied as ${secret:name} references in the configuration.
*/
package auth
