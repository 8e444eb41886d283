// Package retention enforces TTL retention policies on non-primary data.
//
// # Policies
//
// A Registry holds one governance.RetentionPolicy per data category.
// Primary business data (engagements, assessments, documents, findings) is
// never swept: those categories are always disabled and may only be removed
// by an explicit purge. Policies can be overridden from a YAML file, which
// is reloaded when it changes:
//
//	policies:
//	  - category: operational_logs
//	    ttl_days: 30
//	    enabled: true
//	  - category: temp_data
//	    ttl: 12h
//	    enabled: true
//
// # Sweeping
//
// A Sweeper deletes records whose age is at least the category TTL, in
// batches, and records one ttl_sweep_completed audit event per category
// that deleted anything:
//
//	sweeper := retention.NewSweeper(registry, trail)
//	sweeper.Register(governance.CategoryOperationalLogs, store.OperationalLogs())
//	report, err := sweeper.Sweep(ctx)
//
// A Scheduler runs the sweeper on a cron schedule (default "@every 1h").
package retention
