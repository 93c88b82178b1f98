package bootstrap

import "context"

// Bootstrapper (re)creates a GLPI deployment from a pinned upstream release.
// It tears down whatever ran before, unpacks the release, starts the
// containers, provisions the database and drives GLPI's own console commands
// until the application is migrated and out of maintenance mode.
type Bootstrapper interface {
	// Run executes the full bootstrap sequence once.
	//
	// The sequence is strictly ordered:
	// 1. Tear down the previous deployment and reset the working directories
	// 2. Fetch and unpack the release archive
	// 3. Start the container group
	// 4. Wait until the database accepts connections
	// 5. Create the database and load the seed dump
	// 6. Run GLPI's requirement check, install/configure, update and
	//    maintenance commands inside the web container
	//
	// The returned Run is always populated, including when an error is
	// returned, so callers can report which step failed.
	Run(ctx context.Context) (Run, error)
}
