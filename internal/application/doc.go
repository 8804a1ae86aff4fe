// Package application bootstraps the promotions service. New runs the
// startup sequence in a fixed order: configuration, the API documentation
// layer, the collaborators (models, routes, error handlers, CLI commands),
// logging bound to the production facility, the startup banner and database
// initialization. A database failure is fatal and exits with status 4.
package application
