// Package cli implements gatekeeper-cli, the administrative command line
// for roles and user assignments.
//
// # Commands
//
// seed: Create or update roles and assignments from a YAML file
//
//	gatekeeper-cli seed -file roles.yaml
//	gatekeeper-cli seed -file roles.yaml -watch
//
// check: Report whether a user holds every listed permission
//
//	gatekeeper-cli check -user alice@example.com -permission products.create
//
// roles: List roles, optionally including soft-deleted ones
//
//	gatekeeper-cli roles -all
//
// delete-role: Soft-delete a role
//
//	gatekeeper-cli delete-role -name manager
//
// token: Generate an API token and its GATEKEEPER_AUTH_API_TOKENS entry
//
//	gatekeeper-cli token -user ci@example.com
//
// assign: Set or clear a user's role
//
//	gatekeeper-cli assign -user bob@example.com -role user
//
// Every command accepts -target to override
// GATEKEEPER_STORAGE_CONNECTION_TARGET. The remaining GATEKEEPER_STORAGE_*
// variables are read as for the server.
package cli
