// Package di contains dependency injection tokens for the supervisor
// bounded context.
package di

// DI tokens for the supervisor module.
const (
	Supervisor     = "supervisor.Supervisor"
	RestartChecker = "supervisor.RestartChecker"
)
