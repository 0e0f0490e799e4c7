// Package di contains dependency injection tokens for the rest bounded
// context.
package di

// DI tokens for the rest module.
const (
	Client  = "rest.Client"
	Fetcher = "rest.Fetcher"
)
