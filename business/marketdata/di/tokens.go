// Package di contains dependency injection tokens for the marketdata
// bounded context.
package di

// DI tokens for the marketdata module.
const (
	ParserRegistry = "marketdata.ParserRegistry"
	FanoutBus      = "marketdata.FanoutBus"
	SymbolSet      = "marketdata.SymbolSet"
)
