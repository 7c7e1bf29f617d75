package persistence

import "deriv-trading-bot-go/internal/models"

// TradeRepository defines the interface for trade history persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, in-memory)
// from the rest of the application.
type TradeRepository interface {
	// SaveTrade stores a single trade record, overwriting any previous
	// version of the same contract.
	SaveTrade(rec *models.TradeRecord) error

	// LoadTrades loads all stored trade records.
	// If no trades are found, it returns an empty slice.
	LoadTrades() ([]models.TradeRecord, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
