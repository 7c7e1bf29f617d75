package persistence

import (
	"encoding/json"

	"github.com/dgraph-io/badger/v3"
	"github.com/jxskiss/base62"

	"deriv-trading-bot-go/internal/models"
)

var tradePrefix = []byte("trade:")

// badgerRepository is the BadgerDB implementation of the TradeRepository.
type badgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository creates and returns a new repository instance connected to a BadgerDB database.
func NewBadgerRepository(dbPath string) (TradeRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// For this use case, we can disable Badger's own logging to keep our app's logs clean.
	// Errors will still be returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerRepository{db: db}, nil
}

// tradeKey builds the storage key "trade:<base62 contract id>".
func tradeKey(id int64) []byte {
	return append(append([]byte(nil), tradePrefix...), base62.FormatInt(id)...)
}

// SaveTrade marshals the record into JSON and saves it under its contract key.
func (r *badgerRepository) SaveTrade(rec *models.TradeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tradeKey(rec.ID), data)
	})
}

// LoadTrades iterates the trade prefix and unmarshals every stored record.
func (r *badgerRepository) LoadTrades() ([]models.TradeRecord, error) {
	var trades []models.TradeRecord

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = tradePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(tradePrefix); it.ValidForPrefix(tradePrefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec models.TradeRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				trades = append(trades, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []models.TradeRecord{}
	}
	return trades, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
