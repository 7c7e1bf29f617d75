package persistence

import (
	"go.uber.org/zap"

	"deriv-trading-bot-go/internal/models"
)

// TradeJournal decouples trade recording from storage I/O.
// Settlement callbacks hand records to a buffered channel and a single
// goroutine writes them to the repository, so the session's inbound
// message loop never blocks on disk.
type TradeJournal struct {
	repo     TradeRepository
	recordCh chan models.TradeRecord
	stopChan chan bool
	done     chan struct{}
	logger   *zap.Logger
}

// NewTradeJournal creates a journal writing through the given repository.
func NewTradeJournal(repo TradeRepository, logger *zap.Logger) *TradeJournal {
	return &TradeJournal{
		repo:     repo,
		recordCh: make(chan models.TradeRecord, 128), // Buffered channel for records to be persisted
		stopChan: make(chan bool),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Start begins the journal's persistence loop.
func (j *TradeJournal) Start() {
	go j.persistenceLoop()
	j.logger.Sugar().Info("TradeJournal started.")
}

// Stop gracefully shuts down the journal after draining queued records.
func (j *TradeJournal) Stop() {
	close(j.stopChan)
	<-j.done
	j.logger.Sugar().Info("TradeJournal stopped.")
}

// Record queues a trade record for asynchronous persistence.
// Drops the record with a warning if the queue is full.
func (j *TradeJournal) Record(rec models.TradeRecord) {
	select {
	case j.recordCh <- rec:
	default:
		j.logger.Warn("trade journal queue full, record dropped", zap.Int64("contract_id", rec.ID))
	}
}

// persistenceLoop handles the asynchronous saving of trade records.
func (j *TradeJournal) persistenceLoop() {
	defer close(j.done)
	for {
		select {
		case rec := <-j.recordCh:
			j.save(&rec)
		case <-j.stopChan:
			// Drain whatever is still queued before shutting down.
			for {
				select {
				case rec := <-j.recordCh:
					j.save(&rec)
				default:
					return
				}
			}
		}
	}
}

func (j *TradeJournal) save(rec *models.TradeRecord) {
	if err := j.repo.SaveTrade(rec); err != nil {
		j.logger.Error("failed to persist trade record",
			zap.Int64("contract_id", rec.ID),
			zap.Error(err))
	}
}
