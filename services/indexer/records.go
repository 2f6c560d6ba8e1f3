package indexer

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"

	"github.com/givety/givety-indexer/schemas"
)

// EventFromRecord converts a recorded event into an Event.
func EventFromRecord(rec schemas.EventRecord) (Event, error) {
	payload, err := buildPayload(rec.Contract, rec.Event, eventArgs(rec.Args))
	if err != nil {
		return Event{}, fmt.Errorf("%s.%s at %s-%d: %w", rec.Contract, rec.Event, rec.TxHash, rec.LogIndex, err)
	}
	ev := Event{
		Position: Position{
			BlockNumber: rec.BlockNumber,
			Timestamp:   rec.Timestamp,
			TxHash:      common.HexToHash(rec.TxHash),
			TxIndex:     rec.TxIndex,
			LogIndex:    rec.LogIndex,
		},
		Contract: rec.Contract,
		Payload:  payload,
	}
	if rec.BlockHash != "" {
		ev.BlockHash = common.HexToHash(rec.BlockHash)
	}
	if rec.From != "" {
		ev.From = common.HexToAddress(rec.From)
	}
	return ev, nil
}

// RecordFromEvent is the inverse of EventFromRecord for export.
func RecordFromEvent(ev Event) (schemas.EventRecord, error) {
	args, err := payloadArgs(ev.Contract, ev.Payload)
	if err != nil {
		return schemas.EventRecord{}, err
	}
	rec := schemas.EventRecord{
		BlockNumber: ev.BlockNumber,
		Timestamp:   ev.Timestamp,
		TxHash:      txID(ev),
		TxIndex:     ev.TxIndex,
		LogIndex:    ev.LogIndex,
		Contract:    ev.Contract,
		Event:       ev.Name(),
		Args:        args,
	}
	if (ev.BlockHash != common.Hash{}) {
		rec.BlockHash = ev.BlockHash.Hex()
	}
	if (ev.From != common.Address{}) {
		rec.From = addressID(ev.From)
	}
	return rec, nil
}

// ReadEvents parses a recorded events stream into Events.
func ReadEvents(r io.Reader) ([]Event, error) {
	records, err := schemas.ParseEventRecords(r)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(records))
	for _, rec := range records {
		ev, err := EventFromRecord(rec)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
