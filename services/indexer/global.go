package indexer

import (
	"github.com/ethereum/go-ethereum/common"
)

// change is the common header of every sequenced change entity.
type change struct {
	seq uint64
	id  string
	tx  string
}

// beginChange allocates the sequence number of a new change in the current
// transaction and counts it on Global. The sender is registered as a User.
func (u *unitOfWork) beginChange() (change, error) {
	tx, err := u.transaction()
	if err != nil {
		return change{}, err
	}
	if _, err := u.sender(); err != nil {
		return change{}, err
	}
	seq, err := u.nextSequence()
	if err != nil {
		return change{}, err
	}
	g, err := u.global()
	if err != nil {
		return change{}, err
	}
	g.ChangeCount++
	return change{seq: seq, id: sequenceID(seq), tx: tx.ID}, nil
}

// sender registers the transaction sender as a User and returns its id.
// Events without a sender, such as records replayed without "from", yield "".
func (u *unitOfWork) sender() (string, error) {
	if (u.event.From == common.Address{}) {
		return "", nil
	}
	usr, err := u.user(u.event.From)
	if err != nil {
		return "", err
	}
	return usr.ID, nil
}

func (u *unitOfWork) updatePrice(e PriceUpdatedEvent) error {
	g, err := u.global()
	if err != nil {
		return err
	}
	g.Price = decimalize(e.Price)
	g.PriceUpdatedAtBlock = u.event.BlockNumber
	u.save(KindGlobal, g.ID, g)
	return nil
}
