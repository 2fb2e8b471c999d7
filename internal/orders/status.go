package orders

import "strings"

type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusConfirmed      Status = "CONFIRMED"
	StatusCancelled      Status = "CANCELLED"
)

// StateSet: status fulfillment tambahan (IN_PRODUCTION, DELIVERED, dst) dikelola
// dari config, bukan dari engine.
type StateSet struct {
	fulfillment map[Status]bool
	terminal    map[Status]bool
}

func NewStateSet(fulfillment, terminal []string) StateSet {
	s := StateSet{
		fulfillment: map[Status]bool{},
		terminal:    map[Status]bool{StatusCancelled: true},
	}
	for _, f := range fulfillment {
		if f = normalizeState(f); f != "" {
			s.fulfillment[Status(f)] = true
		}
	}
	for _, t := range terminal {
		if t = normalizeState(t); t != "" {
			s.terminal[Status(t)] = true
			s.fulfillment[Status(t)] = true
		}
	}
	return s
}

func normalizeState(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func (s StateSet) Known(st Status) bool {
	switch st {
	case StatusPendingPayment, StatusConfirmed, StatusCancelled:
		return true
	}
	return s.fulfillment[st]
}

func (s StateSet) Terminal(st Status) bool { return s.terminal[st] }

// CanCustomerTransition: customer hanya boleh PENDING_PAYMENT -> CONFIRMED | CANCELLED.
func CanCustomerTransition(from, to Status) bool {
	if from != StatusPendingPayment {
		return false
	}
	return to == StatusConfirmed || to == StatusCancelled
}

// CanAdminTransition: admin bebas pindah status selama order belum terminal.
// CONFIRMED hanya lewat ConfirmPayment (yang mengurangi stok), dan order yang
// stoknya sudah terpotong tidak boleh kembali ke PENDING_PAYMENT.
func (s StateSet) CanAdminTransition(o Order, to Status) bool {
	if !s.Known(to) || s.Terminal(o.Status) {
		return false
	}
	if to == StatusConfirmed && !o.StockApplied {
		return false
	}
	if to == StatusPendingPayment && o.StockApplied {
		return false
	}
	return true
}
