package orders

import "strings"

const paymentRefPrefix = "BK-"

// PaymentReference is the code the customer writes in the bank transfer
// description. It only depends on the order id.
func PaymentReference(orderID string) string {
	s := strings.ToUpper(strings.ReplaceAll(orderID, "-", ""))
	if len(s) > 8 {
		s = s[:8]
	}
	return paymentRefPrefix + s
}
