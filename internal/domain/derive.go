package domain

type quantifier int

const (
	anyItem quantifier = iota + 1
	allItems
)

type derivationRule struct {
	status Status
	when   quantifier
}

// derivationRules is evaluated top to bottom; the first match decides the
// order status. Every Status appears exactly once.
var derivationRules = [...]derivationRule{
	{StatusDelivered, anyItem},
	{StatusShipped, allItems},
	{StatusOutForDelivery, anyItem},
	{StatusInTransit, anyItem},
	{StatusShipping, anyItem},
	{StatusProcessing, anyItem},
	{StatusRejected, anyItem},
	{StatusFailed, anyItem},
	{StatusReturned, anyItem},
	{StatusCancelled, anyItem},
	{StatusPending, allItems},
}

// Adding a Status without a rule (or the reverse) fails to compile here.
var _ [len(allStatuses)]struct{} = [len(derivationRules)]struct{}{}

// DeriveOrderStatus computes the order status from its item statuses. The
// second result is false when there are no items or when no rule matches, in
// which case the caller keeps the current order status.
func DeriveOrderStatus(items []Status) (Status, bool) {
	if len(items) == 0 {
		return "", false
	}

	counts := make(map[Status]int, len(items))
	for _, s := range items {
		counts[s]++
	}

	for _, r := range derivationRules {
		n := counts[r.status]
		switch r.when {
		case anyItem:
			if n > 0 {
				return r.status, true
			}
		case allItems:
			if n == len(items) {
				return r.status, true
			}
		}
	}
	return "", false
}
