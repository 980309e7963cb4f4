package risk

// CashAccount tracks simulated cash. Long entries pay the full notional, short
// entries are credited the sale proceeds, and exits reverse the flow at the exit price.
type CashAccount struct {
	cash float64
}

// NewCashAccount creates an account holding initialBalance in cash
func NewCashAccount(initialBalance float64) *CashAccount {
	return &CashAccount{cash: initialBalance}
}

// Cash returns the current cash balance
func (a *CashAccount) Cash() float64 {
	return a.cash
}

// CanAfford checks whether an entry of signed qty at price can be funded.
// Shorts are always fundable since they raise cash.
func (a *CashAccount) CanAfford(qty int, price float64) bool {
	if qty < 0 {
		return true
	}
	return float64(qty)*price <= a.cash
}

// Open books an entry of signed qty at price.
func (a *CashAccount) Open(qty int, price float64) {
	a.cash -= float64(qty) * price
}

// Close books the exit of signed qty at price.
func (a *CashAccount) Close(qty int, price float64) {
	a.cash += float64(qty) * price
}
