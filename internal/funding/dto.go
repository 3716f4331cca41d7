package funding

// DepositRequest captures user-provided data to fund a token account from a card.
type DepositRequest struct {
	CardNumber string `json:"card_number"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
	Amount     uint64 `json:"amount"`
	ClientTxID string `json:"client_tx_id"`
}

// DepositResponse represents the API response for a deposit.
type DepositResponse struct {
	TransactionID     string `json:"transaction_id"`
	Status            string `json:"status"`
	Account           string `json:"account"`
	Balance           uint64 `json:"balance"`
	AcquirerReference string `json:"acquirer_reference"`
}
