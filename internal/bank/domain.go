// Package bank holds the registry of receiving bank accounts shown on QR
// payment requests.
package bank

// Account is one receiving account of the property.
type Account struct {
	ID            int64
	BankCode      string
	AccountNumber string
	HolderName    string
	Default       bool
}
