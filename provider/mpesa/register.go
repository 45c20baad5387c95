package mpesa

import "github.com/mstgnz/dukapi/provider"

// Register M-Pesa with the gateway registry
func init() {
	provider.Register("mpesa", NewProvider)
}
