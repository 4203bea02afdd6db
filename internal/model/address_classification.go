package model

// AddressClassification records whether an address hosted code when first checked.
// Address is always the EIP-55 checksummed form.
type AddressClassification struct {
	Address    string `json:"address"`
	IsContract bool   `json:"is_contract"`
}
