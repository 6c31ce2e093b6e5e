package models

import "time"

// Merchant is deduplicated by (source, provider_merchant_id); created
// lazily during import and never duplicated for the same provider identity.
type Merchant struct {
	ID                 string `json:"id" badgerhold:"key"`
	Source             string `json:"source" badgerhold:"index"`
	ProviderMerchantID string `json:"provider_merchant_id"`
	Name               string `json:"name"`
	WebsiteURL         string `json:"website_url,omitempty"`
	LogoURL            string `json:"logo_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Security identifies a tradable instrument referenced by trades and holdings.
type Security struct {
	ID       string `json:"id" badgerhold:"key"`
	Symbol   string `json:"symbol" badgerhold:"index"`
	Exchange string `json:"exchange,omitempty"`
	Name     string `json:"name,omitempty"`
	Currency string `json:"currency,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
