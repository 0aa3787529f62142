package domain

// Merchant is the upstream merchant record. Timezone is an IANA zone name when present.
type Merchant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone,omitempty"`
}
