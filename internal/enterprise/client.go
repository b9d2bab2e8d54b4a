package enterprise

import (
	"crypto/sha256"
	"encoding/hex"
)

// Tier is the commercial plan of a client.
type Tier string

const (
	TierBasic      Tier = "BASIC"
	TierPremium    Tier = "PREMIUM"
	TierEnterprise Tier = "ENTERPRISE"
	TierInternal   Tier = "INTERNAL"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierBasic, TierPremium, TierEnterprise, TierInternal:
		return true
	}
	return false
}

// Capabilities checked by the gateway.
const (
	CapabilityWrite         = "iot.write"
	CapabilityRead          = "iot.read"
	CapabilityBatch         = "batch.execute"
	CapabilityFeesDelegated = "fees.delegated"
	CapabilityAll           = "*"
)

// Unlimited marks a quota that can never be exhausted.
const Unlimited int64 = -1

// Client is an enterprise caller and its usage for the current period.
type Client struct {
	ID           string   `json:"-"`
	Name         string   `json:"name"`
	Tier         Tier     `json:"tier"`
	Permissions  []string `json:"permissions"`
	MonthlyQuota int64    `json:"monthlyQuota"`
	UsedQuota    int64    `json:"usedQuota"`
}

// HasPermission reports whether the client holds capability or the wildcard.
func (c Client) HasPermission(capability string) bool {
	for _, p := range c.Permissions {
		if p == capability || p == CapabilityAll {
			return true
		}
	}
	return false
}

// IsUnlimited reports whether the quota is unbounded.
func (c Client) IsUnlimited() bool {
	return c.MonthlyQuota < 0
}

// Remaining returns the operations left this period, or nil when unlimited.
func (c Client) Remaining() *int64 {
	if c.IsUnlimited() {
		return nil
	}
	left := c.MonthlyQuota - c.UsedQuota
	if left < 0 {
		left = 0
	}
	return &left
}

// HashAPIKey hashes a raw API key for storage and lookup.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
