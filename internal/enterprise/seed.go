package enterprise

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultClients returns the demo client registry.
func DefaultClients() []Client {
	return []Client{
		{
			ID:           "ENT_WALMART_2026",
			Name:         "Walmart Supply Chain",
			Tier:         TierEnterprise,
			Permissions:  []string{CapabilityWrite, CapabilityBatch, CapabilityFeesDelegated},
			MonthlyQuota: 1_000_000,
			UsedQuota:    45_230,
		},
		{
			ID:           "ENT_CARREFOUR_2026",
			Name:         "Carrefour Logistics",
			Tier:         TierPremium,
			Permissions:  []string{CapabilityWrite, CapabilityBatch},
			MonthlyQuota: 500_000,
			UsedQuota:    12_400,
		},
		{
			ID:           "DEV_INDIE_123",
			Name:         "Indie Developer",
			Tier:         TierBasic,
			Permissions:  []string{CapabilityRead},
			MonthlyQuota: 10_000,
			UsedQuota:    245,
		},
	}
}

type seedClient struct {
	APIKey       string   `mapstructure:"api_key"`
	Name         string   `mapstructure:"name"`
	Tier         string   `mapstructure:"tier"`
	Permissions  []string `mapstructure:"permissions"`
	MonthlyQuota int64    `mapstructure:"monthly_quota"`
	UsedQuota    int64    `mapstructure:"used_quota"`
}

// LoadClients reads a client seed from a YAML or JSON file with a top-level
// "clients" list. An empty path yields DefaultClients.
func LoadClients(path string) ([]Client, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultClients(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("[ENTERPRISE] failed to read client seed %s: %w", path, err)
	}

	var raw []seedClient
	if err := v.UnmarshalKey("clients", &raw); err != nil {
		return nil, fmt.Errorf("[ENTERPRISE] failed to decode client seed: %w", err)
	}

	clients := make([]Client, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, sc := range raw {
		c, err := sc.toClient()
		if err != nil {
			return nil, fmt.Errorf("[ENTERPRISE] client %d: %w", i, err)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("[ENTERPRISE] client %d: duplicate api key", i)
		}
		seen[c.ID] = struct{}{}
		clients = append(clients, c)
	}
	return clients, nil
}

func (sc seedClient) toClient() (Client, error) {
	tier := Tier(strings.ToUpper(strings.TrimSpace(sc.Tier)))
	switch {
	case strings.TrimSpace(sc.APIKey) == "":
		return Client{}, fmt.Errorf("api_key is required")
	case sc.Name == "":
		return Client{}, fmt.Errorf("name is required")
	case !tier.Valid():
		return Client{}, fmt.Errorf("unknown tier %q", sc.Tier)
	case sc.MonthlyQuota < 0 && tier != TierInternal:
		return Client{}, fmt.Errorf("only INTERNAL clients may be unlimited")
	case sc.UsedQuota < 0:
		return Client{}, fmt.Errorf("used_quota cannot be negative")
	}
	return Client{
		ID:           sc.APIKey,
		Name:         sc.Name,
		Tier:         tier,
		Permissions:  sc.Permissions,
		MonthlyQuota: sc.MonthlyQuota,
		UsedQuota:    sc.UsedQuota,
	}, nil
}
