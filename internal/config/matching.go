package config

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// MatchingPolicy holds the candidate scoring weights and acceptance
// threshold. The defaults were inferred from observed behavior of the
// previous system, not a documented policy, so everything here is
// deliberately tunable without a redeploy.
type MatchingPolicy struct {
	AcceptThreshold     int     `mapstructure:"acceptThreshold"`
	PhoneWeight         int     `mapstructure:"phoneWeight"`
	EmailWeight         int     `mapstructure:"emailWeight"`
	NameWeightCap       int     `mapstructure:"nameWeightCap"`
	NameSimilarityFloor float64 `mapstructure:"nameSimilarityFloor"`
}

func DefaultMatchingPolicy() MatchingPolicy {
	return MatchingPolicy{
		AcceptThreshold:     50,
		PhoneWeight:         100,
		EmailWeight:         90,
		NameWeightCap:       70,
		NameSimilarityFloor: 0.5,
	}
}

func (p MatchingPolicy) withDefaults() MatchingPolicy {
	defaults := DefaultMatchingPolicy()
	if p.AcceptThreshold <= 0 {
		p.AcceptThreshold = defaults.AcceptThreshold
	}
	if p.PhoneWeight <= 0 {
		p.PhoneWeight = defaults.PhoneWeight
	}
	if p.EmailWeight <= 0 {
		p.EmailWeight = defaults.EmailWeight
	}
	if p.NameWeightCap <= 0 {
		p.NameWeightCap = defaults.NameWeightCap
	}
	if p.NameSimilarityFloor <= 0 {
		p.NameSimilarityFloor = defaults.NameSimilarityFloor
	}
	return p
}

// MatchingPolicyHolder serves the current policy to the matcher and swaps it
// atomically when the config file changes on disk.
type MatchingPolicyHolder struct {
	current atomic.Value // holds MatchingPolicy
}

func NewMatchingPolicyHolder() (*MatchingPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("matching")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/crmlink/config") // Volume-mounted config
	v.AddConfigPath("/etc/crmlink")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	v.SetEnvPrefix("CRMLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultMatchingPolicy()
		v.SetDefault("matching.acceptThreshold", defaults.AcceptThreshold)
		v.SetDefault("matching.phoneWeight", defaults.PhoneWeight)
		v.SetDefault("matching.emailWeight", defaults.EmailWeight)
		v.SetDefault("matching.nameWeightCap", defaults.NameWeightCap)
		v.SetDefault("matching.nameSimilarityFloor", defaults.NameSimilarityFloor)
	}

	holder := &MatchingPolicyHolder{}
	if err := holder.reload(v); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if err := holder.reload(v); err != nil {
			log.Printf("matching config reload failed: %v", err)
		}
	})
	v.WatchConfig()

	return holder, nil
}

func (h *MatchingPolicyHolder) reload(v *viper.Viper) error {
	var policy MatchingPolicy
	if err := v.UnmarshalKey("matching", &policy); err != nil {
		return err
	}
	h.current.Store(policy.withDefaults())
	return nil
}

// Current returns the active policy. Safe for concurrent use.
func (h *MatchingPolicyHolder) Current() MatchingPolicy {
	if h == nil {
		return DefaultMatchingPolicy()
	}
	if policy, ok := h.current.Load().(MatchingPolicy); ok {
		return policy
	}
	return DefaultMatchingPolicy()
}

// StaticMatchingPolicyHolder pins a fixed policy; used by tests.
func StaticMatchingPolicyHolder(policy MatchingPolicy) *MatchingPolicyHolder {
	holder := &MatchingPolicyHolder{}
	holder.current.Store(policy.withDefaults())
	return holder
}
