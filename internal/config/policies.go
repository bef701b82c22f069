package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/tbourn/growth-loop-backend/internal/domain"
)

// TriggerFVMComplete is the trigger evaluated when an invitee reaches their
// first valuable moment.
const TriggerFVMComplete = "on_fvm_complete"

// RewardPolicy maps a (persona, trigger) pair to the reward it pays out and
// what one unit of that reward costs, in integer cents.
type RewardPolicy struct {
	Persona       string `toml:"persona"         yaml:"persona"`
	Trigger       string `toml:"trigger"         yaml:"trigger"`
	RewardType    string `toml:"reward_type"     yaml:"reward_type"`
	Amount        int64  `toml:"amount"          yaml:"amount"`
	UnitCostCents int64  `toml:"unit_cost_cents" yaml:"unit_cost_cents"`
}

// policyFile is the on-disk shape of a catalog:
//
//	[[policy]]
//	persona = "student"
//	trigger = "on_fvm_complete"
//	reward_type = "ai_minutes"
//	amount = 15
//	unit_cost_cents = 2
type policyFile struct {
	Policies []RewardPolicy `toml:"policy" yaml:"policies"`
}

// DefaultPolicies is the built-in catalog used when REWARD_POLICY_FILE is unset.
func DefaultPolicies() []RewardPolicy {
	return []RewardPolicy{
		{Persona: "student", Trigger: TriggerFVMComplete, RewardType: "ai_minutes", Amount: 15, UnitCostCents: 2},
		{Persona: "parent", Trigger: TriggerFVMComplete, RewardType: "streak_shield", Amount: 1, UnitCostCents: 25},
		{Persona: "tutor", Trigger: TriggerFVMComplete, RewardType: "credits", Amount: 10, UnitCostCents: 10},
	}
}

// LoadPolicies reads a reward policy catalog. An empty path yields
// DefaultPolicies. The format is chosen by extension: .toml, .yaml or .yml.
func LoadPolicies(path string) ([]RewardPolicy, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPolicies(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reward policy file: %w", err)
	}

	var f policyFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(raw)).Decode(&f); err != nil {
			return nil, fmt.Errorf("decode toml policies: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode yaml policies: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported reward policy file extension %q", filepath.Ext(path))
	}

	if err := ValidatePolicies(f.Policies); err != nil {
		return nil, err
	}
	return f.Policies, nil
}

// ValidatePolicies rejects unknown personas or reward types, non-positive
// amounts, negative costs and duplicate (persona, trigger) pairs.
func ValidatePolicies(ps []RewardPolicy) error {
	if len(ps) == 0 {
		return fmt.Errorf("reward policy catalog is empty")
	}
	seen := make(map[string]struct{}, len(ps))
	for i, p := range ps {
		if _, err := domain.ParsePersona(p.Persona); err != nil {
			return fmt.Errorf("policy %d: %w: %q", i, err, p.Persona)
		}
		if _, err := domain.ParseRewardType(p.RewardType); err != nil {
			return fmt.Errorf("policy %d: %w: %q", i, err, p.RewardType)
		}
		if strings.TrimSpace(p.Trigger) == "" {
			return fmt.Errorf("policy %d: trigger must not be empty", i)
		}
		if p.Amount <= 0 {
			return fmt.Errorf("policy %d: amount must be > 0", i)
		}
		if p.UnitCostCents < 0 {
			return fmt.Errorf("policy %d: unit_cost_cents must be >= 0", i)
		}
		k := p.Persona + "|" + p.Trigger
		if _, dup := seen[k]; dup {
			return fmt.Errorf("policy %d: duplicate (persona, trigger) %s/%s", i, p.Persona, p.Trigger)
		}
		seen[k] = struct{}{}
	}
	return nil
}
