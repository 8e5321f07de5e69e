package cleanup

import (
	"fmt"
	"time"
)

// TableJoinedGroups is the cache of VRChat group memberships per Discord user.
const TableJoinedGroups = "joined_groups"

// RetentionPolicy defines how long rows of a table are kept.
type RetentionPolicy struct {
	TableName       string        `json:"table_name"`
	RetentionPeriod time.Duration `json:"retention_period"`
	Enabled         bool          `json:"enabled"`
}

// Validate validates the retention policy configuration.
func (p *RetentionPolicy) Validate() error {
	if p.TableName == "" {
		return fmt.Errorf("table_name is required")
	}
	if p.RetentionPeriod <= 0 {
		return fmt.Errorf("retention_period must be positive")
	}
	return nil
}

// DefaultPolicies returns the policies the bot runs with. Credential records
// and managed groups are never aged out; only the joined groups cache is.
func DefaultPolicies(joinedRetention time.Duration) []RetentionPolicy {
	if joinedRetention <= 0 {
		joinedRetention = 7 * 24 * time.Hour
	}
	return []RetentionPolicy{
		{TableName: TableJoinedGroups, RetentionPeriod: joinedRetention, Enabled: true},
	}
}

// PolicyProvider interface for getting retention policies.
type PolicyProvider interface {
	GetPolicy(tableName string) *RetentionPolicy
	GetAllPolicies() []RetentionPolicy
}

// InMemoryPolicyProvider provides retention policies from memory.
type InMemoryPolicyProvider struct {
	order    []string
	policies map[string]RetentionPolicy
}

// NewInMemoryPolicyProvider creates a new policy provider with the given policies.
func NewInMemoryPolicyProvider(policies []RetentionPolicy) *InMemoryPolicyProvider {
	p := &InMemoryPolicyProvider{policies: make(map[string]RetentionPolicy)}
	for _, policy := range policies {
		if _, dup := p.policies[policy.TableName]; !dup {
			p.order = append(p.order, policy.TableName)
		}
		p.policies[policy.TableName] = policy
	}
	return p
}

// GetPolicy returns the retention policy for the given table.
func (p *InMemoryPolicyProvider) GetPolicy(tableName string) *RetentionPolicy {
	if policy, ok := p.policies[tableName]; ok {
		return &policy
	}
	return nil
}

// GetAllPolicies returns the policies in registration order.
func (p *InMemoryPolicyProvider) GetAllPolicies() []RetentionPolicy {
	policies := make([]RetentionPolicy, 0, len(p.order))
	for _, name := range p.order {
		policies = append(policies, p.policies[name])
	}
	return policies
}
