// Package config loads the race-dns-proxy TOML configuration file and turns it into the ordered
// list of provider descriptors consumed by internal/registry.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/racedns/race-dns-proxy/internal/domain"
)

const me = "config"

// Provider is one [providers.<key>] stanza from the configuration file, fully resolved: its
// domain_groups references expanded into a domain.RuleSet.
type Provider struct {
	Name     string // The <key> of the providers.<key> stanza - the display name
	Addr     string // "<ip>:<port>"
	Hostname string // TLS SNI / DoH Host
	RuleSet  domain.RuleSet
}

// fileConfig mirrors the on-disk TOML shape described in spec.md §6.
type fileConfig struct {
	Providers    map[string]fileProvider `toml:"providers"`
	DomainGroups map[string][]string     `toml:"domain_groups"`
}

type fileProvider struct {
	Addr         string   `toml:"addr"`
	Hostname     string   `toml:"hostname"`
	DomainGroups []string `toml:"domain_groups"`
}

// Load reads and parses the TOML file at path, returning the ordered list of providers. Providers
// are returned sorted by their configuration key: TOML's map-based [providers.<key>] syntax carries
// no inherent ordering once decoded, so we substitute a deterministic tie-break (alphabetical by
// key) for spec's "order of configuration" - see DESIGN.md.
func Load(path string) ([]Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: reading %s: %w", me, path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("%s: parsing %s: %w", me, path, err)
	}

	if len(fc.Providers) == 0 {
		return nil, fmt.Errorf("%s: %s defines no [providers.*] stanzas", me, path)
	}

	keys := make([]string, 0, len(fc.Providers))
	for k := range fc.Providers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	providers := make([]Provider, 0, len(keys))
	for _, key := range keys {
		fp := fc.Providers[key]
		if len(fp.Addr) == 0 {
			return nil, fmt.Errorf("%s: providers.%s is missing required 'addr'", me, key)
		}
		if len(fp.Hostname) == 0 {
			return nil, fmt.Errorf("%s: providers.%s is missing required 'hostname'", me, key)
		}

		ruleSet, err := resolveRuleSet(key, fp.DomainGroups, fc.DomainGroups)
		if err != nil {
			return nil, err
		}

		providers = append(providers, Provider{
			Name:     key,
			Addr:     fp.Addr,
			Hostname: fp.Hostname,
			RuleSet:  ruleSet,
		})
	}

	return providers, nil
}

// resolveRuleSet unions the domain groups referenced by a provider into a single RuleSet. Entries
// prefixed with "!" become excludes (prefix stripped); everything else becomes an include. If any
// referenced group is empty, or no groups are referenced, the rule set is cleared to universal -
// this is the observed (if debatable) behavior preserved from the original implementation; see
// spec.md §9 "Open questions" and DESIGN.md.
func resolveRuleSet(providerKey string, groupNames []string, groups map[string][]string) (domain.RuleSet, error) {
	if len(groupNames) == 0 {
		return domain.RuleSet{}, nil
	}

	var rs domain.RuleSet
	for _, name := range groupNames {
		entries, ok := groups[name]
		if !ok {
			return domain.RuleSet{}, fmt.Errorf("%s: providers.%s references unknown domain_groups %q", me, providerKey, name)
		}
		if len(entries) == 0 {
			return domain.RuleSet{}, nil // A referenced-but-empty group makes the whole provider universal
		}
		for _, e := range entries {
			if strings.HasPrefix(e, "!") {
				rs.Excludes = append(rs.Excludes, strings.TrimPrefix(e, "!"))
			} else {
				rs.Includes = append(rs.Includes, e)
			}
		}
	}

	return rs, nil
}
