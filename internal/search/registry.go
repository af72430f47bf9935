package search

import (
	"sort"
	"strings"

	"dossier/internal/intent"
	"dossier/internal/logger"
)

// Spec describes one provider the registry can offer to the dispatcher.
type Spec struct {
	Tag       string
	Kind      Kind
	Intents   []intent.Intent // verticals: intents that select this provider
	Triggers  []string        // topic substrings that also select it
	Budget    int             // per-run call budget
	NeedsKey  bool
	TripOn429 bool
}

// RegistryOptions carries the configuration slice the registry needs.
type RegistryOptions struct {
	Enabled          []string // explicit enable list; empty means defaults
	EnableFreeAPIs   bool     // admit the keyless verticals
	SerpAPIKey       string
	SerpAPIBudget    int
	SerpAPITripOn429 bool
}

// Registry enumerates available providers, constructs them, and applies
// the vertical-selection rule. Construction is silent about missing keys:
// a keyed provider without credentials simply never appears.
type Registry struct {
	specs     map[string]Spec
	providers map[string]Provider
	health    *Health
}

// NewRegistry builds the provider set for this process and registers every
// admitted provider with the health tracker.
func NewRegistry(opts RegistryOptions, health *Health) *Registry {
	serpBudget := opts.SerpAPIBudget
	if serpBudget <= 0 {
		serpBudget = 6
	}

	catalog := []Spec{
		{Tag: TagSerpAPI, Kind: KindGeneral, Budget: serpBudget, NeedsKey: true, TripOn429: opts.SerpAPITripOn429},
		{Tag: TagDuckDuckGo, Kind: KindGeneral, Budget: 8, TripOn429: true},
		{
			Tag: TagWikipedia, Kind: KindVertical, Budget: 6, TripOn429: true,
			Intents:  []intent.Intent{intent.Encyclopedia},
			Triggers: []string{"history of", "who is", "what is", "timeline of", "biography"},
		},
		{
			Tag: TagOpenAlex, Kind: KindVertical, Budget: 6, TripOn429: true,
			Intents:  []intent.Intent{intent.Academic, intent.Medical},
			Triggers: []string{"study", "studies", "research", "peer-reviewed", "paper", "meta-analysis"},
		},
		{
			Tag: TagWorldBank, Kind: KindVertical, Budget: 6, TripOn429: true,
			Intents:  []intent.Intent{intent.Stats},
			Triggers: []string{"statistics", "gdp", "population", "indicator", "poverty", "unemployment"},
		},
		{
			Tag: TagGDELT, Kind: KindVertical, Budget: 6, TripOn429: true,
			Intents:  []intent.Intent{intent.News},
			Triggers: []string{"news", "breaking", "latest developments"},
		},
		{Tag: TagMock, Kind: KindGeneral, Budget: 10, TripOn429: true},
	}

	enabled := enabledSet(opts)

	r := &Registry{
		specs:     make(map[string]Spec),
		providers: make(map[string]Provider),
		health:    health,
	}

	for _, spec := range catalog {
		if !enabled[spec.Tag] {
			continue
		}
		provider := construct(spec.Tag, opts)
		if provider == nil {
			// Keyed provider without credentials: contributes zero results.
			logger.Debug("Search provider disabled, no API key", "provider", spec.Tag)
			continue
		}
		r.specs[spec.Tag] = spec
		r.providers[spec.Tag] = provider
		if health != nil {
			health.Register(spec.Tag, spec.TripOn429)
		}
	}

	return r
}

func enabledSet(opts RegistryOptions) map[string]bool {
	enabled := make(map[string]bool)
	if len(opts.Enabled) > 0 {
		for _, tag := range opts.Enabled {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag == "" {
				continue
			}
			known := false
			for _, k := range KnownTags {
				if tag == k {
					known = true
					break
				}
			}
			if !known {
				logger.Warn("Unknown search provider in enable list", "provider", tag)
				continue
			}
			enabled[tag] = true
		}
		return enabled
	}

	// Default set: both general engines plus the verticals when free APIs
	// are allowed. The mock provider must be asked for by name.
	enabled[TagSerpAPI] = true
	enabled[TagDuckDuckGo] = true
	if opts.EnableFreeAPIs {
		enabled[TagWikipedia] = true
		enabled[TagOpenAlex] = true
		enabled[TagWorldBank] = true
		enabled[TagGDELT] = true
	}
	return enabled
}

func construct(tag string, opts RegistryOptions) Provider {
	switch tag {
	case TagSerpAPI:
		if opts.SerpAPIKey == "" {
			return nil
		}
		return NewSerpAPIProvider(opts.SerpAPIKey)
	case TagDuckDuckGo:
		return NewDuckDuckGoProvider()
	case TagWikipedia:
		return NewWikipediaProvider()
	case TagOpenAlex:
		return NewOpenAlexProvider()
	case TagWorldBank:
		return NewWorldBankProvider()
	case TagGDELT:
		return NewGDELTProvider()
	case TagMock:
		return NewMockProvider()
	}
	return nil
}

// Replace swaps in a provider implementation for a tag, keeping the
// existing spec. Tests use this to point tags at fakes.
func (r *Registry) Replace(tag string, provider Provider) {
	if _, ok := r.specs[tag]; !ok {
		r.specs[tag] = Spec{Tag: tag, Kind: KindGeneral, Budget: 10, TripOn429: true}
		if r.health != nil {
			r.health.Register(tag, true)
		}
	}
	r.providers[tag] = provider
}

// Provider returns the constructed provider for a tag.
func (r *Registry) Provider(tag string) (Provider, bool) {
	p, ok := r.providers[tag]
	return p, ok
}

// Specs lists the admitted providers sorted by tag.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.specs))
	for _, spec := range r.specs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// Budgets returns the per-run call budget for every admitted provider.
func (r *Registry) Budgets() map[string]int {
	out := make(map[string]int, len(r.specs))
	for tag, spec := range r.specs {
		out[tag] = spec.Budget
	}
	return out
}

// Select returns the providers to attempt for one planned query. General
// providers always qualify. A vertical qualifies only when it matches the
// classified intent or a topic trigger, and never for queries carrying a
// site: operator.
func (r *Registry) Select(topicIntent intent.Intent, topic, query string) []Spec {
	loweredTopic := strings.ToLower(topic)
	hasSiteOperator := strings.Contains(strings.ToLower(query), "site:")

	var out []Spec
	for _, spec := range r.Specs() {
		if spec.Kind == KindGeneral {
			out = append(out, spec)
			continue
		}
		if hasSiteOperator {
			continue
		}
		if matchesIntent(spec, topicIntent) || matchesTrigger(spec, loweredTopic) {
			out = append(out, spec)
		}
	}
	return out
}

func matchesIntent(spec Spec, topicIntent intent.Intent) bool {
	for _, it := range spec.Intents {
		if it == topicIntent {
			return true
		}
	}
	return false
}

func matchesTrigger(spec Spec, loweredTopic string) bool {
	for _, trigger := range spec.Triggers {
		if strings.Contains(loweredTopic, trigger) {
			return true
		}
	}
	return false
}
