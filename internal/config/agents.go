package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// StructuredLabel marks agents that use the Notion structuring prompt.
const StructuredLabel = "AutoScan"

// Agent is a named model preset under a provider. An agent with an
// AssistantID runs through the OpenAI Assistants API.
type Agent struct {
	Key         string `yaml:"key,omitempty"`
	AgentKey    string `yaml:"agentKey,omitempty"`
	ID          string `yaml:"id,omitempty"`
	Label       string `yaml:"label,omitempty"`
	Model       string `yaml:"model,omitempty"`
	APIKey      string `yaml:"apiKey,omitempty"`
	AssistantID string `yaml:"assistantId,omitempty"`
}

// Matches reports whether key names this agent by agent key, assistant id,
// key or id.
func (a Agent) Matches(key string) bool {
	if key == "" {
		return false
	}
	for _, v := range []string{a.AgentKey, a.AssistantID, a.Key, a.ID} {
		if v == key {
			return true
		}
	}
	return false
}

// Structured reports whether the agent's label asks for structured output.
func (a Agent) Structured() bool {
	return strings.Contains(a.Label, StructuredLabel)
}

// AgentList is the agents block. The file may hold a list or a map keyed
// by agent key; map keys fill Key when the entry has none.
type AgentList []Agent

// UnmarshalYAML accepts both sequence and mapping forms.
func (l *AgentList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var agents []Agent
		if err := value.Decode(&agents); err != nil {
			return err
		}
		*l = agents
		return nil
	case yaml.MappingNode:
		var byKey map[string]Agent
		if err := value.Decode(&byKey); err != nil {
			return err
		}
		keys := make([]string, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		agents := make([]Agent, 0, len(keys))
		for _, k := range keys {
			a := byKey[k]
			if a.Key == "" {
				a.Key = k
			}
			agents = append(agents, a)
		}
		*l = agents
		return nil
	}
	return fmt.Errorf("agents: expected list or map, got %v", value.Tag)
}

// Find returns the agent matching key.
func (l AgentList) Find(key string) (Agent, bool) {
	for _, a := range l {
		if a.Matches(key) {
			return a, true
		}
	}
	return Agent{}, false
}

func (l AgentList) hasKey() bool {
	for _, a := range l {
		if !placeholder(a.APIKey) {
			return true
		}
	}
	return false
}

// ResolveAPIKey resolves the key for a call: the agent's own key wins over the
// provider key. Placeholders resolve to "".
func (p ProviderConfig) ResolveAPIKey(agentKey string) string {
	if a, ok := p.Agents.Find(agentKey); ok && !placeholder(a.APIKey) {
		return a.APIKey
	}
	if placeholder(p.APIKey) {
		return ""
	}
	return p.APIKey
}
