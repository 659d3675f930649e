package rules

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleDoc is the YAML shape of one rule. The condition is a tagged map whose
// "type" selects the concrete Condition; unknown or malformed conditions drop
// the rule with a warning instead of failing the whole document.
type ruleDoc struct {
	ID          string        `yaml:"id"`
	Kind        string        `yaml:"kind"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Action      string        `yaml:"action"`
	Mandatory   bool          `yaml:"mandatory"`
	Priority    int           `yaml:"priority"`
	Condition   conditionSpec `yaml:"condition"`
}

type conditionSpec struct {
	Type string `yaml:"type"`

	// price_range
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
	// time_window
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	// position_limit
	MaxFraction float64 `yaml:"max_fraction"`
	// stop_loss
	MaxLossFraction float64 `yaml:"max_loss_fraction"`
	// max_drawdown
	Threshold float64 `yaml:"threshold"`
	// stock_filter
	ExcludeFlags []string `yaml:"exclude_flags"`
}

// Document is the top-level YAML structure for one strategy's rules.
type Document struct {
	Strategy string    `yaml:"strategy"`
	Version  int       `yaml:"version"`
	Rules    []ruleDoc `yaml:"rules"`
}

// LoadFile reads a strategy rule document from a YAML file. Parse errors on
// individual rules are reported but do not prevent loading the remaining
// valid rules: an unparseable rule is dropped, a successfully parsed
// mandatory rule is enforced strictly.
func LoadFile(path string) (*RuleSet, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read rules file: %w", err)
	}
	return Load(data)
}

// Load parses a rule document from YAML bytes.
func Load(data []byte) (*RuleSet, []error, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse rules document: %w", err)
	}

	var (
		parsed   []Rule
		warnings []error
		seen     = make(map[string]bool)
	)
	for i, rd := range doc.Rules {
		r, err := buildRule(rd)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("rule %d (%s): %w", i, rd.ID, err))
			log.Printf("rules: %s dropping rule %q: %v", doc.Strategy, rd.ID, err)
			continue
		}
		if seen[r.ID] {
			warnings = append(warnings, fmt.Errorf("rule %d: duplicate id %q", i, r.ID))
			log.Printf("rules: %s dropping duplicate rule id %q", doc.Strategy, r.ID)
			continue
		}
		seen[r.ID] = true
		parsed = append(parsed, r)
	}

	rs, err := NewRuleSet(doc.Strategy, doc.Version, parsed)
	if err != nil {
		return nil, warnings, err
	}
	return rs, warnings, nil
}

func buildRule(rd ruleDoc) (Rule, error) {
	if rd.ID == "" {
		return Rule{}, fmt.Errorf("missing id")
	}

	kind := Kind(rd.Kind)
	switch kind {
	case KindEntry, KindExit, KindPositionSize, KindRisk, KindFilter:
	default:
		return Rule{}, fmt.Errorf("unknown kind %q", rd.Kind)
	}

	action := Action(rd.Action)
	switch action {
	case ActionReject, ActionAdjust, ActionForceSell, ActionHaltTrading, ActionWarn:
	case "":
		action = ActionReject
	default:
		return Rule{}, fmt.Errorf("unknown action %q", rd.Action)
	}

	cond, err := buildCondition(rd.Condition)
	if err != nil {
		return Rule{}, err
	}

	priority := rd.Priority
	if priority == 0 {
		priority = 100
	}

	return Rule{
		ID:          rd.ID,
		Kind:        kind,
		Name:        rd.Name,
		Description: rd.Description,
		Condition:   cond,
		Action:      action,
		Mandatory:   rd.Mandatory,
		Priority:    priority,
	}, nil
}

func buildCondition(cs conditionSpec) (Condition, error) {
	switch cs.Type {
	case "price_range":
		if cs.Max > 0 && cs.Min > cs.Max {
			return nil, fmt.Errorf("price_range min %.2f > max %.2f", cs.Min, cs.Max)
		}
		return PriceRange{Min: cs.Min, Max: cs.Max}, nil
	case "time_window":
		if cs.Start == "" || cs.End == "" {
			return nil, fmt.Errorf("time_window requires start and end")
		}
		return TimeWindow{Start: cs.Start, End: cs.End}, nil
	case "position_limit":
		if cs.MaxFraction <= 0 || cs.MaxFraction > 1 {
			return nil, fmt.Errorf("position_limit max_fraction %.2f outside (0, 1]", cs.MaxFraction)
		}
		return PositionLimit{MaxFraction: cs.MaxFraction}, nil
	case "stop_loss":
		if cs.MaxLossFraction <= 0 {
			return nil, fmt.Errorf("stop_loss max_loss_fraction must be positive")
		}
		return StopLoss{MaxLossFraction: cs.MaxLossFraction}, nil
	case "max_drawdown":
		if cs.Threshold <= 0 {
			return nil, fmt.Errorf("max_drawdown threshold must be positive")
		}
		return MaxDrawdown{Threshold: cs.Threshold}, nil
	case "stock_filter":
		if len(cs.ExcludeFlags) == 0 {
			return nil, fmt.Errorf("stock_filter requires exclude_flags")
		}
		return StockFilter{ExcludeFlags: cs.ExcludeFlags}, nil
	default:
		return nil, fmt.Errorf("unknown condition type %q", cs.Type)
	}
}
