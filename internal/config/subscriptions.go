package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"forager/internal/domain"
)

// FeedConfig is one entry of the subscriptions file.
type FeedConfig struct {
	ID       string
	Name     string
	URL      string
	Interval int
	Enabled  bool
	Category string
	StringID string
	Tags     []string
}

// CategoryName is the trimmed category, or the default one when unset.
func (f FeedConfig) CategoryName() string {
	if name := strings.TrimSpace(f.Category); name != "" {
		return name
	}
	return domain.DefaultCategory
}

// EffectiveStringID prefers the explicit string_id and falls back to id.
func (f FeedConfig) EffectiveStringID() string {
	if f.StringID != "" {
		return f.StringID
	}
	return f.ID
}

type Subscriptions struct {
	Feeds         []FeedConfig
	DeleteMissing bool
}

func (s *Subscriptions) Enabled() []FeedConfig {
	var out []FeedConfig
	for _, f := range s.Feeds {
		if f.Enabled {
			out = append(out, f)
		}
	}
	return out
}

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid subscriptions: " + strings.Join(e.Problems, "; ")
}

// Pointers let validation tell an absent key from a zero value.
type rawFeed struct {
	ID       *string  `yaml:"id"`
	Name     *string  `yaml:"name"`
	URL      *string  `yaml:"url"`
	Interval *int     `yaml:"interval"`
	Enabled  *bool    `yaml:"enabled"`
	Category string   `yaml:"category"`
	StringID string   `yaml:"string_id"`
	Tags     []string `yaml:"tags"`
}

type rawSubscriptions struct {
	Feeds *[]rawFeed `yaml:"feeds"`
	Sync  struct {
		DeleteMissing bool `yaml:"delete_missing"`
	} `yaml:"sync"`
}

func LoadSubscriptions(path string) (*Subscriptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subscriptions file: %w", err)
	}

	return ParseSubscriptions([]byte(os.ExpandEnv(string(data))))
}

func ParseSubscriptions(data []byte) (*Subscriptions, error) {
	var raw rawSubscriptions
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("parse yaml: %v", err)}}
	}

	if raw.Feeds == nil {
		return nil, &ValidationError{Problems: []string{"missing top-level 'feeds' list"}}
	}

	var problems []string
	subs := &Subscriptions{DeleteMissing: raw.Sync.DeleteMissing}

	for i, rf := range *raw.Feeds {
		missing := missingFields(rf)
		if len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("feed #%d: missing required fields: %s", i, strings.Join(missing, ", ")))
			continue
		}

		subs.Feeds = append(subs.Feeds, FeedConfig{
			ID:       strings.TrimSpace(*rf.ID),
			Name:     strings.TrimSpace(*rf.Name),
			URL:      strings.TrimSpace(*rf.URL),
			Interval: *rf.Interval,
			Enabled:  *rf.Enabled,
			Category: rf.Category,
			StringID: strings.TrimSpace(rf.StringID),
			Tags:     rf.Tags,
		})
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	if err := subs.Validate(); err != nil {
		return nil, err
	}

	return subs, nil
}

// Validate checks values that survive decoding: non-empty strings, positive
// intervals and unique ids, string ids and urls.
func (s *Subscriptions) Validate() error {
	var problems []string
	ids := make(map[string]int)
	urls := make(map[string]int)
	stringIDs := make(map[string]int)

	for i, f := range s.Feeds {
		label := fmt.Sprintf("feed #%d", i)
		if f.ID != "" {
			label = fmt.Sprintf("feed %q", f.ID)
		}

		if f.ID == "" {
			problems = append(problems, label+": id is empty")
		}
		if f.Name == "" {
			problems = append(problems, label+": name is empty")
		}
		if f.URL == "" {
			problems = append(problems, label+": url is empty")
		}
		if f.Interval <= 0 {
			problems = append(problems, fmt.Sprintf("%s: interval must be positive, got %d", label, f.Interval))
		}

		if j, ok := ids[f.ID]; ok && f.ID != "" {
			problems = append(problems, fmt.Sprintf("%s: duplicate id (also feed #%d)", label, j))
		}
		ids[f.ID] = i

		if sid := f.EffectiveStringID(); sid != "" {
			// two feeds without string_id are already reported as duplicate ids
			if j, ok := stringIDs[sid]; ok && (f.StringID != "" || s.Feeds[j].StringID != "") {
				problems = append(problems, fmt.Sprintf("%s: duplicate string_id %q (also feed #%d)", label, sid, j))
			}
			stringIDs[sid] = i
		}

		if j, ok := urls[f.URL]; ok && f.URL != "" {
			problems = append(problems, fmt.Sprintf("%s: duplicate url %s (also feed #%d)", label, f.URL, j))
		}
		urls[f.URL] = i
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func missingFields(rf rawFeed) []string {
	var missing []string
	if rf.ID == nil {
		missing = append(missing, "id")
	}
	if rf.Name == nil {
		missing = append(missing, "name")
	}
	if rf.URL == nil {
		missing = append(missing, "url")
	}
	if rf.Interval == nil {
		missing = append(missing, "interval")
	}
	if rf.Enabled == nil {
		missing = append(missing, "enabled")
	}
	return missing
}
