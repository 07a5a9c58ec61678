package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// object is a decoded JSON object whose fields are read with coercion:
// missing or mistyped fields yield zero values and empty slices, never errors
type object map[string]any

// decodeObject parses body and requires a top-level JSON object
func decodeObject(body []byte) (object, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %s", ErrMalformedResponse, kind(v))
	}
	return object(m), nil
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func (o object) str(key string) string {
	s, _ := o[key].(string)
	return s
}

func (o object) boolean(key string) bool {
	b, _ := o[key].(bool)
	return b
}

func (o object) number(key string) float64 {
	f, _ := o[key].(float64)
	return f
}

func (o object) integer(key string) int64 {
	return int64(o.number(key))
}

func (o object) obj(key string) object {
	m, _ := o[key].(map[string]any)
	return object(m)
}

func (o object) strings(key string) []string {
	items, _ := o[key].([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (o object) objects(key string) []object {
	items, _ := o[key].([]any)
	out := make([]object, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, object(m))
		}
	}
	return out
}

func parseStatus(body []byte) (*Status, error) {
	o, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	return &Status{
		Version:           o.str("version"),
		Running:           o.boolean("running"),
		ProtectionEnabled: o.boolean("protection_enabled"),
		DNSAddresses:      o.strings("dns_addresses"),
		DNSPort:           int(o.integer("dns_port")),
		HTTPPort:          int(o.integer("http_port")),
	}, nil
}

func parseFilters(items []object) []Filter {
	filters := make([]Filter, 0, len(items))
	for _, f := range items {
		filters = append(filters, Filter{
			ID:          f.integer("id"),
			Name:        f.str("name"),
			URL:         f.str("url"),
			Enabled:     f.boolean("enabled"),
			RulesCount:  int(f.integer("rules_count")),
			LastUpdated: f.str("last_updated"),
		})
	}
	return filters
}

func parseFilteringStatus(body []byte) (*FilteringStatus, error) {
	o, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	return &FilteringStatus{
		Enabled:          o.boolean("enabled"),
		IntervalHours:    int(o.integer("interval")),
		Filters:          parseFilters(o.objects("filters")),
		WhitelistFilters: parseFilters(o.objects("whitelist_filters")),
		UserRules:        o.strings("user_rules"),
	}, nil
}

func parseQueryLog(body []byte) (*QueryLog, error) {
	o, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	items := o.objects("data")
	log := &QueryLog{
		Entries: make([]QueryLogEntry, 0, len(items)),
		Oldest:  o.str("oldest"),
	}
	for _, item := range items {
		question := item.obj("question")
		entry := QueryLogEntry{
			Time:      item.str("time"),
			Client:    item.str("client"),
			Domain:    question.str("name"),
			Type:      question.str("type"),
			Reason:    item.str("reason"),
			ElapsedMs: item.str("elapsedMs"),
		}
		if rules := item.objects("rules"); len(rules) > 0 {
			entry.Rule = rules[0].str("text")
		} else {
			entry.Rule = item.str("rule")
		}
		log.Entries = append(log.Entries, entry)
	}
	return log, nil
}

// parseTop reads a list of single-key objects such as
// [{"example.com": 12}, {"ads.example": 3}]
func parseTop(items []object) []Count {
	counts := make([]Count, 0, len(items))
	for _, item := range items {
		names := make([]string, 0, len(item))
		for name := range item {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			counts = append(counts, Count{Name: name, Count: item.integer(name)})
		}
	}
	return counts
}

func parseStats(body []byte) (*Stats, error) {
	o, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	return &Stats{
		DNSQueries:        o.integer("num_dns_queries"),
		BlockedFiltering:  o.integer("num_blocked_filtering"),
		ReplacedSafeBrows: o.integer("num_replaced_safebrowsing"),
		ReplacedParental:  o.integer("num_replaced_parental"),
		AvgProcessingTime: o.number("avg_processing_time"),
		TopQueried:        parseTop(o.objects("top_queried_domains")),
		TopBlocked:        parseTop(o.objects("top_blocked_domains")),
		TopClients:        parseTop(o.objects("top_clients")),
	}, nil
}

func parseHostCheck(name string, body []byte) (*HostCheck, error) {
	o, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	reason := o.str("reason")
	check := &HostCheck{
		Name:    name,
		Reason:  reason,
		Blocked: strings.HasPrefix(reason, "Filtered"),
		Rules:   []string{},
	}
	for _, r := range o.objects("rules") {
		if text := r.str("text"); text != "" {
			check.Rules = append(check.Rules, text)
		}
	}
	if len(check.Rules) == 0 {
		if rule := o.str("rule"); rule != "" {
			check.Rules = append(check.Rules, rule)
		}
	}
	return check, nil
}
