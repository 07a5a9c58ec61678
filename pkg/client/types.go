package client

// Status is the appliance's general state
type Status struct {
	Version           string   `json:"version"`
	Running           bool     `json:"running"`
	ProtectionEnabled bool     `json:"protectionEnabled"`
	DNSAddresses      []string `json:"dnsAddresses"`
	DNSPort           int      `json:"dnsPort"`
	HTTPPort          int      `json:"httpPort"`
}

// Filter is a subscribed filter list
type Filter struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Enabled     bool   `json:"enabled"`
	RulesCount  int    `json:"rulesCount"`
	LastUpdated string `json:"lastUpdated,omitempty"`
}

// FilteringStatus is the filtering configuration including user rules
type FilteringStatus struct {
	Enabled          bool     `json:"enabled"`
	IntervalHours    int      `json:"intervalHours"`
	Filters          []Filter `json:"filters"`
	WhitelistFilters []Filter `json:"whitelistFilters"`
	UserRules        []string `json:"userRules"`
}

// QueryLogEntry is one resolved query
type QueryLogEntry struct {
	Time      string `json:"time"`
	Client    string `json:"client"`
	Domain    string `json:"domain"`
	Type      string `json:"type"`
	Reason    string `json:"reason"`
	Rule      string `json:"rule,omitempty"`
	ElapsedMs string `json:"elapsedMs,omitempty"`
}

// QueryLog is a page of the query log, newest first
type QueryLog struct {
	Entries []QueryLogEntry `json:"entries"`
	Oldest  string          `json:"oldest,omitempty"`
}

// Count is a name with a counter, used for top lists
type Count struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Stats are the appliance's aggregate counters
type Stats struct {
	DNSQueries        int64   `json:"dnsQueries"`
	BlockedFiltering  int64   `json:"blockedFiltering"`
	ReplacedSafeBrows int64   `json:"replacedSafebrowsing"`
	ReplacedParental  int64   `json:"replacedParental"`
	AvgProcessingTime float64 `json:"avgProcessingTime"`
	TopQueried        []Count `json:"topQueried"`
	TopBlocked        []Count `json:"topBlocked"`
	TopClients        []Count `json:"topClients"`
}

// HostCheck tells whether a host name is currently filtered
type HostCheck struct {
	Name    string   `json:"name"`
	Reason  string   `json:"reason"`
	Blocked bool     `json:"blocked"`
	Rules   []string `json:"rules"`
}
