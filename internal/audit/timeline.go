package audit

import "time"

// TimelineFilters holds the filters for an organisation's audit timeline.
type TimelineFilters struct {
	OrganisationID int64
	From           time.Time
	To             time.Time
	ActorID        int64
	Entity         string
	EntityID       string
	Action         string
	Page           int
	PageSize       int
}

// TimelineRow is one audit record.
type TimelineRow struct {
	At         time.Time      `json:"at"`
	ActorID    int64          `json:"actor_id"`
	ActorEmail string         `json:"actor_email,omitempty"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// PagingInfo describes the current page.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}
