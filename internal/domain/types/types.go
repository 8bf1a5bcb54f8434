// Package types contains response shapes shared by the service and the HTTP layer.
package types

// CriteriaView is the stored targeting of an offer.
type CriteriaView struct {
	Device []string `json:"device"`
	Hour   []int    `json:"hour"`
	Day    []int    `json:"day"`
	State  []string `json:"state"`
}

// OfferView is an offer as returned to callers. Internal offer ids are never exposed.
type OfferView struct {
	Value    float64      `json:"value"`
	Location string       `json:"location"`
	Criteria CriteriaView `json:"criteria"`
}

// BuyerView is a buyer as returned by GET /buyers/:id.
type BuyerView struct {
	ID     string      `json:"id"`
	Offers []OfferView `json:"offers"`
}

// Stats summarizes service state for GET /stats.
type Stats struct {
	Store               string `json:"store"`
	RecordCodec         string `json:"record_codec"`
	TimeZone            string `json:"time_zone"`
	RepairQueueSize     int    `json:"repair_queue_size"`
	RepairQueueCapacity int    `json:"repair_queue_capacity"`
	RepairWorkers       int    `json:"repair_workers"`
	RepairInFlight      int    `json:"repair_in_flight"`
	UptimeSeconds       int64  `json:"uptime_seconds"`
}
