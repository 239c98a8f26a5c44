package models

// RankRequest is the payload for POST /api/v1/rank.
type RankRequest struct {
	// Keyword is the search phrase. Required.
	Keyword string `json:"keyword" binding:"required"`

	// ASINs are the product codes to locate. Required, 1-50.
	ASINs []string `json:"asins" binding:"required,min=1,max=50,dive,len=10,alphanum,uppercase"`

	// Pages overrides the page budget for this request.
	// Default: server configuration (3). Max: 10.
	Pages int `json:"pages,omitempty" binding:"omitempty,min=1,max=10"`

	// EarlyStop overrides the early-completion policy.
	// Default: server configuration (true).
	EarlyStop *bool `json:"early_stop,omitempty"`

	// Timeout is the maximum duration in seconds for the whole keyword.
	// Default: 180. Max: 600.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=600"`

	// MaxAge enables the result cache: a cached result younger than
	// MaxAge milliseconds is returned without scraping. Default: 0 (off).
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (r *RankRequest) Defaults() {
	if r.Timeout == 0 {
		r.Timeout = 180
	}
}
