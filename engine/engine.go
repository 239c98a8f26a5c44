package engine

import (
	"context"
	"errors"
	"time"
)

// Engine names, in escalation order.
const (
	NameHTTP       = "http"
	NameRod        = "rod"
	NameRodStealth = "rod-stealth"
)

// ErrRejected marks an engine failure caused by the validator refusing
// the fetched page.
var ErrRejected = errors.New("page rejected")

// ErrAllRejected is returned when every engine fetched a page and the
// validator refused each one. Mixed failures never wrap it.
var ErrAllRejected = errors.New("every engine page was rejected")

// Engine loads one search results page.
type Engine interface {
	Name() string
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchRequest describes one results page load. Engines may override
// Timeout and Stealth for their own tier.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	Stealth bool
}

// FetchResult is a fetched results page and the engine that produced it.
type FetchResult struct {
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
	EngineName string
}

// Validator rejects a fetched page, typically a bot challenge served with
// status 200. A rejection counts as an engine failure wrapping ErrRejected.
type Validator func(result *FetchResult) error
