package scraper

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to Rod protocol resource types.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// trackerDomains are third-party ad and analytics hosts dropped when
// BlockAds is on. The storefront's own ad server is left out: it renders
// the sponsored placements being ranked.
var trackerDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"facebook.net":          {},
	"adnxs.com":             {},
	"adsrvr.org":            {},
	"criteo.com":            {},
	"criteo.net":            {},
	"scorecardresearch.com": {},
	"moatads.com":           {},
	"pubmatic.com":          {},
	"rubiconproject.com":    {},
	"hotjar.com":            {},
	"demdex.net":            {},
}

// blockPolicy decides which sub-requests of a results page are dropped.
type blockPolicy struct {
	types    map[proto.NetworkResourceType]struct{}
	trackers bool
}

func newBlockPolicy(blockedTypes []string, blockTrackers bool) blockPolicy {
	p := blockPolicy{
		types:    make(map[proto.NetworkResourceType]struct{}, len(blockedTypes)),
		trackers: blockTrackers,
	}
	for _, name := range blockedTypes {
		if rt, ok := resourceTypes[name]; ok {
			p.types[rt] = struct{}{}
		}
	}
	return p
}

func (p blockPolicy) empty() bool {
	return len(p.types) == 0 && !p.trackers
}

// blocks reports whether a request of type rt to rawURL should fail.
// The document itself is never blocked.
func (p blockPolicy) blocks(rt proto.NetworkResourceType, rawURL string) bool {
	if rt == proto.NetworkResourceTypeDocument {
		return false
	}
	if _, ok := p.types[rt]; ok {
		return true
	}
	if !p.trackers {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return isTrackerHost(u.Hostname())
}

// isTrackerHost checks host and each parent domain against trackerDomains.
func isTrackerHost(host string) bool {
	host = strings.ToLower(host)
	for host != "" {
		if _, ok := trackerDomains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
	}
	return false
}

// setupHijack installs a request interceptor applying the block policy.
// It returns nil when nothing is blocked; otherwise the caller must Stop
// the returned router.
func setupHijack(page *rod.Page, blockedTypes []string, blockTrackers bool) *rod.HijackRouter {
	policy := newBlockPolicy(blockedTypes, blockTrackers)
	if policy.empty() {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if policy.blocks(ctx.Request.Type(), ctx.Request.URL().String()) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// Run blocks until Stop.
	go router.Run()

	return router
}
