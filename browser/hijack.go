package browser

import (
	"fmt"
	"regexp"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// assetTypes are the resource types dropped when asset blocking is on.
var assetTypes = map[proto.NetworkResourceType]struct{}{
	proto.NetworkResourceTypeImage:      {},
	proto.NetworkResourceTypeStylesheet: {},
	proto.NetworkResourceTypeFont:       {},
	proto.NetworkResourceTypeMedia:      {},
}

// blockPolicy decides which requests the hijack router fails.
type blockPolicy struct {
	assets   bool
	patterns []*regexp.Regexp
}

func newBlockPolicy(blockAssets bool, patterns []string) (*blockPolicy, error) {
	p := &blockPolicy{assets: blockAssets}
	for _, raw := range patterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid block_regex %q: %w", raw, err)
		}
		p.patterns = append(p.patterns, re)
	}
	return p, nil
}

func (p *blockPolicy) empty() bool {
	return !p.assets && len(p.patterns) == 0
}

func (p *blockPolicy) shouldBlock(rt proto.NetworkResourceType, rawURL string) bool {
	if p.assets {
		if _, ok := assetTypes[rt]; ok {
			return true
		}
	}
	for _, re := range p.patterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// setupHijack installs a request interceptor on the page that fails every
// request the policy blocks. Returns nil if there is nothing to block.
func setupHijack(page *rod.Page, policy *blockPolicy) *rod.HijackRouter {
	if policy.empty() {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if policy.shouldBlock(ctx.Request.Type(), ctx.Request.URL().String()) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks until router.Stop().
	go router.Run()

	return router
}
