package engine

// Markup of the supported engines. Selectors follow the live result pages
// and will drift as the engines change their markup.
var profiles = map[Name]*Profile{
	Google: {
		Name:                Google,
		BaseURL:             "https://www.google.com/search",
		QueryParam:          "q",
		Params:              map[string]string{"hl": "en"},
		OffsetParam:         "start",
		PageSize:            10,
		WaitSelector:        "#search",
		NoResultsSelector:   "#topstuff .card-section, #botstuff .card-section",
		ResultSelector:      "#search div.g",
		TitleSelector:       "h3",
		LinkSelector:        "a[href]",
		SnippetSelector:     "div.VwiC3b, span.st, div[data-sncf]",
		VisibleLinkSelector: "cite",
		NextSelector:        "#pnnext",
		BlockSelectors:      []string{"form#captcha-form", "#recaptcha", "div#infoDiv"},
		BlockURLMarkers:     []string{"/sorry/index", "google.com/sorry"},
	},
	GoogleNewsOld: {
		Name:            GoogleNewsOld,
		BaseURL:         "https://www.google.com/search",
		QueryParam:      "q",
		Params:          map[string]string{"tbm": "nws", "hl": "en"},
		OffsetParam:     "start",
		PageSize:        10,
		WaitSelector:    "#search",
		ResultSelector:  "#search div.SoaBEf, #search g-card",
		TitleSelector:   "div[role=heading]",
		LinkSelector:    "a[href]",
		SnippetSelector: "div.GI74Re",
		DateSelector:    "div.OSrXXb span, span.WG9SHc span",
		ExtraSelectors:  map[string]string{"source": "div.MgUUmf span, div.CEMjEf span"},
		NextSelector:    "#pnnext",
		BlockSelectors:  []string{"form#captcha-form", "#recaptcha"},
		BlockURLMarkers: []string{"/sorry/index"},
	},
	GoogleNews: {
		Name:            GoogleNews,
		BaseURL:         "https://news.google.com/search",
		QueryParam:      "q",
		Params:          map[string]string{"hl": "en-US", "gl": "US", "ceid": "US:en"},
		WaitSelector:    "main",
		ResultSelector:  "main article",
		TitleSelector:   "a.JtKRv, h3, h4",
		LinkSelector:    "a[href]",
		DateSelector:    "time",
		ExtraSelectors:  map[string]string{"source": "div.vr1PYe, a.wEwyrc"},
		BlockURLMarkers: []string{"/sorry/index"},
	},
	GoogleImage: {
		Name:            GoogleImage,
		BaseURL:         "https://www.google.com/search",
		QueryParam:      "q",
		Params:          map[string]string{"tbm": "isch", "hl": "en"},
		WaitSelector:    "#islrg, #search",
		ResultSelector:  "div.isv-r, div[data-ri], div.eA0Zlc",
		TitleSelector:   "h3, div.toI8Rb",
		LinkSelector:    "a[href]",
		ExtraSelectors:  map[string]string{"source": "div.LAA3yd, div.guK3rf"},
		BlockSelectors:  []string{"form#captcha-form"},
		BlockURLMarkers: []string{"/sorry/index"},
	},
	GoogleMaps: {
		Name:            GoogleMaps,
		BaseURL:         "https://www.google.com/maps/search/{query}",
		Params:          map[string]string{"hl": "en"},
		WaitSelector:    "div[role=feed], div[role=main]",
		ResultSelector:  "div[role=feed] div[role=article]",
		TitleSelector:   "div.qBF1Pd, div.fontHeadlineSmall",
		LinkSelector:    "a.hfpxzc",
		SnippetSelector: "div.W4Efsd",
		ExtraSelectors:  map[string]string{"rating": "span.MW4etd", "reviews": "span.UY7F9"},
		BlockURLMarkers: []string{"/sorry/index"},
	},
	GoogleShopping: {
		Name:            GoogleShopping,
		BaseURL:         "https://www.google.com/search",
		QueryParam:      "q",
		Params:          map[string]string{"tbm": "shop", "hl": "en"},
		OffsetParam:     "start",
		PageSize:        60,
		WaitSelector:    "#search, #rso",
		ResultSelector:  "div.sh-dgr__content, div.sh-dlr__list-result, div.sh-dgr__gr-auto",
		TitleSelector:   "h3, h4",
		LinkSelector:    "a[href]",
		ExtraSelectors:  map[string]string{"price": "span.a8Pemb, span.kHxwFf", "merchant": "div.aULzUe, div.E5ocAb"},
		NextSelector:    "#pnnext",
		BlockSelectors:  []string{"form#captcha-form"},
		BlockURLMarkers: []string{"/sorry/index"},
	},
	Bing: {
		Name:                Bing,
		BaseURL:             "https://www.bing.com/search",
		QueryParam:          "q",
		OffsetParam:         "first",
		OffsetBase:          1,
		PageSize:            10,
		WaitSelector:        "#b_results",
		NoResultsSelector:   "li.b_no",
		ResultSelector:      "#b_results > li.b_algo",
		TitleSelector:       "h2",
		LinkSelector:        "h2 a[href]",
		SnippetSelector:     "div.b_caption p, p.b_lineclamp2, p.b_lineclamp4",
		VisibleLinkSelector: "cite",
		NextSelector:        "a.sb_pagN",
		BlockSelectors:      []string{"#b_captcha", "div.captcha"},
	},
	BingNews: {
		Name:            BingNews,
		BaseURL:         "https://www.bing.com/news/search",
		QueryParam:      "q",
		OffsetParam:     "first",
		OffsetBase:      1,
		PageSize:        10,
		WaitSelector:    "#news, div.news-card",
		ResultSelector:  "div.news-card",
		TitleSelector:   "a.title",
		LinkSelector:    "a.title",
		SnippetSelector: "div.snippet",
		DateSelector:    "span[aria-label]",
		ExtraSelectors:  map[string]string{"source": "div.source a"},
		BlockSelectors:  []string{"#b_captcha"},
	},
	Amazon: {
		Name:              Amazon,
		BaseURL:           "https://www.amazon.com/s",
		QueryParam:        "k",
		OffsetParam:       "page",
		OffsetBase:        1,
		PageSize:          1,
		WaitSelector:      "div.s-main-slot",
		NoResultsSelector: "div.s-no-outline span.a-text-bold",
		ResultSelector:    "div.s-main-slot div[data-component-type='s-search-result']",
		TitleSelector:     "h2",
		LinkSelector:      "a.a-link-normal[href]",
		ExtraSelectors: map[string]string{
			"price":   "span.a-price > span.a-offscreen",
			"rating":  "span.a-icon-alt",
			"reviews": "span.a-size-base.s-underline-text",
		},
		NextSelector:    "a.s-pagination-next",
		BlockSelectors:  []string{"form[action='/errors/validateCaptcha']"},
		BlockURLMarkers: []string{"/errors/validateCaptcha"},
	},
	DuckDuckGo: {
		Name:                DuckDuckGo,
		BaseURL:             "https://html.duckduckgo.com/html/",
		QueryParam:          "q",
		OffsetParam:         "s",
		PageSize:            30,
		WaitSelector:        "#links",
		NoResultsSelector:   "div.no-results",
		ResultSelector:      "#links div.result:not(.result--ad)",
		TitleSelector:       "a.result__a",
		LinkSelector:        "a.result__a",
		SnippetSelector:     "a.result__snippet, div.result__snippet",
		VisibleLinkSelector: "a.result__url",
		NextSelector:        "div.nav-link input[type=submit][value=Next], input.btn--alt",
		BlockSelectors:      []string{"div.anomaly-modal__modal"},
	},
	DuckDuckGoNews: {
		Name:            DuckDuckGoNews,
		BaseURL:         "https://duckduckgo.com/",
		QueryParam:      "q",
		Params:          map[string]string{"iar": "news", "ia": "news"},
		WaitSelector:    "div.results--main, ol.react-results--main",
		ResultSelector:  "article, div.result--news",
		TitleSelector:   "h2, a.result__a",
		LinkSelector:    "a[href]",
		SnippetSelector: "div.result__snippet, p",
		DateSelector:    "span.result__timestamp, time",
		BlockSelectors:  []string{"div.anomaly-modal__modal"},
	},
	Infospace: {
		Name:                Infospace,
		BaseURL:             "https://search.infospace.com/serp",
		QueryParam:          "q",
		OffsetParam:         "page",
		OffsetBase:          1,
		PageSize:            1,
		WaitSelector:        "div.mainline-results, div.layout__mainline",
		ResultSelector:      "div.mainline-results div.web-result, div.layout__mainline div.web-bing__result",
		TitleSelector:       "a.title, a.web-bing__title",
		LinkSelector:        "a.title, a.web-bing__title",
		SnippetSelector:     "div.description, span.web-bing__description",
		VisibleLinkSelector: "span.url, span.web-bing__url",
		NextSelector:        "a.next, li.pagination__num--next a",
	},
	Webcrawler: {
		Name:                Webcrawler,
		BaseURL:             "https://www.webcrawler.com/serp",
		QueryParam:          "q",
		OffsetParam:         "page",
		OffsetBase:          1,
		PageSize:            1,
		WaitSelector:        "div.mainline-results, div.layout__mainline",
		ResultSelector:      "div.mainline-results div.web-result, div.layout__mainline div.web-bing__result",
		TitleSelector:       "a.title, a.web-bing__title",
		LinkSelector:        "a.title, a.web-bing__title",
		SnippetSelector:     "div.description, span.web-bing__description",
		VisibleLinkSelector: "span.url, span.web-bing__url",
		NextSelector:        "a.next, li.pagination__num--next a",
	},
	Baidu: {
		Name:            Baidu,
		BaseURL:         "https://www.baidu.com/s",
		QueryParam:      "wd",
		OffsetParam:     "pn",
		PageSize:        10,
		WaitSelector:    "#content_left",
		ResultSelector:  "#content_left div.result, #content_left div.result-op",
		TitleSelector:   "h3",
		LinkSelector:    "h3 a[href]",
		SnippetSelector: "div.c-abstract, span.content-right_8Zs40",
		ExtraSelectors:  map[string]string{"source": "span.c-showurl, div.c-showurl"},
		NextSelector:    "#page a.n",
		BlockSelectors:  []string{"#verify", "div.passMod_dialog-wrapper"},
		BlockURLMarkers: []string{"wappass.baidu.com", "/captcha"},
	},
	YouTube: {
		Name:            YouTube,
		BaseURL:         "https://www.youtube.com/results",
		QueryParam:      "search_query",
		WaitSelector:    "ytd-video-renderer, ytd-search",
		ResultSelector:  "ytd-video-renderer",
		TitleSelector:   "#video-title",
		LinkSelector:    "a#video-title",
		SnippetSelector: "#description-text, yt-formatted-string.metadata-snippet-text",
		DateSelector:    "#metadata-line span:nth-child(4)",
		ExtraSelectors:  map[string]string{"channel": "#channel-info #channel-name a", "views": "#metadata-line span:nth-child(3)"},
	},
	YahooNews: {
		Name:            YahooNews,
		BaseURL:         "https://finance.yahoo.com/quote/{query}/news",
		WaitSelector:    "#quoteNewsStream-0-Stream, section[data-testid=news-stream], ul.stream-items",
		ResultSelector:  "li.js-stream-content, li.stream-item",
		TitleSelector:   "h3",
		LinkSelector:    "a[href]",
		SnippetSelector: "p",
		DateSelector:    "div.publishing, div.footer span",
	},
	Reuters: {
		Name:            Reuters,
		BaseURL:         "https://www.reuters.com/site-search/",
		QueryParam:      "query",
		OffsetParam:     "offset",
		PageSize:        20,
		WaitSelector:    "ul[class*='search-results__list'], div[class*='search-results']",
		ResultSelector:  "li[class*='search-results__item']",
		TitleSelector:   "[data-testid=Heading], h3",
		LinkSelector:    "a[href]",
		DateSelector:    "time",
		NextSelector:    "button[aria-label='Next stories']:not([disabled])",
		BlockSelectors:  []string{"div#px-captcha"},
		BlockURLMarkers: []string{"captcha-delivery.com"},
	},
	CNBC: {
		Name:           CNBC,
		BaseURL:        "https://www.cnbc.com/quotes/{query}",
		Params:         map[string]string{"tab": "news"},
		WaitSelector:   "div.QuotePageTabs, div.LatestNews-list",
		ResultSelector: "li.LatestNews-item, div.LatestNews-item",
		TitleSelector:  "a.LatestNews-headline",
		LinkSelector:   "a.LatestNews-headline",
		DateSelector:   "time.LatestNews-timestamp, span.LatestNews-timestamp",
	},
	MarketWatch: {
		Name:            MarketWatch,
		BaseURL:         "https://www.marketwatch.com/investing/stock/{query}",
		WaitSelector:    "div.collection__elements, mw-tabs",
		ResultSelector:  "div.collection__elements div.element--article",
		TitleSelector:   "h3.article__headline",
		LinkSelector:    "a.link[href]",
		SnippetSelector: "p.article__summary",
		DateSelector:    "span.article__timestamp",
		ExtraSelectors:  map[string]string{"author": "span.article__author"},
		BlockSelectors:  []string{"div#px-captcha", "iframe[src*='captcha-delivery']"},
		BlockURLMarkers: []string{"captcha-delivery.com"},
	},
}
