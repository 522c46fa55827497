// Package deeplink classifies incoming URLs into wallet actions and routes
// them to the rest of the wallet.
package deeplink

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"moff.io/moff-wallet/internal/chains"
	"moff.io/moff-wallet/pkg/log"
)

const (
	WebHostname            = "app.uniswap.org"
	URLScheme              = "uniswap://"
	SchemeWalletConnect    = URLScheme + "wc:"
	SchemeWalletConnectArg = URLScheme + "wc?uri="
	SchemeWidget           = URLScheme + "widget/"
	SchemeScantastic       = URLScheme + "scantastic?"
	SchemeUwuLink          = URLScheme + "uwulink"
	UniversalWalletConnect = "https://uniswap.org/app/wc?uri="
	WalletConnectScheme    = "wc:"
)

var parseTags = log.Tags{File: "parser", Function: "Parse"}

type handler struct {
	prefix string
	handle func(p *Parser, raw string, data Payload) Result
}

// Checked in order, a URL is handled by the first prefix it starts with or
// whose value equals its hostname.
var handlers = []handler{
	{WebHostname, func(_ *Parser, raw string, data Payload) Result {
		path := ""
		if parts := strings.SplitN(raw, WebHostname+"/", 2); len(parts) == 2 {
			path = parts[1]
		}
		data.URLPath = &path
		return Result{Action: UniswapWebLink, Data: data}
	}},
	{SchemeWalletConnectArg, func(p *Parser, raw string, data Payload) Result {
		wcURI, ok := extractWalletConnectURI(raw, SchemeWalletConnectArg)
		if !ok {
			return p.logAndReturnError("No WC URI found", WalletConnectAsParam, raw, data)
		}
		data.WcURI = &wcURI
		return Result{Action: WalletConnectAsParam, Data: data}
	}},
	{SchemeWalletConnect, func(p *Parser, raw string, data Payload) Result {
		wcURI, ok := extractWalletConnectURI(raw, URLScheme)
		if !ok {
			return p.logAndReturnError("No WC URI found", UniswapWalletConnect, raw, data)
		}
		data.WcURI = &wcURI
		return Result{Action: UniswapWalletConnect, Data: data}
	}},
	{SchemeWidget, func(_ *Parser, _ string, data Payload) Result {
		return Result{Action: UniswapWidget, Data: data}
	}},
	{SchemeScantastic, func(p *Parser, raw string, data Payload) Result {
		params, ok := scantasticQuery(raw)
		if !ok {
			return p.logAndReturnError("No Scantastic query params found", Scantastic, raw, data)
		}
		data.ScantasticQueryParams = &params
		return Result{Action: Scantastic, Data: data}
	}},
	{SchemeUwuLink, func(_ *Parser, _ string, data Payload) Result {
		return Result{Action: UwuLink, Data: data}
	}},
}

// Parser turns deep link URLs into Results. The zero value has an empty
// allowlist and logs nothing.
type Parser struct {
	allowlist AllowlistSource
	logger    log.Logger
}

func NewParser(allowlist AllowlistSource, logger log.Logger) *Parser {
	if allowlist == nil {
		allowlist = StaticAllowlist{}
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Parser{allowlist: allowlist, logger: logger}
}

func (p *Parser) log() log.Logger {
	if p.logger == nil {
		return log.Nop()
	}
	return p.logger
}

func (p *Parser) currentAllowlist() Allowlist {
	if p.allowlist == nil {
		return Allowlist{}
	}
	return p.allowlist.Allowlist()
}

// Parse classifies raw. It never fails: anything it does not recognize, a
// malformed URL included, comes back as Unknown.
func (p *Parser) Parse(raw string) Result {
	u, err := url.Parse(raw)
	if err != nil {
		// a bad escape in the path or query leaves the prefix rules to try
		u = looseURL(raw)
	}
	q := u.Query()
	data := Payload{
		URL:    raw,
		Screen: paramOr(q, "screen", defaultScreen),
		Source: paramOr(q, "source", defaultSource),
	}

	for _, h := range handlers {
		if strings.HasPrefix(raw, h.prefix) || u.Hostname() == h.prefix {
			return h.handle(p, raw, data)
		}
	}

	userAddress, hasUserAddress := param(q, "userAddress")
	fiatOnRamp := q.Get("fiatOnRamp") == "true"
	fiatOffRamp := q.Get("fiatOffRamp") == "true"

	switch u.Path {
	case "/tokendetails":
		currencyID := q.Get("currencyId")
		if currencyID == "" {
			return p.logAndReturnError("No currencyId found", TokenDetails, raw, data)
		}
		if !IsCurrencyIDValid(currencyID) {
			return p.logAndReturnError("Invalid currencyId found", TokenDetails, raw, data)
		}
		data.CurrencyID = &currencyID
		return Result{Action: TokenDetails, Data: data}
	case "/fiatonramp":
		moonpayOnly := q.Get("moonpayOnly") == "true"
		if !moonpayOnly && userAddress == "" {
			return p.logAndReturnError("No userAddress or moonpayOnly param found", FiatOnRampScreen, raw, data)
		}
		if hasUserAddress {
			data.UserAddress = strPtr(userAddress)
		}
		data.MoonpayOnly = boolPtr(moonpayOnly)
		if code, ok := param(q, "moonpayCurrencyCode"); ok {
			data.MoonpayCurrencyCode = &code
		}
		if amount, ok := param(q, "amount"); ok {
			data.Amount = &amount
		}
		return Result{Action: FiatOnRampScreen, Data: data}
	}

	switch strings.ToLower(data.Screen) {
	case "transaction":
		action := TransactionScreen
		if fiatOnRamp {
			action = ShowTransactionAfterFiatOnRamp
		} else if fiatOffRamp {
			action = ShowTransactionAfterFiatOffRamp
		}
		if userAddress == "" {
			return p.logAndReturnError("No userAddress found", action, raw, data)
		}
		data.UserAddress = strPtr(userAddress)
		return Result{Action: action, Data: data}
	case "swap":
		if userAddress == "" {
			return p.logAndReturnError("No userAddress found", SwapScreen, raw, data)
		}
		data.UserAddress = strPtr(userAddress)
		return Result{Action: SwapScreen, Data: data}
	}

	if strings.HasPrefix(raw, URLScheme) {
		return Result{Action: SkipNonWalletConnect, Data: data}
	}

	if strings.HasPrefix(raw, UniversalWalletConnect) {
		parts := strings.Split(raw, UniversalWalletConnect)
		wcURI := parts[len(parts)-1]
		if wcURI == "" {
			return p.logAndReturnError("No WC URI found", UniversalWalletConnectLink, raw, data)
		}
		data.WcURI = &wcURI
		return Result{Action: UniversalWalletConnectLink, Data: data}
	}

	if strings.HasPrefix(raw, WalletConnectScheme) {
		wcURI := decodeURIComponent(raw)
		data.WcURI = &wcURI
		return Result{Action: WalletConnect, Data: data}
	}

	return p.unknown(raw, data)
}

// looseURL keeps only the scheme and host of a URL that does not parse.
func looseURL(raw string) *url.URL {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return &url.URL{}
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	}
	return &url.URL{Scheme: scheme, Host: rest}
}

// unknown is the allowlist check and the final fallback.
func (p *Parser) unknown(raw string, data Payload) Result {
	allowlist := p.currentAllowlist()
	if allowed, openInApp := allowlist.Match(raw); allowed {
		data.TargetURL = strPtr(raw)
		data.OpenInApp = boolPtr(openInApp)
		return Result{Action: InAppBrowser, Data: data}
	}

	if len(allowlist.Entries) == 0 {
		p.log().Error(parseTags, "No allowlist configured for browser opening, rejecting URL: "+raw, nil)
	} else {
		p.log().Error(parseTags, "URL not allowlisted for browser opening: "+raw, nil)
	}
	p.log().Error(parseTags, "Unknown deep link action for url="+raw, nil)
	return Result{Action: Unknown, Data: data}
}

func (p *Parser) logAndReturnError(msg string, action Action, raw string, data Payload) Result {
	p.log().Error(parseTags, fmt.Sprintf("%s for action=%s in deep link url=%s", msg, action, raw), nil)
	return Result{Action: Error, Data: data}
}

// extractWalletConnectURI returns the decoded text between the first and
// second occurrence of prefix.
func extractWalletConnectURI(raw, prefix string) (string, bool) {
	parts := strings.Split(raw, prefix)
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	return decodeURIComponent(parts[1]), true
}

func scantasticQuery(raw string) (string, bool) {
	parts := strings.SplitN(raw, SchemeScantastic, 2)
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// decodeURIComponent percent-decodes s, leaving '+' alone. Undecodable
// input is returned as is.
func decodeURIComponent(s string) string {
	out, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return out
}

func param(q url.Values, key string) (string, bool) {
	vs, ok := q[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

func paramOr(q url.Values, key, fallback string) string {
	if v, ok := param(q, key); ok {
		return v
	}
	return fallback
}

// IsCurrencyIDValid checks a <chainId>-<address> currency id. The address
// part is either a hex address or the chain's native symbol.
func IsCurrencyIDValid(id string) bool {
	chain, address, found := strings.Cut(id, "-")
	if !found || address == "" {
		return false
	}
	chainID, err := strconv.Atoi(chain)
	if err != nil {
		return false
	}
	c, ok := chains.Get(chainID)
	if !ok {
		return false
	}
	return common.IsHexAddress(address) || strings.EqualFold(address, c.NativeSymbol)
}
