package deeplink

import (
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"moff.io/moff-wallet/internal/chains"
)

// RouteKind names the screen a web app link lands on.
type RouteKind string

const (
	RouteNone            RouteKind = "none"
	RouteUnhandled       RouteKind = "unhandled"
	RouteNFTItem         RouteKind = "nftItem"
	RouteNFTCollection   RouteKind = "nftCollection"
	RouteTokenDetails    RouteKind = "tokenDetails"
	RouteTopTokens       RouteKind = "topTokens"
	RouteExternalProfile RouteKind = "externalProfile"
	RouteSwitchAccount   RouteKind = "switchAccount"
	RouteBuy             RouteKind = "buy"
)

// nativeAddress is how web app links spell a chain's native asset.
const nativeAddress = "NATIVE"

// AppRoute is where a https://app.uniswap.org link should take the user.
type AppRoute struct {
	Kind       RouteKind `json:"kind"`
	Address    string    `json:"address,omitempty"`
	TokenID    string    `json:"tokenId,omitempty"`
	CurrencyID string    `json:"currencyId,omitempty"`
	ChainID    *int      `json:"chainId,omitempty"`
	Metric     string    `json:"metric,omitempty"`

	Amount         *string  `json:"amount,omitempty"`
	CurrencyCode   *string  `json:"currencyCode,omitempty"`
	TokenInputMode bool     `json:"tokenInputMode,omitempty"`
	Providers      []string `json:"providers,omitempty"`
}

// AccountLookup answers questions about the accounts held by the wallet.
type AccountLookup interface {
	HasAccount(address string) bool
	ActiveAddress() string
}

// RouteAppLink maps the path of a web app link to a route. rawURL is the
// full link, its query carries the optional parameters.
func RouteAppLink(path, rawURL string, accounts AccountLookup) (AppRoute, error) {
	path = strings.TrimPrefix(path, "#/")
	path, _, _ = strings.Cut(path, "?")
	path = strings.TrimSuffix(path, "/")
	q := url.Values{}
	if u, err := url.Parse(rawURL); err == nil {
		q = u.Query()
	}

	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 4 && parts[0] == "nfts" && parts[1] == "asset":
		if !common.IsHexAddress(parts[2]) || parts[3] == "" {
			return AppRoute{Kind: RouteUnhandled}, nil
		}
		return AppRoute{Kind: RouteNFTItem, Address: parts[2], TokenID: parts[3]}, nil

	case len(parts) == 3 && parts[0] == "nfts" && parts[1] == "collection":
		if !common.IsHexAddress(parts[2]) {
			return AppRoute{Kind: RouteUnhandled}, nil
		}
		return AppRoute{Kind: RouteNFTCollection, Address: parts[2]}, nil

	case len(parts) == 3 && parts[0] == "tokens":
		chainID, err := chains.FromWebAppLink(parts[1])
		if err != nil {
			return AppRoute{}, err
		}
		currencyID := chains.CurrencyID(chainID, parts[2])
		if strings.EqualFold(parts[2], nativeAddress) {
			currencyID = chains.NativeCurrencyID(chainID)
		}
		return AppRoute{Kind: RouteTokenDetails, CurrencyID: currencyID}, nil

	case parts[0] == "tokens" && len(parts) <= 2,
		len(parts) >= 2 && len(parts) <= 3 && parts[0] == "explore" && parts[1] == "tokens":
		route := AppRoute{Kind: RouteTopTokens, Metric: strings.ToUpper(q.Get("metric"))}
		network := ""
		if parts[0] == "tokens" && len(parts) == 2 {
			network = parts[1]
		} else if parts[0] == "explore" && len(parts) == 3 {
			network = parts[2]
		}
		if network != "" {
			chainID, err := chains.FromWebAppLink(network)
			if err != nil {
				return AppRoute{}, err
			}
			route.ChainID = &chainID
		}
		return route, nil

	case len(parts) == 2 && parts[0] == "address":
		address := parts[1]
		if !common.IsHexAddress(address) {
			return AppRoute{Kind: RouteUnhandled}, nil
		}
		if accounts != nil {
			if strings.EqualFold(accounts.ActiveAddress(), address) {
				return AppRoute{Kind: RouteNone, Address: address}, nil
			}
			if accounts.HasAccount(address) {
				return AppRoute{Kind: RouteSwitchAccount, Address: address}, nil
			}
		}
		return AppRoute{Kind: RouteExternalProfile, Address: address}, nil

	case len(parts) == 1 && parts[0] == "buy":
		route := AppRoute{Kind: RouteBuy, TokenInputMode: q.Get("isTokenInputMode") == "true"}
		if v, ok := param(q, "value"); ok {
			route.Amount = &v
		}
		if v, ok := param(q, "currencyCode"); ok {
			route.CurrencyCode = &v
		}
		if v := q.Get("providers"); v != "" {
			for _, p := range strings.Split(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					route.Providers = append(route.Providers, strings.ToUpper(p))
				}
			}
		}
		return route, nil
	}
	return AppRoute{Kind: RouteUnhandled}, nil
}
