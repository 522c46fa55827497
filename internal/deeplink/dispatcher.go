package deeplink

import (
	"context"
	"strings"

	"moff.io/moff-wallet/internal/databus"
	util "moff.io/moff-wallet/pkg/common"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

// Event is one deep link delivered to the wallet.
type Event struct {
	URL       string `json:"url"`
	ColdStart bool   `json:"cold_start"`
	// Source overrides the source query param, e.g. "push" for links
	// arriving through notifications.
	Source string `json:"source,omitempty"`
}

// Target is what the Navigator is asked to show.
type Target struct {
	Action     Action            `json:"action"`
	Data       Payload           `json:"data"`
	Route      *AppRoute         `json:"route,omitempty"`
	Scantastic *ScantasticParams `json:"scantastic,omitempty"`
}

// Pairer starts a WalletConnect pairing.
type Pairer interface {
	Pair(ctx context.Context, uri string) error
}

// Navigator shows a screen of the wallet.
type Navigator interface {
	Navigate(ctx context.Context, target Target) error
}

// Accounts are the wallet accounts known to the dispatcher.
type Accounts interface {
	AccountLookup
	SetActive(address string) error
}

// Dispatcher parses deep links and hands them to the part of the wallet
// that handles them.
type Dispatcher struct {
	parser    *Parser
	pairer    Pairer
	navigator Navigator
	accounts  Accounts
	publisher databus.Publisher
	logger    log.Logger
}

type DispatcherOption func(*Dispatcher)

func WithPublisher(p databus.Publisher) DispatcherOption {
	return func(d *Dispatcher) { d.publisher = p }
}

func WithLogger(l log.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

func NewDispatcher(parser *Parser, pairer Pairer, navigator Navigator, accounts Accounts, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		parser:    parser,
		pairer:    pairer,
		navigator: navigator,
		accounts:  accounts,
		publisher: databus.LocalBus{},
		logger:    log.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Parse classifies raw without acting on it.
func (d *Dispatcher) Parse(raw string) Result {
	return d.parser.Parse(raw)
}

var ErrUnknownAccount = errors.New("deep link user address is not a wallet account")

// Handle parses e.URL and acts on it. Links naming an address the wallet
// does not hold are dropped with ErrUnknownAccount and not reported.
func (d *Dispatcher) Handle(ctx context.Context, e Event) (Result, error) {
	tags := log.Tags{File: "dispatcher", Function: "Handle"}
	result := d.parser.Parse(e.URL)
	if e.Source != "" && result.Data.Source == defaultSource {
		result.Data.Source = e.Source
	}

	err := d.route(ctx, result)
	if errors.Is(err, ErrUnknownAccount) {
		d.logger.Warn(tags, "dropping deep link", log.Fields{"url": e.URL, "action": result.Action})
		return result, err
	}
	if err != nil {
		d.logger.Error(tags, err.Error(), log.Fields{"url": e.URL, "action": result.Action})
	}

	if perr := d.publisher.Publish(&databus.DeepLinkOpened{
		Action:      string(result.Action),
		URL:         eventURL(result.Action, e.URL),
		Screen:      result.Data.Screen,
		IsColdStart: e.ColdStart,
		Source:      result.Data.Source,
	}); perr != nil {
		d.logger.Warn(tags, "publish deep link event failed", log.Fields{"err": perr})
	}
	return result, err
}

// eventURL hides WalletConnect links from analytics, their URIs carry the
// session's symmetric key.
func eventURL(action Action, raw string) string {
	if action.IsWalletConnect() {
		return "sha256:" + util.SHA256HexString([]byte(raw))
	}
	return raw
}

func (d *Dispatcher) route(ctx context.Context, result Result) error {
	data := result.Data
	switch {
	case result.Action.IsWalletConnect():
		if data.WcURI == nil {
			return nil
		}
		return d.pairer.Pair(ctx, *data.WcURI)

	case result.Action == UniswapWebLink:
		path := ""
		if data.URLPath != nil {
			path = *data.URLPath
		}
		route, err := RouteAppLink(path, data.URL, d.accounts)
		if err != nil {
			return err
		}
		switch route.Kind {
		case RouteNone, RouteUnhandled:
			return nil
		case RouteSwitchAccount:
			return d.accounts.SetActive(route.Address)
		}
		return d.navigator.Navigate(ctx, Target{Action: result.Action, Data: data, Route: &route})

	case result.Action == SwapScreen, result.Action == TransactionScreen,
		result.Action == ShowTransactionAfterFiatOnRamp, result.Action == ShowTransactionAfterFiatOffRamp:
		address := ""
		if data.UserAddress != nil {
			address = *data.UserAddress
		}
		if !d.ownsAccount(address) {
			return ErrUnknownAccount
		}
		if !strings.EqualFold(d.accounts.ActiveAddress(), address) {
			if err := d.accounts.SetActive(address); err != nil {
				return err
			}
		}
		return d.navigator.Navigate(ctx, Target{Action: result.Action, Data: data})

	case result.Action == FiatOnRampScreen:
		if data.UserAddress != nil && *data.UserAddress != "" && !d.ownsAccount(*data.UserAddress) {
			return ErrUnknownAccount
		}
		return d.navigator.Navigate(ctx, Target{Action: result.Action, Data: data})

	case result.Action == Scantastic:
		if data.ScantasticQueryParams == nil {
			return nil
		}
		params, err := ParseScantasticParams(*data.ScantasticQueryParams)
		if err != nil {
			return err
		}
		return d.navigator.Navigate(ctx, Target{Action: result.Action, Data: data, Scantastic: params})

	case result.Action == InAppBrowser, result.Action == TokenDetails,
		result.Action == UniswapWidget, result.Action == UwuLink:
		return d.navigator.Navigate(ctx, Target{Action: result.Action, Data: data})
	}
	return nil
}

func (d *Dispatcher) ownsAccount(address string) bool {
	return address != "" && d.accounts != nil && d.accounts.HasAccount(address)
}
