package deeplink

// Action is the closed set of things a deep link can ask the wallet to do.
type Action string

const (
	UniswapWebLink                  Action = "uniswapWebLink"
	UniswapWalletConnect            Action = "uniswapWalletConnect"
	WalletConnectAsParam            Action = "walletConnectAsParam"
	UniswapWidget                   Action = "uniswapWidget"
	Scantastic                      Action = "scantastic"
	TransactionScreen               Action = "transactionScreen"
	ShowTransactionAfterFiatOnRamp  Action = "fiatOnRamp"
	ShowTransactionAfterFiatOffRamp Action = "fiatOffRamp"
	SwapScreen                      Action = "swapScreen"
	UwuLink                         Action = "uwuLink"
	SkipNonWalletConnect            Action = "skipNonWalletConnect"
	UniversalWalletConnectLink      Action = "universalWalletConnectLink"
	WalletConnect                   Action = "walletConnect"
	InAppBrowser                    Action = "inAppBrowser"
	Error                           Action = "error"
	Unknown                         Action = "unknown"
	TokenDetails                    Action = "tokenDetails"
	FiatOnRampScreen                Action = "fiatOnRampScreen"
)

// IsWalletConnect reports whether a carries a WalletConnect URI to pair with.
func (a Action) IsWalletConnect() bool {
	switch a {
	case UniswapWalletConnect, WalletConnectAsParam, UniversalWalletConnectLink, WalletConnect:
		return true
	}
	return false
}

const (
	defaultScreen = "other"
	defaultSource = "unknown"
)

// Payload holds the base fields every result carries plus the optional
// per-action fields. A nil pointer means the field is absent.
type Payload struct {
	URL    string `json:"url"`
	Screen string `json:"screen"`
	Source string `json:"source"`

	URLPath               *string `json:"urlPath,omitempty"`
	WcURI                 *string `json:"wcUri,omitempty"`
	UserAddress           *string `json:"userAddress,omitempty"`
	ScantasticQueryParams *string `json:"scantasticQueryParams,omitempty"`
	CurrencyID            *string `json:"currencyId,omitempty"`
	TargetURL             *string `json:"targetUrl,omitempty"`
	OpenInApp             *bool   `json:"openInApp,omitempty"`
	MoonpayOnly           *bool   `json:"moonpayOnly,omitempty"`
	MoonpayCurrencyCode   *string `json:"moonpayCurrencyCode,omitempty"`
	Amount                *string `json:"amount,omitempty"`
}

// Result is the outcome of classifying one URL.
type Result struct {
	Action Action  `json:"action"`
	Data   Payload `json:"data"`
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
