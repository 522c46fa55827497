package chains

import (
	"fmt"
	"strconv"
	"strings"
)

type Blockchain struct {
	ID    int
	IDHex string
	// Name is the network name used in web app links, e.g. /tokens/polygon/0x...
	Name         string
	Label        string
	NativeSymbol string
}

const (
	Mainnet  = 1
	Sepolia  = 11155111
	eip155NS = "eip155"
)

var (
	Array = []*Blockchain{
		{ID: Mainnet, IDHex: "0x1", Name: "ethereum", Label: "Ethereum", NativeSymbol: "ETH"},
		{ID: 130, IDHex: "0x82", Name: "unichain", Label: "Unichain", NativeSymbol: "ETH"},
		{ID: 137, IDHex: "0x89", Name: "polygon", Label: "Polygon", NativeSymbol: "POL"},
		{ID: 42161, IDHex: "0xa4b1", Name: "arbitrum", Label: "Arbitrum", NativeSymbol: "ETH"},
		{ID: 10, IDHex: "0xa", Name: "optimism", Label: "OP Mainnet", NativeSymbol: "ETH"},
		{ID: 8453, IDHex: "0x2105", Name: "base", Label: "Base", NativeSymbol: "ETH"},
		{ID: 56, IDHex: "0x38", Name: "bnb", Label: "BNB Chain", NativeSymbol: "BNB"},
		{ID: 43114, IDHex: "0xa86a", Name: "avalanche", Label: "Avalanche", NativeSymbol: "AVAX"},
		{ID: 42220, IDHex: "0xa4ec", Name: "celo", Label: "Celo", NativeSymbol: "CELO"},
		{ID: 81457, IDHex: "0x13e31", Name: "blast", Label: "Blast", NativeSymbol: "ETH"},
		{ID: 7777777, IDHex: "0x76adf1", Name: "zora", Label: "Zora", NativeSymbol: "ETH"},
		{ID: 324, IDHex: "0x144", Name: "zksync", Label: "ZKsync", NativeSymbol: "ETH"},
		{ID: 480, IDHex: "0x1e0", Name: "worldchain", Label: "World Chain", NativeSymbol: "ETH"},
		{ID: Sepolia, IDHex: "0xaa36a7", Name: "sepolia", Label: "Sepolia", NativeSymbol: "ETH"},
	}

	Mapping = map[int]*Blockchain{}

	byName = map[string]*Blockchain{}
)

func init() {
	for _, c := range Array {
		Mapping[c.ID] = c
		byName[c.Name] = c
	}
	// legacy web app name
	byName["mainnet"] = Mapping[Mainnet]
}

// Get returns the chain registered under id.
func Get(id int) (*Blockchain, bool) {
	c, ok := Mapping[id]
	return c, ok
}

func IsSupported(id int) bool {
	_, ok := Mapping[id]
	return ok
}

// FromWebAppLink maps a web app network name to its chain id.
func FromWebAppLink(name string) (int, error) {
	c, ok := byName[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("Network \"%s\" can not be mapped", name)
	}
	return c.ID, nil
}

// ToEIP155 formats id as a CAIP-2 chain id, eip155:<id>.
func ToEIP155(id int) string {
	return eip155NS + ":" + strconv.Itoa(id)
}

// FromEIP155 parses eip155:<id>, and also accepts the CAIP-10 form
// eip155:<id>:<address>.
func FromEIP155(s string) (int, bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != eip155NS {
		return 0, false
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// AccountFromEIP155 returns the address part of eip155:<id>:<address>.
func AccountFromEIP155(s string) (string, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] != eip155NS || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// CurrencyID builds the <chainId>-<address> currency id used by token deep links.
func CurrencyID(chainID int, address string) string {
	return strconv.Itoa(chainID) + "-" + address
}

// NativeCurrencyID is the currency id of the chain's native asset.
func NativeCurrencyID(chainID int) string {
	symbol := "ETH"
	if c, ok := Mapping[chainID]; ok {
		symbol = c.NativeSymbol
	}
	return CurrencyID(chainID, symbol)
}
