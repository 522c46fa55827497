package deeplink

import (
	"net/url"

	"github.com/google/uuid"

	"moff.io/moff-wallet/pkg/errors"
)

// ScantasticParams describe the browser extension asking to import the
// wallet over an encrypted channel.
type ScantasticParams struct {
	PubKey  string `json:"pubKey"`
	UUID    string `json:"uuid"`
	Vendor  string `json:"vendor,omitempty"`
	Model   string `json:"model,omitempty"`
	Browser string `json:"browser,omitempty"`
}

var ErrInvalidScantastic = errors.New("invalid scantastic params")

// ParseScantasticParams decodes the query string of a uniswap://scantastic link.
func ParseScantasticParams(query string) (*ScantasticParams, error) {
	q, err := url.ParseQuery(query)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidScantastic, err.Error())
	}
	params := &ScantasticParams{
		PubKey:  q.Get("pubKey"),
		UUID:    q.Get("uuid"),
		Vendor:  q.Get("vendor"),
		Model:   q.Get("model"),
		Browser: q.Get("browser"),
	}
	if params.PubKey == "" {
		return nil, errors.Wrap(ErrInvalidScantastic, "missing pubKey")
	}
	if _, err := uuid.Parse(params.UUID); err != nil {
		return nil, errors.Wrapf(ErrInvalidScantastic, "bad uuid %q", params.UUID)
	}
	return params, nil
}
