package aws

import (
	"context"
	"encoding/json"
	"time"

	"moff.io/moff-wallet/internal/deeplink"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

// AllowlistLoader reads the browser allowlist document, {"allowedUrls":[...]},
// from the S3 object key.
func (s *Clients) AllowlistLoader(key string) deeplink.Loader {
	return func(ctx context.Context) (deeplink.Allowlist, error) {
		data, err := s.GetObjectFromS3(ctx, key)
		if err != nil {
			return deeplink.Allowlist{}, err
		}
		var list deeplink.Allowlist
		if err := json.Unmarshal(data, &list); err != nil {
			return deeplink.Allowlist{}, errors.WrapAndReport(err, "decode browser allowlist")
		}
		return list, nil
	}
}

// RefreshAllowlist reloads list every interval until ctx is done.
func RefreshAllowlist(ctx context.Context, list *deeplink.RefreshingAllowlist, interval time.Duration) {
	if err := list.Refresh(ctx); err != nil {
		log.Error(err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := list.Refresh(ctx); err != nil {
				log.Error(err)
			}
		}
	}
}
