package deeplink

import (
	"context"

	util "moff.io/moff-wallet/pkg/common"
	"moff.io/moff-wallet/pkg/log"
)

// LogNavigator records navigation targets for a headless wallet, which
// has no screens to show.
type LogNavigator struct {
	Logger log.Logger
}

func (n LogNavigator) Navigate(_ context.Context, target Target) error {
	logger := n.Logger
	if logger == nil {
		logger = log.Tagged()
	}
	fields := log.Fields{"action": target.Action, "url": target.Data.URL, "screen": target.Data.Screen}
	if target.Route != nil {
		fields["route"] = target.Route.Kind
	}
	if target.Data.UserAddress != nil {
		fields["account"] = util.Shorten(*target.Data.UserAddress, 6)
	}
	if target.Scantastic != nil {
		fields["scantastic"] = util.MustGetJSONString(target.Scantastic)
	}
	if target.Data.TargetURL != nil {
		fields["target_url"] = *target.Data.TargetURL
	}
	logger.Info(log.Tags{File: "navigator", Function: "Navigate"}, "navigate", fields)
	return nil
}
