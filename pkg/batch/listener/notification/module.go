package notification

import (
	"context"

	"go.uber.org/fx"

	coreport "github.com/tigerroll/salesync/pkg/batch/core/application/port"
	config "github.com/tigerroll/salesync/pkg/batch/core/config"
	"github.com/tigerroll/salesync/pkg/batch/support/util/logger"
)

// ListenerResult contributes zero or one job listener.
type ListenerResult struct {
	fx.Out
	Listeners []coreport.JobRunListener `group:"job_listeners,flatten"`
}

// NewNotificationListeners returns the AMQP completion listener, or nothing when no broker URL is configured.
func NewNotificationListeners(lc fx.Lifecycle, cfg *config.Config) ListenerResult {
	amqpCfg := cfg.Salesync.Notification.AMQP
	if amqpCfg.URL == "" {
		logger.Debugf("Notification: no AMQP URL configured, completion messages disabled.")
		return ListenerResult{}
	}
	publisher := NewConnectionPublisher(amqpCfg.URL, amqpCfg.Exchange)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return publisher.Close() },
	})
	notifier := NewAMQPNotifier(publisher, amqpCfg.Exchange, amqpCfg.RoutingKey)
	logger.Infof("Notification: publishing job completions to exchange '%s' (%s).", amqpCfg.Exchange, amqpCfg.RoutingKey)
	return ListenerResult{Listeners: []coreport.JobRunListener{NewNotificationListener(notifier)}}
}

// Module provides notification-related components.
var Module = fx.Options(
	fx.Provide(NewNotificationListeners),
)
