package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ DeliveryService = (*Coordinator)(nil)
	_ DueDispatcher   = (*Coordinator)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
