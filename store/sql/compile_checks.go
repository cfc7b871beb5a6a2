package sqlstore

import "github.com/goliatone/go-hookdelivery/core"

var (
	_ core.DeliveryStore          = (*DeliveryStore)(nil)
	_ core.ConfigStore            = (*ConfigStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
