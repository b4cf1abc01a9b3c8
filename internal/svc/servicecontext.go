package svc

import (
	"log"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/syncx"

	"broker-api/internal/broker"
	cachekeys "broker-api/internal/cache"
	"broker-api/internal/config"
	"broker-api/internal/ingest"
	"broker-api/internal/model"
	"broker-api/pkg/journal"
	pricefeedpkg "broker-api/pkg/pricefeed"
)

type ServiceContext struct {
	Config config.Config

	DBConn sqlx.SqlConn
	Cache  gocache.Cache
	TTL    cachekeys.TTLSet

	PriceTicksModel    model.PriceTicksModel
	TradesModel        model.TradesModel
	HeldPositionsModel model.HeldPositionsModel
	AssetsModel        model.AssetsModel

	PriceStore *broker.PriceStore
	TradeStore broker.TradeStore
	Executor   *broker.Executor

	PricefeedConfig *pricefeedpkg.Config
	PricefeedClient *pricefeedpkg.Client
	Ingest          *ingest.Service
}

func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{
		Config: c,
		TTL:    cachekeys.NewTTLSet(c.TTL),
	}

	if c.Redis.Host != "" {
		rds, err := redis.NewRedis(c.Redis)
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		svc.Cache = gocache.NewNode(rds, syncx.NewSingleFlight(), gocache.NewStat(cachekeys.Namespace), model.ErrNotFound)
	}

	if c.Postgres.DSN != "" {
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
		svc.DBConn = conn
		svc.PriceTicksModel = model.NewPriceTicksModel(conn)
		svc.TradesModel = model.NewTradesModel(conn)
		svc.HeldPositionsModel = model.NewHeldPositionsModel(conn)
		svc.AssetsModel = model.NewAssetsModel(conn)

		svc.PriceStore = broker.NewPriceStore(broker.PriceStoreConfig{
			Ticks: svc.PriceTicksModel,
			Cache: svc.Cache,
			TTL:   svc.TTL,
		})
		svc.TradeStore = broker.NewTradeStore(conn, svc.TradesModel, svc.HeldPositionsModel)
		svc.Executor = broker.NewExecutor(broker.ExecutorConfig{
			Assets: svc.AssetsModel,
			Prices: svc.PriceStore,
			Store:  svc.TradeStore,
		})
	}

	if c.Pricefeed.Value != nil {
		feedCfg := c.Pricefeed.Value
		svc.PricefeedConfig = feedCfg
		svc.PricefeedClient = feedCfg.BuildClient()

		if svc.PriceStore != nil {
			var journalWriter *journal.Writer
			if c.Journal.Enabled {
				journalWriter = journal.NewWriter(c.Journal.Dir)
			}
			ingestSvc, err := ingest.NewService(ingest.Config{
				Source:  svc.PricefeedClient,
				Sink:    svc.PriceStore,
				Symbols: feedCfg.Symbols,
				Timeout: feedCfg.Timeout,
				Journal: journalWriter,
			})
			if err != nil {
				log.Fatalf("failed to build ingest service: %v", err)
			}
			svc.Ingest = ingestSvc
		}
	}

	return svc
}
