package stores

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"eazyfind/internal/config"
	"eazyfind/internal/model"
	"eazyfind/internal/pkg/logger"
	"eazyfind/internal/pkg/ratelimit"
	"eazyfind/internal/scraper"
	"eazyfind/internal/scraper/renderapi"

	"github.com/redis/go-redis/v9"
)

// Register 将全部商店适配器注册到 r。
func Register(r *scraper.Registry) {
	r.Register(model.StoreRedStore, NewRedStore)
	r.Register(model.StoreThreeDPlanet, NewThreeDPlanet)
	r.Register(model.StoreYerevanMobile, NewYerevanMobile)
	r.Register(model.StoreZigzag, NewZigzag)
	r.Register(model.StoreVega, NewVega)
	r.Register(model.StoreVdComputers, NewVdComputers)
	r.Register(model.StoreVLV, NewVLV)
	r.Register(model.StoreMobileCentre, NewMobileCentre)
	r.Register(model.StoreVenus, NewVenus)
	r.Register(model.StoreAllCell, NewAllCell)
}

// DefaultRegistry 返回已注册全部商店的注册表。
func DefaultRegistry() *scraper.Registry {
	r := scraper.NewRegistry()
	Register(r)
	return r
}

// Build 按配置为每个启用的商店装配获取器与限流器，并构造适配器。
//
// 参数:
//
//	cfg: 全局配置
//	log: 日志记录器
//	rdb: Redis 客户端；为 nil 或未开启 shared_limit 时使用进程内限流
//
// 返回值:
//
//	scraper.Set: 商店 -> 适配器
//	error: 获取器构造失败
func Build(cfg *config.Config, log *slog.Logger, rdb *redis.Client) (scraper.Set, error) {
	log = logger.OrDiscard(log)
	reg := DefaultRegistry()
	set := make(scraper.Set)

	for _, store := range reg.Stores() {
		opts := cfg.Scraper.StoreOptions(store.String())
		if opts.Disabled {
			log.Info("store disabled by config", slog.String("store", store.String()))
			continue
		}

		fetcher, strategy, err := buildFetcher(cfg, store, opts, log, rdb)
		if err != nil {
			return nil, fmt.Errorf("build fetcher for %s: %w", store, err)
		}

		adapter, err := reg.New(store, scraper.Deps{
			Logger:       log,
			Fetcher:      scraper.Instrument(store.String(), strategy, fetcher),
			WaitSelector: opts.WaitSelector,
			MaxErrors:    cfg.Scraper.MaxErrorCountToContinue,
			MaxPages:     cfg.Scraper.MaxPages,
		})
		if err != nil {
			return nil, err
		}
		set[store] = adapter
		log.Debug("store adapter ready",
			slog.String("store", store.String()),
			slog.String("strategy", strategy))
	}
	return set, nil
}

func buildFetcher(cfg *config.Config, store model.StoreKey, opts config.StoreOverride, log *slog.Logger, rdb *redis.Client) (scraper.Fetcher, string, error) {
	limiter := newLimiter(cfg.Scraper, store, opts, log, rdb)

	if opts.Strategy == config.StrategyRender {
		c := renderapi.New(cfg.RenderAPI, store.String(), scraper.NewSession(),
			renderapi.WithLimiter(limiter),
			renderapi.WithLogger(log),
			renderapi.WithHTTPClient(newHTTPClient(cfg.Scraper.RequestTimeout)))
		return c, scraper.StrategyRender, nil
	}

	httpOpts := []scraper.HTTPOption{
		scraper.WithLimiter(limiter),
		scraper.WithUserAgent(cfg.Scraper.UserAgent),
		scraper.WithLogger(log),
	}
	if store == model.StoreVLV {
		httpOpts = append(httpOpts, scraper.WithoutBlockDetection())
	}
	strategy := scraper.StrategyDirect
	if opts.UseProxy {
		proxyURL := cfg.Proxy.URL()
		if proxyURL == "" {
			log.Warn("proxy requested but not configured, using direct connection",
				slog.String("store", store.String()))
		} else {
			httpOpts = append(httpOpts, scraper.WithProxy(proxyURL))
			strategy = scraper.StrategyProxy
		}
	}
	f, err := scraper.NewHTTPFetcher(cfg.Scraper.RequestTimeout, httpOpts...)
	if err != nil {
		return nil, "", err
	}
	return f, strategy, nil
}

func newLimiter(sc config.ScraperConfig, store model.StoreKey, opts config.StoreOverride, log *slog.Logger, rdb *redis.Client) scraper.Limiter {
	rps := sc.RateLimit
	if opts.RateLimit > 0 {
		rps = opts.RateLimit
	}
	burst := sc.RateBurst
	if burst < 1 {
		burst = 1
	}
	if sc.SharedLimit && rdb != nil {
		return ratelimit.NewRedisLimiter(rdb, log, store.String(), rps, burst)
	}
	return ratelimit.NewLocalLimiter(rps, int(burst))
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
