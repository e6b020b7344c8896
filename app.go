package main

import (
	"context"
	"net/http"
	"time"

	"PPChat/data/database/memdb"
	"PPChat/data/database/mgo/repo"
	"PPChat/global/config"
	"PPChat/logger"
	mid "PPChat/middleware"
	midsec "PPChat/middleware/security"
	"PPChat/module/chat"
	chatsvc "PPChat/module/chat/service"
	"PPChat/module/message"
	msgmodel "PPChat/module/message/model"
	msgsvc "PPChat/module/message/service"
	"PPChat/module/notification"
	notisvc "PPChat/module/notification/service"
	"PPChat/module/user"
	usersvc "PPChat/module/user/service"
	gateway "PPChat/service/chat"
	gwhandlers "PPChat/service/chat/handlers"
	"PPChat/service/events"
	"PPChat/service/kafka"
	"PPChat/service/mgo"
	"PPChat/service/natsx"
	"PPChat/service/outbox"
	"PPChat/service/rpc"
	"PPChat/service/storage"
	rdsutil "PPChat/service/storage/redis"
	"PPChat/tools/errs"
	jwtlib "PPChat/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// store 所有服务依赖的存储能力，mongo 与内存实现都满足
type store interface {
	usersvc.Repository
	chatsvc.Repository
	msgsvc.Repository
	notisvc.Repository
	outbox.Store
}

var (
	_ store = (*repo.Mongo)(nil)
	_ store = (*memdb.DB)(nil)
)

// App 进程内所有组件；按 newApp 的顺序构建，按 close 的顺序释放
type App struct {
	cfg *config.Config

	mongo    *mgo.MongoManager
	rdb      *redis.Client
	store    store
	bus      events.Bus
	presence storage.Presence

	relay   *outbox.Relay
	gateway *gateway.Server
	engine  *gin.Engine
	health  *rpc.HealthServer
}

func newApp(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}
	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	if err := a.initPresence(ctx); err != nil {
		return nil, err
	}
	if err := a.initBus(); err != nil {
		return nil, err
	}

	jwt := jwtlib.Options{Secret: []byte(cfg.JWT.Secret), Alg: cfg.JWT.Alg, TTL: cfg.JWT.TTL}
	users := usersvc.New(a.store, a.presence, usersvc.LogMailer{}, usersvc.Options{
		JWT:       jwt,
		OTPTTL:    cfg.OTP.TTL,
		OTPDigits: cfg.OTP.Digits,
	})
	dir := chatsvc.NewDirectory(a.store)
	msgs := msgsvc.New(a.store, msgsvc.WithClientIndex(a.clientIndex()))
	notis := notisvc.New(a.store)

	// message.created -> 通知扇出；Start 之前订阅
	if err := a.bus.Subscribe(msgmodel.EventMessageCreated, notis.HandleEvent); err != nil {
		return nil, err
	}
	a.relay = outbox.NewRelay(a.store, a.bus, outbox.Options{
		Interval:    cfg.Outbox.Interval,
		BatchSize:   cfg.Outbox.BatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})

	httpAuth := midsec.DefaultOptions(jwt, cfg.Cookie.Name)
	wsAuth := midsec.DefaultOptions(jwt, cfg.Cookie.Name)
	wsAuth.QueryParam = "token"
	a.gateway = gateway.NewServer(cfg.Gateway, wsAuth, a.presence, cfg.NodeID)
	gwhandlers.Register(a.gateway, dir, msgs)

	gin.SetMode(cfg.HTTP.Mode)
	engine := gin.New()
	mgr := mid.NewManager()
	mgr.Add(mid.CORS(cfg.CORS.AllowOrigins))
	engine.Use(mid.Recovery(), mid.Logger(), mgr.Use())

	routes := mid.NewRoutes(engine, midsec.Middleware(httpAuth))
	user.NewHandler(users, user.CookieOptions{
		Name:   cfg.Cookie.Name,
		Domain: cfg.Cookie.Domain,
		Secure: cfg.Cookie.Secure,
		MaxAge: cfg.JWT.TTL,
	}).Register(routes)
	chat.NewHandler(dir).Register(routes)
	message.NewHandler(msgs).Register(routes)
	notification.NewHandler(notis).Register(routes)
	engine.GET(cfg.Gateway.Path, a.gateway.HandleWS)
	engine.GET("/health", a.handleHealth)
	a.engine = engine

	a.health = rpc.NewHealthServer(5*time.Second, a.probes())
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.cfg.Storage.Driver == config.StorageMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		a.store = memdb.New()
		return nil
	}
	a.mongo = mgo.NewManager(a.cfg.Mongo.Mongoutil())
	a.mongo.StartAsync(ctx)
	wctx, cancel := context.WithTimeout(ctx, a.cfg.Mongo.ConnectTimeout)
	defer cancel()
	if err := a.mongo.WaitReady(wctx); err != nil {
		return err
	}
	m := repo.New(a.mongo.GetDB(), a.mongo.GetTx())
	if err := m.EnsureIndexes(ctx); err != nil {
		return errs.WrapMsg(err, "ensure indexes")
	}
	a.store = m
	return nil
}

func (a *App) initPresence(ctx context.Context) error {
	if a.cfg.Redis.Addr == "" {
		a.presence = storage.NewMemoryPresence()
		return nil
	}
	rdb, err := rdsutil.Open(ctx, rdsutil.Config{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})
	if err != nil {
		return err
	}
	a.rdb = rdb
	a.presence = storage.NewRedisPresence(rdb, a.cfg.Redis.PresenceTTL)
	return nil
}

func (a *App) clientIndex() msgsvc.ClientIndex {
	if a.rdb == nil {
		return msgsvc.NewMemoryClientIndex(a.cfg.Redis.ClientIDTTL)
	}
	return msgsvc.NewRedisClientIndex(a.rdb, a.cfg.Redis.ClientIDTTL)
}

func (a *App) initBus() error {
	switch a.cfg.Events.Driver {
	case config.EventsNATS:
		b, err := natsx.NewNatsManager(a.cfg.NATS)
		if err != nil {
			return err
		}
		a.bus = b
	case config.EventsKafka:
		b, err := kafka.NewKafkaBus(a.cfg.Kafka)
		if err != nil {
			return err
		}
		a.bus = b
	default:
		a.bus = events.NewMemoryBus()
	}
	logger.Info("event bus ready", zap.String("driver", a.cfg.Events.Driver))
	return nil
}

func (a *App) probes() map[string]rpc.Probe {
	ps := map[string]rpc.Probe{}
	if a.mongo != nil {
		ps["mongo"] = func(ctx context.Context) error {
			if !a.mongo.Healthy() {
				return errs.New("mongo unhealthy")
			}
			return a.mongo.Client().Ping(ctx)
		}
	}
	if a.rdb != nil {
		ps["redis"] = func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() }
	}
	return ps
}

func (a *App) mongoState() string {
	switch {
	case a.mongo == nil:
		return "memory"
	case a.mongo.Healthy():
		return "connected"
	default:
		return "disconnected"
	}
}

// handleHealth GET /health
func (a *App) handleHealth(c *gin.Context) {
	state := a.mongoState()
	status := http.StatusOK
	body := "OK"
	if state == "disconnected" {
		status = http.StatusServiceUnavailable
		body = "DEGRADED"
	}
	c.JSON(status, gin.H{"status": body, "mongo": state, "time": time.Now().UTC()})
}

func (a *App) close() {
	if a.gateway != nil {
		a.gateway.Shutdown()
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			logger.Warn("close event bus", zap.Error(err))
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.mongo.Disconnect(ctx); err != nil {
			logger.Warn("close mongo", zap.Error(err))
		}
	}
}
