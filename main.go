package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ChatPipe/global"
	"ChatPipe/module/chat/message"
	"ChatPipe/module/chat/readstate"
	"ChatPipe/module/chat/seq"
	chatSrv "ChatPipe/service/chat"
	ka "ChatPipe/service/kafka"
	"ChatPipe/service/natsx"
	"ChatPipe/service/storage"
	redisSrv "ChatPipe/service/storage/redis"
	"ChatPipe/tools/ids"

	"github.com/Shopify/sarama"
	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var configPath = flag.String("config", "", "optional JSON config overlay")

func main() {
	flag.Parse()
	defer glog.Flush()

	cfg, err := global.Load(*configPath)
	if err != nil {
		glog.Fatalf("[Boot] load config: %v", err)
	}
	ids.SetNodeID(cfg.Gateway.NodeID)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Redis: sequence counters + fast-path markers.
	if err := redisSrv.InitRedis(redisSrv.Config{
		Addr: cfg.Redis.Addr, Password: cfg.Redis.Password,
		DB: cfg.Redis.DB, PoolSize: cfg.Redis.PoolSize,
	}); err != nil {
		glog.Fatalf("[Boot] redis: %v", err)
	}
	rdb := redisSrv.GetRedis()

	// Postgres: durable message + read-receipt stores.
	pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		glog.Fatalf("[Boot] postgres: %v", err)
	}
	defer pool.Close()

	msgDB := message.NewPgDB(pool)
	receipts := readstate.NewPgStore(pool)
	markers := storage.NewReadMarkerStore(rdb)

	// Ordering generator.
	sequencer := seq.NewSequencer(seq.NewRedisCounter(rdb, msgDB))
	tsid := seq.NewTimestampIDGen()

	// Broadcast bus.
	nc, err := natsx.NewNatsxClient(natsx.NatsxConfig{
		Servers:  cfg.Nats.Servers,
		Name:     cfg.Nats.Name + "-" + uuid.NewString()[:8],
		Username: cfg.Nats.Username,
		Password: cfg.Nats.Password,
	})
	if err != nil {
		glog.Fatalf("[Boot] nats: %v", err)
	}
	defer func() { _ = nc.Close() }()
	if err := nc.RegisterRoute(natsx.NatsxRoute{
		Biz: message.BizBroadcast, Subject: cfg.Nats.Subject,
	}); err != nil {
		glog.Fatalf("[Boot] nats route: %v", err)
	}
	bus := natsx.NewNatsxProducer(nc)

	// Kafka: durable read-state queue.
	applyKafkaConfig(cfg.Kafka)
	if ka.Cfg.AutoCreateTopicsOnStart {
		admin, err := sarama.NewClusterAdmin(ka.Cfg.Brokers, ka.BuildBaseConfig())
		if err != nil {
			glog.Fatalf("[Kafka] create admin: %v", err)
		}
		if err := ka.EnsureTopics(admin, []string{ka.Cfg.Topic, ka.Cfg.DeadLetterTopic}); err != nil {
			glog.Fatalf("[Kafka] ensure topics: %v", err)
		}
		_ = admin.Close()
	}
	if err := ka.InitKafkaClient(); err != nil {
		glog.Fatalf("[Kafka] init client: %v", err)
	}
	if err := ka.InitSyncProducerFromClient(); err != nil {
		glog.Fatalf("[Kafka] init producer: %v", err)
	}

	// Read-state pipeline.
	queue := readstate.KafkaQueue{Topic: ka.Cfg.Topic}
	fallback := readstate.NewFallbackQueue(queue, cfg.ReadState.FallbackMax,
		time.Duration(cfg.ReadState.FallbackRetrySec)*time.Second)
	go fallback.Run(ctx)

	readSvc := readstate.NewService(markers, receipts, bus, queue, fallback)
	msgSvc := message.NewService(msgDB, sequencer, tsid, bus)

	persister := readstate.NewPersister(receipts)
	go func() {
		h := &ka.BatchGroupHandler{
			MaxBatch:    ka.Cfg.BatchSize,
			FlushEvery:  ka.Cfg.BatchFlush,
			MaxAttempts: ka.Cfg.MaxDeliveryAttempts,
			Handle:      persister.HandleBatch,
			DeadLetter:  deadLetterRoute,
		}
		if err := ka.StartBatchConsumerGroup(ctx, ka.Cfg.Brokers, ka.Cfg.GroupID,
			[]string{ka.Cfg.Topic}, h); err != nil {
			glog.Errorf("[Kafka] persister group: %v", err)
		}
	}()

	reconciler := readstate.NewReconciler(receipts, markers)
	go func() {
		h := &ka.BatchGroupHandler{
			MaxBatch:    64,
			FlushEvery:  time.Second,
			MaxAttempts: ka.Cfg.MaxDeliveryAttempts,
			Handle:      reconciler.HandleBatch,
		}
		if err := ka.StartBatchConsumerGroup(ctx, ka.Cfg.Brokers, ka.Cfg.GroupID+"-dlq",
			[]string{ka.Cfg.DeadLetterTopic}, h); err != nil {
			glog.Errorf("[Kafka] reconciler group: %v", err)
		}
	}()

	sweeper := readstate.NewSweeper(receipts, markers,
		time.Duration(cfg.ReadState.SweepIntervalSec)*time.Second,
		time.Duration(cfg.ReadState.StalenessSec)*time.Second)
	go sweeper.Run(ctx)

	// Gateway delivery: one long-lived bus subscription per instance.
	mgr := chatSrv.NewConnManager(uuid.NewString())
	fan := chatSrv.NewFanout(cfg.Gateway.FanoutWorkers, cfg.Gateway.FanoutQueue)
	dispatcher := chatSrv.NewDispatcher(mgr, fan)
	consumer := natsx.NewNatsxConsumer(nc)
	if err := consumer.Subscribe(message.BizBroadcast, dispatcher.HandleBroadcast); err != nil {
		glog.Fatalf("[Boot] bus subscribe: %v", err)
	}

	r := chatSrv.NewRouter(mgr)
	registerPipelineRoutes(r, msgSvc, readSvc)

	srv := &http.Server{Addr: cfg.Gateway.Addr, Handler: r}
	go func() {
		glog.Infof("[Boot] gateway listening on %s", cfg.Gateway.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Errorf("[Boot] http server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	glog.Info("[Boot] shut down")
}

func applyKafkaConfig(kc global.KafkaConfig) {
	ka.Cfg.Brokers = kc.Brokers
	ka.Cfg.GroupID = kc.GroupID
	ka.Cfg.Topic = kc.Topic
	ka.Cfg.DeadLetterTopic = kc.DeadLetterTopic
	ka.Cfg.PartitionsPerTopic = kc.Partitions
	ka.Cfg.ReplicationFactor = kc.ReplicationFactor
	ka.Cfg.BatchSize = kc.BatchSize
	ka.Cfg.BatchFlush = time.Duration(kc.BatchFlushMS) * time.Millisecond
	ka.Cfg.MaxDeliveryAttempts = kc.MaxDeliveryAttempts
}

// deadLetterRoute forwards an exhausted batch onto the dead-letter topic.
func deadLetterRoute(msgs []*sarama.ConsumerMessage) error {
	for _, m := range msgs {
		if err := ka.SendKeyed(ka.Cfg.DeadLetterTopic, string(m.Key), m.Value); err != nil {
			return err
		}
	}
	return nil
}

// Thin invocation surface for the exposed operations; the real REST/DTO
// layer lives in another service.
func registerPipelineRoutes(r *gin.Engine, msgSvc *message.Service, readSvc *readstate.Service) {
	r.POST("/internal/messages", func(c *gin.Context) {
		var req struct {
			ChannelID int64  `json:"channel_id"`
			AuthorID  string `json:"author_id"`
			Content   string `json:"content"`
			ParentID  string `json:"parent_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		res, err := msgSvc.SubmitMessage(c.Request.Context(), req.ChannelID, req.AuthorID, req.Content, req.ParentID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"msg_id": res.MsgID, "seq": res.Seq, "timestamp_id": res.TimestampID})
	})

	r.POST("/internal/read-position", func(c *gin.Context) {
		var req struct {
			UserID      string `json:"user_id"`
			ChannelID   int64  `json:"channel_id"`
			TimestampID string `json:"timestamp_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := readSvc.UpdateReadPosition(c.Request.Context(), req.UserID, req.ChannelID, req.TimestampID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.GET("/internal/read-position", func(c *gin.Context) {
		userID := c.Query("user_id")
		channelID, _ := strconv.ParseInt(c.Query("channel_id"), 10, 64)
		v, ok, err := readSvc.GetReadPosition(c.Request.Context(), userID, channelID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		c.JSON(http.StatusOK, gin.H{"timestamp_id": v})
	})
}
