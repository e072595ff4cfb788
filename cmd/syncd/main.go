// Command syncd runs the messaging core's two daemon halves in one process:
// the inbound HTTP endpoint that accepts HTNG SOAP notifications from the
// channel, and the outbound scheduler workers that drain the four logical
// queues toward the channel. The two halves communicate only through the
// durable stores and the event bus.
package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"htngsync/internal/config"
	"htngsync/internal/eventbus"
	"htngsync/internal/historylog"
	"htngsync/internal/htngxml"
	"htngsync/internal/inbound"
	"htngsync/internal/inboundwork"
	"htngsync/internal/mapping"
	"htngsync/internal/model"
	"htngsync/internal/outbound"
	"htngsync/internal/repository"
	"htngsync/internal/scheduler"
	"htngsync/internal/syncstate"
	"htngsync/internal/transport"
	"htngsync/internal/validation"
)

func main() {
	cfg := config.FromEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := eventbus.Connect(cfg.NATSURL)
	defer bus.Close()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("syncd: open postgres: %v", err)
	}
	defer db.Close()

	credentials, err := mapping.NewCredentialStore(db, credentialKey())
	if err != nil {
		log.Fatalf("syncd: credential store: %v", err)
	}

	history, err := historylog.NewSQLHistoryStore("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("syncd: history store: %v", err)
	}

	statusStore, err := syncstate.NewSQLStore("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("syncd: sync-status store: %v", err)
	}

	errorLog := historylog.SyncErrorLogger{Store: historylog.NewErrorLogStore(db, "postgres")}

	// The PMS adapter is deployment-specific (the core consumes the contract,
	// it does not implement it); the noop placeholder lets syncd run the
	// inbound/outbound plumbing without one.
	pms := noopPMS{}

	dispatcher := buildOutbound(cfg, bus, statusStore, credentials)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	if cfg.AMQPURL != "" {
		amqpQueue := bridgeDurableQueues(ctx, cfg.AMQPURL, dispatcher)
		if amqpQueue != nil {
			defer amqpQueue.Close()
		}
	}

	go dispatcher.RunRecovery(ctx, outbound.DefaultRecoveryInterval)

	producer := &outbound.Producer{PMS: pms, Dispatcher: dispatcher, Rules: validation.NewRuleSet(pms, 0, 0)}
	periodic := startPeriodicFullSync(ctx, credentials, producer)
	if periodic != nil {
		defer periodic.Stop()
	}

	if _, err := mapping.SubscribeInvalidation(bus, dispatcher.Cache); err != nil {
		log.Printf("syncd: config cache invalidation subscription failed: %v", err)
	}

	processor := inboundwork.NewProcessor(pms, bus, 256)
	processor.Start(ctx, cfg.QueueConcurrency["inbound-work"])
	defer processor.Stop()

	inboundDispatcher := &inbound.Dispatcher{
		Credentials: credentials,
		History:     history,
		Queue:       processor,
		Errors:      errorLog,
		Now:         time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/htng/inbound", inboundDispatcher)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("syncd: HTNG inbound endpoint listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("syncd: %v", err)
		}
	}()

	waitForShutdown(srv)
}

// buildOutbound assembles the outbound dispatcher: queue profiles with
// operator concurrency overrides, the per-property transport channel, and
// the sync-status machine.
func buildOutbound(cfg config.Config, bus *eventbus.Bus, store syncstate.Store, credentials *mapping.CredentialStore) *outbound.Dispatcher {
	profiles := map[scheduler.QueueName]scheduler.QueueProfile{}
	for name, profile := range scheduler.DefaultProfiles {
		if n, ok := cfg.QueueConcurrency[string(name)]; ok && n > 0 {
			profile.Concurrency = n
		}
		profiles[name] = profile
	}

	d := outbound.NewDispatcher()
	d.Profiles = profiles
	d.Machine = syncstate.NewMachine(bus)
	d.Store = store
	d.Channel = transport.NewHTTPChannel(transport.PoolConfig{})
	d.Bus = bus
	d.DefaultEndpoint = transport.EndpointFromWSDL(cfg.ChannelEndpointURL)
	d.Load = func(ctx context.Context, propertyID int64) (model.PropertyConfig, error) {
		pc, ok, err := credentials.FindByPropertyID(ctx, propertyID)
		if err != nil {
			return model.PropertyConfig{}, err
		}
		if !ok {
			return model.PropertyConfig{}, fmt.Errorf("no credentials for property %d", propertyID)
		}
		return pc, nil
	}
	return d
}

// bridgeDurableQueues consumes the durable AMQP queues and hands each
// delivery to the in-process dispatcher, so jobs published by other daemons
// (or by a pre-restart self) survive until a live worker takes them.
func bridgeDurableQueues(ctx context.Context, amqpURL string, d *outbound.Dispatcher) *scheduler.AMQPQueue {
	q, err := scheduler.DialAMQP(amqpURL, scheduler.DefaultProfiles)
	if err != nil {
		log.Printf("syncd: AMQP unavailable, durable queues disabled: %v", err)
		return nil
	}
	for name, profile := range scheduler.DefaultProfiles {
		if err := q.Consume(ctx, name, profile, func(ctx context.Context, job scheduler.Job) error {
			return d.Enqueue(job)
		}); err != nil {
			log.Printf("syncd: consume durable queue %q failed: %v", name, err)
		}
	}
	return q
}

// startPeriodicFullSync schedules one full-sync tick per enabled stream for
// every property whose sync settings carry an interval.
func startPeriodicFullSync(ctx context.Context, credentials *mapping.CredentialStore, producer *outbound.Producer) *scheduler.PeriodicTrigger {
	configs, err := credentials.ListPropertyConfigs(ctx)
	if err != nil {
		log.Printf("syncd: periodic full-sync disabled, could not list properties: %v", err)
		return nil
	}

	trigger := scheduler.NewPeriodicTrigger(func(ctx context.Context, propertyID int64, kind model.Kind) error {
		pc, ok, err := credentials.FindByPropertyID(ctx, propertyID)
		if err != nil || !ok {
			return fmt.Errorf("syncd: no config for property %d: %v", propertyID, err)
		}
		since := time.Time{} // full sync covers all applicable records
		switch kind {
		case model.KindInventory:
			return producer.ProduceInventory(ctx, propertyID, pc.WSSEHotelCode, since, htngxml.SyncFullSync, pc.Sync.BatchSize)
		case model.KindRates:
			return producer.ProduceRates(ctx, propertyID, pc.WSSEHotelCode, since, htngxml.RatesUpdate, htngxml.SyncFullSync, pc.Sync.BatchSize)
		case model.KindRestrictions:
			return producer.ProduceRestrictions(ctx, propertyID, pc.WSSEHotelCode, since, htngxml.SyncFullSync, pc.Sync.BatchSize)
		}
		return nil
	})

	scheduled := 0
	for _, pc := range configs {
		if pc.Sync.IntervalSeconds <= 0 {
			continue
		}
		expr := fmt.Sprintf("@every %ds", pc.Sync.IntervalSeconds)
		for kind, enabled := range map[model.Kind]bool{
			model.KindInventory:    pc.Features.Inventory,
			model.KindRates:        pc.Features.Rates,
			model.KindRestrictions: pc.Features.Restrictions,
		} {
			if !enabled {
				continue
			}
			if _, err := trigger.Schedule(expr, pc.PropertyID, kind); err != nil {
				log.Printf("syncd: schedule full sync for property %d kind %s: %v", pc.PropertyID, kind, err)
				continue
			}
			scheduled++
		}
	}
	if scheduled == 0 {
		return nil
	}
	trigger.Start()
	log.Printf("syncd: scheduled %d periodic full-sync streams", scheduled)
	return trigger
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok","service":"syncd"}`))
}

func waitForShutdown(srv *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log.Println("syncd: shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("syncd: shutdown error: %v", err)
	}
}

// credentialKey derives the AES-256 key from HTNG_CREDENTIAL_KEY. A missing
// key is a misconfiguration an operator must fix before the inbound endpoint
// can authenticate anything — there is no safe default to fall back to.
func credentialKey() []byte {
	raw := os.Getenv("HTNG_CREDENTIAL_KEY")
	if raw == "" {
		log.Fatal("syncd: HTNG_CREDENTIAL_KEY must be set")
	}
	sum := sha256.Sum256([]byte(raw))
	return sum[:]
}

// noopPMS is a placeholder repository.PMS for environments that run the
// daemons without a wired PMS adapter (e.g. a staging deploy that only wants
// to exercise authentication and dedup). Production deployments wire a real
// implementation in its place.
type noopPMS struct{}

func (noopPMS) PropertyExists(context.Context, int64) (bool, error)                   { return true, nil }
func (noopPMS) RoomTypeExistsForProperty(context.Context, int64, string) (bool, error) { return true, nil }
func (noopPMS) RatePlanExistsForProperty(context.Context, int64, string) (bool, error) { return true, nil }

func (noopPMS) ApplyInboundReservation(ctx context.Context, op repository.ReservationOperation, dto htngxml.ReservationDTO) (repository.ReservationApplyResult, error) {
	return repository.ReservationApplyResult{}, nil
}

func (noopPMS) IterateChangedInventory(context.Context, int64, time.Time) (<-chan repository.ChangedInventoryRecord, <-chan error) {
	return emptyStream[repository.ChangedInventoryRecord]()
}

func (noopPMS) IterateChangedRates(context.Context, int64, time.Time) (<-chan repository.ChangedRateRecord, <-chan error) {
	return emptyStream[repository.ChangedRateRecord]()
}

func (noopPMS) IterateChangedRestrictions(context.Context, int64, time.Time) (<-chan repository.ChangedRestrictionRecord, <-chan error) {
	return emptyStream[repository.ChangedRestrictionRecord]()
}

func emptyStream[T any]() (<-chan T, <-chan error) {
	ch := make(chan T)
	errs := make(chan error, 1)
	close(ch)
	close(errs)
	return ch, errs
}
