package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/lending/internal/adapter/storage"
	"github.com/rl1809/lending/internal/core/domain"
	"github.com/rl1809/lending/internal/core/service"
)

const (
	redisAddr     = "localhost:6379"
	titleID       = "stress-title"
	initialStock  = 20
	totalRequests = 50
	cancelEvery   = 4
)

func main() {
	ctx := context.Background()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	dir, err := os.MkdirTemp("", "lending-stress")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create temp dir")
	}
	defer os.RemoveAll(dir)

	sqlDB, err := storage.OpenSQLite(ctx, filepath.Join(dir, "stress.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open sqlite")
	}
	db := storage.NewSQLiteAdapter(sqlDB)
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate")
	}

	if err := seed(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to seed")
	}

	orders := service.NewOrderService(db, storage.NewRedisAdapter(rdb), service.WithLogger(log.Logger))

	var (
		successCount atomic.Int32
		soldOutCount atomic.Int32
		otherCount   atomic.Int32
		placed       sync.Map
		wg           sync.WaitGroup
	)
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			userID := fmt.Sprintf("user-%d", n)
			order, err := orders.PlaceOrder(ctx, service.PlaceOrderRequest{
				RequestID: uuid.NewString(),
				UserID:    userID,
				AddressID: "addr-" + userID,
				Items:     []service.CartItem{{TitleID: titleID, Quantity: 1}},
			})
			switch {
			case err == nil:
				successCount.Add(1)
				placed.Store(order.ID, n)
			case errors.Is(err, service.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
				log.Error().Err(err).Str("user_id", userID).Msg("unexpected checkout error")
			}
		}(i)
	}
	wg.Wait()
	checkoutElapsed := time.Since(start)

	// Cancel a share of the orders, each one twice at the same time. Stock
	// must come back exactly once per cancelled order.
	var cancelled atomic.Int32
	placed.Range(func(key, value any) bool {
		if value.(int)%cancelEvery != 0 {
			return true
		}
		orderID := key.(string)
		cancelled.Add(1)
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := orders.TransitionOrder(ctx, orderID, domain.OrderStatusCancelled, "stress"); err != nil && !errors.Is(err, service.ErrConcurrentUpdate) {
					log.Error().Err(err).Str("order_id", orderID).Msg("cancel failed")
				}
			}()
		}
		return true
	})
	wg.Wait()

	success := successCount.Load()
	title, err := db.GetTitle(ctx, titleID)
	if err != nil || title == nil {
		log.Fatal().Err(err).Msg("failed to read title")
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOutCount.Load())
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Cancelled:        %d\n", cancelled.Load())
	fmt.Printf("Checkout Time:    %v\n", checkoutElapsed)
	fmt.Println("==========================================")

	if success == initialStock && soldOutCount.Load() == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOutCount.Load())
	}

	expected := int(cancelled.Load())
	fmt.Printf("Final Stock:      %d (%s)\n", title.CopiesAvailable, title.Status)
	if title.CopiesAvailable == expected && (title.Status == domain.AvailabilityOutOfStock) == (expected == 0) {
		fmt.Println("PASS: Ledger matches cancellations")
	} else {
		fmt.Printf("FAIL: Expected stock %d, got %d\n", expected, title.CopiesAvailable)
	}
}

func seed(ctx context.Context, db *storage.SQLAdapter) error {
	if err := db.CreatePlan(ctx, domain.MembershipPlan{ID: "basic", TierName: "basic", MonthlyGrantLimit: 3, AccessDurationDays: 30}); err != nil {
		return err
	}
	if err := db.CreateTitle(ctx, domain.Title{
		ID:          titleID,
		Name:        "Stress Title",
		PriceCents:  1000,
		StockLedger: domain.StockLedger{CopiesAvailable: initialStock},
	}); err != nil {
		return err
	}
	for i := 0; i < totalRequests; i++ {
		userID := fmt.Sprintf("user-%d", i)
		if err := db.CreateMember(ctx, domain.Member{ID: userID, Role: domain.RoleMember, PlanID: "basic"}); err != nil {
			return err
		}
		if err := db.CreateAddress(ctx, domain.Address{ID: "addr-" + userID, UserID: userID}); err != nil {
			return err
		}
	}
	return nil
}
