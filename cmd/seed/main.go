package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"installment-engine/internal/config"
	"installment-engine/internal/domain/model"
	"installment-engine/internal/infra/api"
	pg "installment-engine/internal/infra/db/postgres"
)

// seed prepares a local database: demo coupons, funded buyer wallets and bearer tokens
// to call the API with.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	buyers := flag.String("buyers", "buyer-1,buyer-2", "comma separated buyer ids to fund")
	balance := flag.Int64("balance", 5000, "wallet balance to credit to each buyer")
	admin := flag.String("admin", "admin-1", "admin id to mint a token for (empty to skip)")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	coupons := pg.NewCouponRepo(pool)
	wallets := pg.NewWalletRepo(pool)

	// Coupons are upserted by code, so reruns are safe.
	seed := []*model.Coupon{
		{Code: "WELCOME10", Type: model.CouponTypeInstant, DiscountKind: model.DiscountPercent, DiscountValue: 10, IsActive: true},
		{Code: "FLAT250", Type: model.CouponTypeInstant, DiscountKind: model.DiscountFlat, DiscountValue: 250, MinOrderValue: 1000, IsActive: true},
		{Code: "FREEDAYS", Type: model.CouponTypeReduceDays, DiscountKind: model.DiscountFlat, DiscountValue: 250, MinOrderValue: 1000, IsActive: true},
		{Code: "STREAK", Type: model.CouponTypeMilestoneReward, PaymentsRequired: 5, RewardDays: 2, IsActive: true},
	}
	for _, c := range seed {
		if err := coupons.Save(ctx, nil, c); err != nil {
			log.Fatalf("save coupon %q: %v", c.Code, err)
		}
		fmt.Printf("coupon: %-10s type=%s value=%v\n", c.Code, c.Type, c.DiscountValue)
	}

	auth := api.NewAuthManager(cfg.Security.JWTSecret, 7*24*time.Hour)
	for _, id := range strings.Split(*buyers, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if *balance > 0 {
			w, err := wallets.Get(ctx, nil, id)
			if err != nil {
				log.Fatalf("wallet %s: %v", id, err)
			}
			if top := *balance - w.Balance; top > 0 {
				if _, err := wallets.Credit(ctx, nil, id, top, 0, model.WalletCredit, "seed", "seed:"+id); err != nil {
					log.Fatalf("credit %s: %v", id, err)
				}
			}
		}
		tok, err := auth.Mint(id, api.RoleBuyer)
		if err != nil {
			log.Fatalf("mint %s: %v", id, err)
		}
		fmt.Printf("buyer: %s balance>=%d\n  token: %s\n", id, *balance, tok)
	}

	if *admin != "" {
		tok, err := auth.Mint(*admin, api.RoleAdmin)
		if err != nil {
			log.Fatalf("mint admin: %v", err)
		}
		fmt.Printf("admin: %s\n  token: %s\n", *admin, tok)
	}

	fmt.Println("seeding complete")
}
