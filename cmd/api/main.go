package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/Twhite2/Retail-Chain/agreement"
	"github.com/Twhite2/Retail-Chain/db"
	"github.com/Twhite2/Retail-Chain/dispute"
	"github.com/Twhite2/Retail-Chain/event"
	"github.com/Twhite2/Retail-Chain/identity"
	"github.com/Twhite2/Retail-Chain/iot"
	"github.com/Twhite2/Retail-Chain/shipment"
	"github.com/Twhite2/Retail-Chain/store"
	"github.com/Twhite2/Retail-Chain/supplier"
	"github.com/Twhite2/Retail-Chain/verifier"
)

func main() {
	ctx := context.Background()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	srv := &Server{
		identityService:  identity.NewService(identity.NewRepository(pool), jwtSecret),
		storeService:     store.NewService(pool, store.NewRepository()),
		supplierService:  supplier.NewService(pool, supplier.NewRepository()),
		verifierService:  verifier.NewService(verifier.NewRepository(pool)),
		agreementService: agreement.NewService(pool, agreement.NewRepository()),
		disputeService:   dispute.NewService(pool, dispute.NewRepository()),
		shipmentService:  shipment.NewService(pool, shipment.NewRepository()),
		iotService:       iot.NewService(pool, iot.NewRepository()),
		eventService:     event.NewService(pool, event.NewRepository()),
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("listening on %s", addr)
	if err := http.ListenAndServe(addr, srv.routes()); err != nil {
		log.Fatalf("http server: %v", err)
	}
}
