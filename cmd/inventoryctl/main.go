// cmd/inventoryctl/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"stockhold/internal/pkg/httpclient"
	"stockhold/internal/pkg/logger"
	"stockhold/internal/pkg/tracing"
	"stockhold/internal/service/inventory/application"
	"stockhold/internal/service/inventory/domain"
)

const usage = `usage: inventoryctl [-addr URL] <command> [args]

commands:
  products                          list stock levels
  register <id> <name> <count>      register a product
  stock <productId>                 show available/blocked/consumed
  order <orderId> <product:qty>...  reserve stock for a new order
  confirm <orderId>                 confirm a pending order
  get <orderId>                     show an order
`

func main() {
	addr := flag.String("addr", "http://localhost:8080", "inventory-service base URL")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	logger.Init("inventoryctl", os.Getenv("LOG_LEVEL"))
	tp, err := tracing.InitTracerProvider("inventoryctl", os.Getenv("JAEGER_ENDPOINT"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := httpclient.NewClient(otel.Tracer("inventoryctl"), *addr)
	out, err := dispatch(ctx, client, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func dispatch(ctx context.Context, c *httpclient.Client, args []string) (interface{}, error) {
	if len(args) == 0 {
		return nil, errors.New(usage)
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "products":
		var levels []domain.StockLevel
		return &levels, c.Do(ctx, http.MethodGet, "/products", nil, &levels)

	case "register":
		if len(args) != 3 {
			return nil, errors.New("register <id> <name> <count>")
		}
		count, err := strconv.Atoi(args[2])
		if err != nil {
			return nil, errors.Wrapf(err, "invalid count %q", args[2])
		}
		var level domain.StockLevel
		req := application.RegisterProductRequest{ID: args[0], Name: args[1], Count: count}
		return &level, c.Do(ctx, http.MethodPost, "/products", req, &level)

	case "stock":
		if len(args) != 1 {
			return nil, errors.New("stock <productId>")
		}
		var level domain.StockLevel
		return &level, c.Do(ctx, http.MethodGet, "/products/"+args[0], nil, &level)

	case "order":
		if len(args) < 2 {
			return nil, errors.New("order <orderId> <product:qty>...")
		}
		items, err := parseItems(args[1:])
		if err != nil {
			return nil, err
		}
		var view application.OrderView
		req := application.CreateOrderRequest{OrderID: args[0], Items: items}
		return &view, c.Do(ctx, http.MethodPost, "/orders", req, &view)

	case "confirm", "get":
		if len(args) != 1 {
			return nil, errors.Errorf("%s <orderId>", cmd)
		}
		var view application.OrderView
		if cmd == "confirm" {
			return &view, c.Do(ctx, http.MethodPost, "/orders/"+args[0]+"/confirm", nil, &view)
		}
		return &view, c.Do(ctx, http.MethodGet, "/orders/"+args[0], nil, &view)

	default:
		return nil, errors.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

// parseItems 解析 "P1:2" 形式的行项目
func parseItems(args []string) ([]domain.LineItem, error) {
	items := make([]domain.LineItem, 0, len(args))
	for _, arg := range args {
		id, qty, ok := strings.Cut(arg, ":")
		if !ok || id == "" {
			return nil, errors.Errorf("invalid item %q, want product:qty", arg)
		}
		n, err := strconv.Atoi(qty)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid quantity in %q", arg)
		}
		items = append(items, domain.LineItem{ProductID: id, Quantity: n})
	}
	return items, nil
}
