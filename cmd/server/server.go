package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"huginn/internal/book"
	"huginn/internal/common"
	"huginn/internal/engine"
	"huginn/internal/net"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	eng := engine.New()
	srv := net.New("0.0.0.0", 9001, eng)

	eng.RegisterSymbol("AAPL", common.Equities,
		book.WithTickSize(1),
		book.WithLotSize(1),
		book.WithTradeListener(func(result *book.TradeResult) {
			engine.LogTrade(result)
			srv.ReportTrade(result)
		}),
	)

	log.Info().Msg("starting server")
	go srv.Run(ctx)
	<-ctx.Done()
}
