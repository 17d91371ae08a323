package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Wire constants mirrored from huginn/internal/net (kept local so the CLI
// has no dependency on engine-internal packages, matching the teacher's
// client.go which only imported the net package for its exported
// constants/types).
const (
	msgHeartbeat       = 0
	msgNewOrder        = 1
	msgCancelOrder     = 2
	reportFixedHeaderLen = 1 + 1 + 8 + 8 + 8 + 16
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the exchange server")
	action := flag.String("action", "place", "action to perform: ['place', 'cancel']")

	symbol := flag.String("symbol", "AAPL", "symbol to trade")
	sideStr := flag.String("side", "buy", "order side: 'buy' or 'sell'")
	price := flag.Uint64("price", 100, "limit price in ticks")
	qtyStr := flag.String("qty", "10", "quantity or comma-separated list (e.g. 10,20,50)")
	userStr := flag.String("user", "", "user id (uuid); random if omitted")

	orderID := flag.String("order-id", "", "order id (uuid) to cancel")

	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s\n", *serverAddr)

	go readReports(conn)

	side := byte(0) // Buy
	if strings.ToLower(*sideStr) == "sell" {
		side = 1
	}

	userID := uuid.Nil
	if *userStr != "" {
		if parsed, err := uuid.Parse(*userStr); err == nil {
			userID = parsed
		} else {
			log.Printf("warning: invalid -user %q, using anonymous", *userStr)
		}
	}

	switch strings.ToLower(*action) {
	case "place":
		for _, qty := range parseQuantities(*qtyStr) {
			if err := sendNewOrder(conn, *symbol, side, *price, qty, userID); err != nil {
				log.Printf("failed to place order (qty %d): %v", qty, err)
			} else {
				fmt.Printf("-> sent %s %s %d @ %d\n", strings.ToUpper(*sideStr), *symbol, qty, *price)
			}
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		if *orderID == "" {
			log.Fatal("-order-id is required for cancel")
		}
		id, err := uuid.Parse(*orderID)
		if err != nil {
			log.Fatalf("invalid -order-id: %v", err)
		}
		if err := sendCancelOrder(conn, *symbol, id); err != nil {
			log.Printf("failed to send cancel: %v", err)
		} else {
			fmt.Printf("-> sent cancel for %s\n", id)
		}

	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("listening for reports... (ctrl+C to exit)")
	select {}
}

func parseQuantities(input string) []uint64 {
	var out []uint64
	for _, p := range strings.Split(input, ",") {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 64); err == nil {
			out = append(out, val)
		} else {
			log.Printf("warning: invalid quantity %q, skipping", p)
		}
	}
	return out
}

func writeString(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}

// sendNewOrder encodes and sends a NewOrder message matching
// internal/net/messages.go's parseNewOrder wire layout.
func sendNewOrder(conn net.Conn, symbol string, side byte, price, qty uint64, userID uuid.UUID) error {
	buf := make([]byte, 0, 64)
	buf = binary.BigEndian.AppendUint16(buf, msgNewOrder)
	buf = writeString(buf, symbol)
	buf = append(buf, 0)    // kind: Standard
	buf = append(buf, side) // side
	buf = append(buf, 0)    // tif: GTC
	buf = binary.BigEndian.AppendUint64(buf, price)
	buf = binary.BigEndian.AppendUint64(buf, qty)
	buf = append(buf, userID[:]...)

	_, err := conn.Write(buf)
	return err
}

// sendCancelOrder encodes and sends a CancelOrder message.
func sendCancelOrder(conn net.Conn, symbol string, orderID uuid.UUID) error {
	buf := make([]byte, 0, 32)
	buf = binary.BigEndian.AppendUint16(buf, msgCancelOrder)
	buf = writeString(buf, symbol)
	buf = append(buf, orderID[:]...)

	_, err := conn.Write(buf)
	return err
}

// readReports prints each Report the server pushes back, matching the
// wire layout of internal/net.Report.Serialize.
func readReports(conn net.Conn) {
	for {
		header := make([]byte, reportFixedHeaderLen)
		if _, err := io.ReadFull(conn, header); err != nil {
			if err != io.EOF {
				log.Printf("connection lost: %v", err)
			}
			os.Exit(0)
		}

		kind := header[0]
		side := header[1]
		qty := binary.BigEndian.Uint64(header[10:18])
		price := binary.BigEndian.Uint64(header[18:26])
		orderID, _ := uuid.FromBytes(header[26:42])

		symLenBuf := make([]byte, 1)
		if _, err := io.ReadFull(conn, symLenBuf); err != nil {
			log.Printf("error reading symbol length: %v", err)
			return
		}
		symbol := make([]byte, symLenBuf[0])
		if _, err := io.ReadFull(conn, symbol); err != nil {
			log.Printf("error reading symbol: %v", err)
			return
		}

		lenBuf := make([]byte, 2)
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			log.Printf("error reading error length: %v", err)
			return
		}
		errStr := make([]byte, binary.BigEndian.Uint16(lenBuf))
		if _, err := io.ReadFull(conn, errStr); err != nil {
			log.Printf("error reading error string: %v", err)
			return
		}

		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			log.Printf("error reading counterparty length: %v", err)
			return
		}
		counterparty := make([]byte, binary.BigEndian.Uint16(lenBuf))
		if _, err := io.ReadFull(conn, counterparty); err != nil {
			log.Printf("error reading counterparty: %v", err)
			return
		}

		if kind == 1 { // ErrorReport
			fmt.Printf("\n[error] %s\n", errStr)
			continue
		}

		sideStr := "BUY"
		if side == 1 {
			sideStr = "SELL"
		}
		fmt.Printf("\n[execution] %s %s qty=%d price=%d order=%s vs=%s\n",
			sideStr, symbol, qty, price, orderID, counterparty)
	}
}
